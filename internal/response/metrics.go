package response

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the response dispatcher.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	PollErrorsTotal  prometheus.Counter
	CycleDuration    prometheus.Histogram
	DispatchesTotal  *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	Tracked          prometheus.Gauge
}

// NewMetrics registers and returns dispatcher metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_response_cycles_total",
			Help: "Total poll cycles completed.",
		}),
		PollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_response_poll_errors_total",
			Help: "Total failures fetching the incident list.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_response_cycle_duration_seconds",
			Help:    "Duration of one poll cycle in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_response_dispatches_total",
			Help: "Total incidents dispatched by catalog rule and outcome.",
		}, []string{"rule", "outcome"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_response_escalations_total",
			Help: "Total human escalations by notification result.",
		}, []string{"result"}),
		Tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_response_dispatched_incidents",
			Help: "Incident IDs held in the dispatcher's response record.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.PollErrorsTotal,
		m.CycleDuration,
		m.DispatchesTotal,
		m.EscalationsTotal,
		m.Tracked,
	)

	return m
}

func (m *Metrics) cycle(seconds float64) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(seconds)
}

func (m *Metrics) pollError() {
	if m == nil {
		return
	}
	m.PollErrorsTotal.Inc()
}

func (m *Metrics) dispatched(rule, outcome string, tracked int) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(rule, outcome).Inc()
	m.Tracked.Set(float64(tracked))
}

func (m *Metrics) escalated(result string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(result).Inc()
}
