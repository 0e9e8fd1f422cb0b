package incident

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the incident lifecycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SubmitsTotal    *prometheus.CounterVec
	CreatedTotal    *prometheus.CounterVec
	UpdatesTotal    *prometheus.CounterVec
	TimelineTotal   *prometheus.CounterVec
	IncidentsActive prometheus.Gauge
}

// NewMetrics registers and returns incident metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_alert_batches_total",
			Help: "Total alert batches received by result.",
		}, []string{"result"}),
		CreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_incidents_created_total",
			Help: "Total incidents created by aggregated severity.",
		}, []string{"severity"}),
		UpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_incident_field_updates_total",
			Help: "Total incident field updates by field name.",
		}, []string{"field"}),
		TimelineTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_timeline_entries_total",
			Help: "Total timeline entries appended by source (system, automation, human).",
		}, []string{"source"}),
		IncidentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_incidents_unresolved",
			Help: "Incidents whose status is not resolved, as of the last dashboard read.",
		}),
	}

	reg.MustRegister(
		m.SubmitsTotal,
		m.CreatedTotal,
		m.UpdatesTotal,
		m.TimelineTotal,
		m.IncidentsActive,
	)

	return m
}

func (m *Metrics) submit(result string) {
	if m == nil {
		return
	}
	m.SubmitsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) created(sev Severity) {
	if m == nil {
		return
	}
	m.CreatedTotal.WithLabelValues(string(sev)).Inc()
	m.TimelineTotal.WithLabelValues(UserSystem).Inc()
}

func (m *Metrics) updated(fields []string) {
	if m == nil {
		return
	}
	for _, f := range fields {
		m.UpdatesTotal.WithLabelValues(f).Inc()
		m.TimelineTotal.WithLabelValues(UserSystem).Inc()
	}
}

func (m *Metrics) appended(user string) {
	if m == nil {
		return
	}
	source := "human"
	if user == UserSystem || user == UserAutomation {
		source = user
	}
	m.TimelineTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) unresolved(n int) {
	if m == nil {
		return
	}
	m.IncidentsActive.Set(float64(n))
}
