package target

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/log"
)

const leakChunk = 1 << 20 // bytes retained per request while memory_leak is on

// SimMetrics is what the alert rules watching the simulated service key on.
type SimMetrics struct {
	Requests    *prometheus.CounterVec
	Latency     prometheus.Histogram
	Errors      *prometheus.CounterVec
	Active      prometheus.Gauge
	ModeEnabled *prometheus.GaugeVec
}

// NewSimMetrics registers and returns simulator metrics on the given registerer.
func NewSimMetrics(reg prometheus.Registerer) *SimMetrics {
	m := &SimMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Total requests.",
		}, []string{"method", "endpoint", "status"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_errors_total",
			Help: "Total errors by type.",
		}, []string{"error_type"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backend_active_connections",
			Help: "Requests currently being served.",
		}),
		ModeEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_failure_mode_enabled",
			Help: "1 when the fault mode is switched on.",
		}, []string{"mode"}),
	}
	reg.MustRegister(m.Requests, m.Latency, m.Errors, m.Active, m.ModeEnabled)
	return m
}

// Simulator is a fault-injectable stand-in for the monitored service.
type Simulator struct {
	mu      sync.RWMutex
	modes   map[Mode]bool
	leaked  [][]byte
	metrics *SimMetrics
	logger  log.Logger

	// overridable for tests
	random func() float64
	sleep  func(ctx context.Context, d time.Duration)
}

// NewSimulator creates a simulator with every fault mode off.
func NewSimulator(logger log.Logger, metrics *SimMetrics) *Simulator {
	if logger == nil {
		logger = log.Nop()
	}
	modes := make(map[Mode]bool, len(Modes))
	for _, m := range Modes {
		modes[m] = false
	}
	return &Simulator{
		modes:   modes,
		metrics: metrics,
		logger:  logger,
		random:  rand.Float64,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		},
	}
}

// RegisterRoutes attaches the simulated service's endpoints to the router.
func (s *Simulator) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/api/users", s.instrument("/api/users", s.handleUsers))
	r.Get("/api/orders", s.instrument("/api/orders", s.handleOrders))
	r.Post("/admin/failure-mode", s.handleSetFailureMode)
	r.Get("/admin/failure-modes", s.handleGetFailureModes)
}

// Enabled reports whether a fault mode is on.
func (s *Simulator) Enabled(m Mode) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes[m]
}

// SetMode switches a fault mode, returning false for unknown modes.
func (s *Simulator) SetMode(m Mode, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modes[m]; !ok {
		return false
	}
	s.modes[m] = enabled
	if m == ModeMemoryLeak && !enabled {
		s.leaked = nil
	}
	if s.metrics != nil {
		v := 0.0
		if enabled {
			v = 1
		}
		s.metrics.ModeEnabled.WithLabelValues(string(m)).Set(v)
	}
	return true
}

func (s *Simulator) snapshot() map[Mode]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Mode]bool, len(s.modes))
	for k, v := range s.modes {
		out[k] = v
	}
	return out
}

// statusRecorder captures the status code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Simulator) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next(w, r)
			return
		}
		start := time.Now()
		s.metrics.Active.Inc()
		defer s.metrics.Active.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.metrics.Latency.Observe(time.Since(start).Seconds())
		s.metrics.Requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

func (s *Simulator) countError(kind string) {
	if s.metrics != nil {
		s.metrics.Errors.WithLabelValues(kind).Inc()
	}
}

func (s *Simulator) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type order struct {
	ID     int     `json:"id"`
	UserID int     `json:"user_id"`
	Total  float64 `json:"total"`
	Status string  `json:"status"`
}

func (s *Simulator) handleUsers(w http.ResponseWriter, r *http.Request) {
	modes := s.snapshot()

	if modes[ModeHighLatency] {
		s.sleep(r.Context(), time.Duration((2+3*s.random())*float64(time.Second)))
	}
	if modes[ModeDatabaseErrors] && s.random() < 0.3 {
		s.countError("database")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Database connection failed"})
		return
	}
	if modes[ModeIntermittentFailures] && s.random() < 0.1 {
		s.countError("intermittent")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Service temporarily unavailable"})
		return
	}
	if modes[ModeMemoryLeak] {
		s.mu.Lock()
		s.leaked = append(s.leaked, make([]byte, leakChunk))
		s.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, []user{
		{ID: 1, Name: "Alice", Email: "alice@example.com"},
		{ID: 2, Name: "Bob", Email: "bob@example.com"},
		{ID: 3, Name: "Charlie", Email: "charlie@example.com"},
	})
}

func (s *Simulator) handleOrders(w http.ResponseWriter, _ *http.Request) {
	if s.Enabled(ModeCPUSpike) {
		var sink int
		for i := range 1_000_000 {
			sink += i * i
		}
		_ = sink
	}

	writeJSON(w, http.StatusOK, []order{
		{ID: 1, UserID: 1, Total: 99.99, Status: "completed"},
		{ID: 2, UserID: 2, Total: 149.99, Status: "pending"},
	})
}

func (s *Simulator) handleSetFailureMode(w http.ResponseWriter, r *http.Request) {
	var req FailureModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if !s.SetMode(req.Mode, req.Enabled) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid failure mode"})
		return
	}

	s.logger.Info(r.Context(), "failure mode changed", "mode", req.Mode, "enabled", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Failure mode %s set to %t", req.Mode, req.Enabled),
	})
}

func (s *Simulator) handleGetFailureModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
