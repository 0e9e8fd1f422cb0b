// Package incidentapi exposes alert ingestion and the incident query, update,
// dashboard and postmortem endpoints over HTTP.
package incidentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/postmortem"
)

// IncidentService defines the business operations incidentapi needs.
type IncidentService interface {
	Create(ctx context.Context, wh *alert.Webhook) (*incident.CreateResult, error)
	Get(ctx context.Context, id string) (*incident.Incident, error)
	List(ctx context.Context) ([]*incident.Incident, error)
	Update(ctx context.Context, id string, p incident.Patch) (*incident.Incident, error)
	AppendTimeline(ctx context.Context, id string, in incident.TimelineInput) (*incident.TimelineEntry, error)
	DashboardStats(ctx context.Context) (*incident.Stats, error)
}

// PostmortemGenerator derives a postmortem for one incident.
type PostmortemGenerator interface {
	Generate(ctx context.Context, id string) (*postmortem.Postmortem, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    IncidentService
	pm     PostmortemGenerator
}

// New creates a new API handler. pm may be nil, in which case the postmortem
// route is not registered.
func New(logger log.Logger, svc IncidentService, pm PostmortemGenerator) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("incident service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		pm:     pm,
	}
}

// RegisterRoutes attaches API endpoints to the router. mw wraps every /api/v1
// route; pass none for an open API.
func (a *API) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)
		r.Post("/alerts", a.handleIngestAlert)
		r.Get("/dashboard", a.handleDashboard)
		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", a.handleListIncidents)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetIncident)
				r.Put("/", a.handleUpdateIncident)
				r.Patch("/", a.handleUpdateIncident)
				r.Post("/timeline", a.handleAppendTimeline)
				if a.pm != nil {
					r.Get("/postmortem", a.handlePostmortem)
				}
			})
		})
	})
}

func incidentID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("warden.incident.id", id))
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps service errors onto HTTP statuses; anything unexpected is logged as a 500.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, incident.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, incident.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error(r.Context(), err, msg, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
