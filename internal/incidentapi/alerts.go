package incidentapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/warden/internal/alert"
)

func (a *API) handleIngestAlert(w http.ResponseWriter, r *http.Request) {
	var wh alert.Webhook
	if err := json.NewDecoder(r.Body).Decode(&wh); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("warden.alert.status", wh.Status),
		attribute.Int("warden.alert.count", len(wh.Alerts)),
	)

	res, err := a.svc.Create(r.Context(), &wh)
	if err != nil {
		a.fail(w, r, err, "failed to create incident")
		return
	}
	if res.Skipped {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Alert resolved"})
		return
	}

	span.SetAttributes(attribute.String("warden.incident.id", res.ID))
	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Incident created",
		"incident_id": res.ID,
	})
}
