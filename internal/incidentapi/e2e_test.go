package incidentapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/postmortem"
	"github.com/linnemanlabs/warden/internal/response"
	"github.com/linnemanlabs/warden/internal/target"
)

// Ingest over HTTP, run one dispatcher cycle against an unhealthy target, then
// read the incident and its postmortem back through the API.
func TestEndToEnd_ServiceDown(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	r, svc := newTestRouter(t)
	rec := do(t, r, http.MethodPost, "/api/v1/alerts",
		`{"status":"firing","commonAnnotations":{"summary":"ServiceDown: checkout"},"alerts":[{"labels":{"severity":"critical","service":"checkout"}}]}`)
	id := decode[map[string]string](t, rec)["incident_id"]

	inc := decode[incident.Incident](t, do(t, r, http.MethodGet, "/api/v1/incidents/"+id, ""))
	if inc.Severity != incident.SeverityCritical || inc.Status != incident.StatusOpen {
		t.Fatalf("created incident = %s/%s, want critical/open", inc.Severity, inc.Status)
	}

	d := response.NewDispatcher(svc, response.DefaultCatalog(target.NewClient(down.URL, 0, 0)), log.Nop(), nil, nil, response.Options{})
	if err := d.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	inc = decode[incident.Incident](t, do(t, r, http.MethodGet, "/api/v1/incidents/"+id, ""))
	if inc.Status != incident.StatusInvestigating {
		t.Errorf("Status = %q, want investigating", inc.Status)
	}
	if !slices.ContainsFunc(inc.Timeline, func(e incident.TimelineEntry) bool {
		return strings.Contains(e.Details, "Escalation to SRE team needed")
	}) {
		t.Errorf("timeline missing escalation: %+v", inc.Timeline)
	}

	pm := decode[postmortem.Postmortem](t, do(t, r, http.MethodGet, "/api/v1/incidents/"+id+"/postmortem", ""))
	if !slices.Equal(pm.Summary.ServicesAffected, []string{"checkout"}) {
		t.Errorf("ServicesAffected = %v, want [checkout]", pm.Summary.ServicesAffected)
	}
	if pm.Summary.UserImpact != postmortem.UserImpact(incident.SeverityCritical) {
		t.Errorf("UserImpact = %q", pm.Summary.UserImpact)
	}
	if !slices.Contains(pm.RootCause.ContributingFactors, "Automation triggered") {
		t.Errorf("ContributingFactors = %v", pm.RootCause.ContributingFactors)
	}
}
