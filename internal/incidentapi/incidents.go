package incidentapi

import (
	"encoding/json"
	"net/http"

	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/postmortem"
)

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	incs, err := a.svc.List(r.Context())
	if err != nil {
		a.fail(w, r, err, "failed to list incidents")
		return
	}
	if incs == nil {
		incs = []*incident.Incident{}
	}
	writeJSON(w, http.StatusOK, incs)
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := a.svc.Get(r.Context(), incidentID(r))
	if err != nil {
		a.fail(w, r, err, "failed to get incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// handleUpdateIncident serves both PUT and PATCH; both are partial updates and
// fields the patch doesn't know are ignored.
func (a *API) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	id := incidentID(r)

	var p incident.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	inc, err := a.svc.Update(r.Context(), id, p)
	if err != nil {
		a.fail(w, r, err, "failed to update incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleAppendTimeline(w http.ResponseWriter, r *http.Request) {
	id := incidentID(r)

	var in incident.TimelineInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	entry, err := a.svc.AppendTimeline(r.Context(), id, in)
	if err != nil {
		a.fail(w, r, err, "failed to append timeline entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.DashboardStats(r.Context())
	if err != nil {
		a.fail(w, r, err, "failed to compute dashboard stats")
		return
	}
	if st.Recent == nil {
		st.Recent = []*incident.Incident{}
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handlePostmortem(w http.ResponseWriter, r *http.Request) {
	pm, err := a.pm.Generate(r.Context(), incidentID(r))
	if err != nil {
		a.fail(w, r, err, "failed to generate postmortem")
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(postmortem.Markdown(pm))
		return
	}
	writeJSON(w, http.StatusOK, pm)
}
