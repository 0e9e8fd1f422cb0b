package response

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/target"
)

func TestScenario_ServiceDownEscalates(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	svc := newIncidents(t)
	d := NewDispatcher(svc, DefaultCatalog(target.NewClient(down.URL, 0, 0)), log.Nop(), nil, nil, Options{})
	inc := open(t, svc, "ServiceDown: checkout unreachable")

	if err := d.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	got, _ := svc.Get(context.Background(), inc.ID)
	if got.Status != incident.StatusInvestigating {
		t.Errorf("Status = %q, want investigating", got.Status)
	}
	entries := automatedEntries(got)
	if len(entries) != 1 {
		t.Fatalf("automated entries = %d, want 1", len(entries))
	}
	if !strings.Contains(entries[0].Details, TextHealthFailed) {
		t.Errorf("details = %q, want health failure", entries[0].Details)
	}
	if !strings.Contains(entries[0].Details, TextEscalate) {
		t.Errorf("details = %q, want escalation", entries[0].Details)
	}
}

func TestScenario_HighErrorRateDisablesFaultOnTarget(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var calls []target.FailureModeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/failure-mode" {
			http.NotFound(w, r)
			return
		}
		var req target.FailureModeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		calls = append(calls, req)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := newIncidents(t)
	d := NewDispatcher(svc, DefaultCatalog(target.NewClient(srv.URL, 0, 0)), log.Nop(), nil, nil, Options{})
	open(t, svc, "High Error Rate and High Latency")

	if err := d.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("remediation calls = %d, want 1", len(calls))
	}
	if calls[0].Mode != target.ModeIntermittentFailures || calls[0].Enabled {
		t.Errorf("call = %+v, want intermittent_failures disabled", calls[0])
	}
}
