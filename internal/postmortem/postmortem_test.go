package postmortem

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/alert"
	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/incident/memstore"
)

var genDay = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

// mapSource serves incidents from a map.
type mapSource map[string]*incident.Incident

func (m mapSource) Get(_ context.Context, id string) (*incident.Incident, error) {
	inc, ok := m[id]
	if !ok {
		return nil, incident.ErrNotFound
	}
	return inc, nil
}

type brokenSource struct{}

func (brokenSource) Get(context.Context, string) (*incident.Incident, error) {
	return nil, errors.New("connection refused")
}

func sample() *incident.Incident {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &incident.Incident{
		ID:        "inc-1",
		Title:     "HighLatency: api p99 over budget",
		Severity:  incident.SeverityHigh,
		Status:    incident.StatusInvestigating,
		CreatedAt: created,
		UpdatedAt: created.Add(15*time.Minute + 30*time.Second),
		Alerts: []alert.Alert{
			{Labels: map[string]string{"service": "api"}},
			{Labels: map[string]string{"service": "checkout"}},
			{Labels: map[string]string{"service": "api"}},
			{Labels: map[string]string{"severity": "info"}},
		},
		Timeline: []incident.TimelineEntry{
			{Timestamp: created, Event: incident.EventCreated, Details: "Alert received", User: incident.UserSystem},
			{Timestamp: created.Add(time.Minute), Event: incident.EventAutomatedResponse, Details: "Disabled high_latency mode", User: incident.UserAutomation},
			{Timestamp: created.Add(2 * time.Minute), Event: "Status updated", Details: `Changed from "open" to "investigating"`},
		},
	}
}

func TestBuild_Summary(t *testing.T) {
	t.Parallel()

	pm := Build(sample(), genDay)

	if pm.IncidentID != "inc-1" {
		t.Errorf("IncidentID = %q", pm.IncidentID)
	}
	if pm.Title != "Post-Mortem: HighLatency: api p99 over budget" {
		t.Errorf("Title = %q", pm.Title)
	}
	if pm.Date != "2024-01-02" {
		t.Errorf("Date = %q, want 2024-01-02", pm.Date)
	}
	if pm.Summary.Duration != "15m30s" {
		t.Errorf("Duration = %q, want 15m30s", pm.Summary.Duration)
	}
	if pm.Summary.DurationSeconds != 930 {
		t.Errorf("DurationSeconds = %v, want 930", pm.Summary.DurationSeconds)
	}
	if !slices.Equal(pm.Summary.ServicesAffected, []string{"api", "checkout"}) {
		t.Errorf("ServicesAffected = %v, want [api checkout]", pm.Summary.ServicesAffected)
	}
	if pm.Summary.UserImpact != "Medium - significant slowdown or loss" {
		t.Errorf("UserImpact = %q", pm.Summary.UserImpact)
	}
}

func TestBuild_TimelineProjection(t *testing.T) {
	t.Parallel()

	inc := sample()
	pm := Build(inc, genDay)

	if len(pm.Timeline) != len(inc.Timeline) {
		t.Fatalf("timeline len = %d, want %d", len(pm.Timeline), len(inc.Timeline))
	}
	for i, e := range pm.Timeline {
		if e.Event != inc.Timeline[i].Event || !e.Time.Equal(inc.Timeline[i].Timestamp) {
			t.Errorf("timeline[%d] = %+v, order not preserved", i, e)
		}
	}
	if pm.Timeline[2].User != incident.UserSystem {
		t.Errorf("missing user = %q, want system", pm.Timeline[2].User)
	}
}

func TestBuild_RootCauseAndResolution(t *testing.T) {
	t.Parallel()

	pm := Build(sample(), genDay)

	if pm.RootCause.PrimaryCause != "Performance degradation" {
		t.Errorf("PrimaryCause = %q", pm.RootCause.PrimaryCause)
	}
	if !slices.Equal(pm.RootCause.ContributingFactors, []string{"Automation triggered"}) {
		t.Errorf("ContributingFactors = %v", pm.RootCause.ContributingFactors)
	}
	if !slices.Equal(pm.Resolution.ImmediateActions, []string{"Disabled high_latency mode"}) {
		t.Errorf("ImmediateActions = %v", pm.Resolution.ImmediateActions)
	}
	if pm.Resolution.ResolutionMethod != ResolutionPending {
		t.Errorf("ResolutionMethod = %q, want TBD", pm.Resolution.ResolutionMethod)
	}

	inc := sample()
	fixed := "Rolled back deploy"
	inc.Resolution = &fixed
	if got := Build(inc, genDay).Resolution.ResolutionMethod; got != fixed {
		t.Errorf("ResolutionMethod = %q, want %q", got, fixed)
	}
}

func TestBuild_ContributingFactorsOrder(t *testing.T) {
	t.Parallel()

	inc := sample()
	inc.Severity = incident.SeverityCritical
	for range 3 {
		inc.Timeline = append(inc.Timeline, incident.TimelineEntry{Event: incident.EventManualUpdate, User: "alice"})
	}

	want := []string{"Prolonged issue with multiple events", "Automation triggered", "High urgency"}
	if got := Build(inc, genDay).RootCause.ContributingFactors; !slices.Equal(got, want) {
		t.Errorf("ContributingFactors = %v, want %v", got, want)
	}
}

func TestBuild_EmptyPlaceholders(t *testing.T) {
	t.Parallel()

	inc := &incident.Incident{ID: "inc-empty", Title: "Disk full", Severity: incident.SeverityLow}
	pm := Build(inc, genDay)

	js, err := JSON(pm)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(js, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// human-completed fields must be present as empty lists, not null
	for _, key := range []string{"follow_up_actions", "timeline"} {
		if v, ok := doc[key].([]any); !ok || len(v) != 0 {
			t.Errorf("%s = %v, want []", key, doc[key])
		}
	}
	lessons := doc["lessons_learned"].(map[string]any)
	for _, key := range []string{"what_went_well", "what_could_be_improved", "action_items"} {
		if v, ok := lessons[key].([]any); !ok || len(v) != 0 {
			t.Errorf("lessons_learned.%s = %v, want []", key, lessons[key])
		}
	}
	summary := doc["summary"].(map[string]any)
	if v, ok := summary["services_affected"].([]any); !ok || len(v) != 0 {
		t.Errorf("services_affected = %v, want []", summary["services_affected"])
	}
	if pm.RootCause.PrimaryCause != "Pending analysis" {
		t.Errorf("PrimaryCause = %q", pm.RootCause.PrimaryCause)
	}
}

func TestPrimaryCause(t *testing.T) {
	t.Parallel()

	tests := []struct {
		title string
		want  string
	}{
		{"High Error Rate detected", "Application failure"},
		{"error rate and latency", "Application failure"},
		{"Database latency spike", "Performance degradation"},
		{"Service Down: checkout", "Service unavailability"},
		{"Database connection failures", "Database issue"},
		{"ServiceDown: checkout", "Pending analysis"},
		{"", "Pending analysis"},
	}
	for _, tt := range tests {
		if got := PrimaryCause(tt.title); got != tt.want {
			t.Errorf("PrimaryCause(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestUserImpact(t *testing.T) {
	t.Parallel()

	tests := map[incident.Severity]string{
		incident.SeverityCritical: "High - outage or severe degradation",
		incident.SeverityHigh:     "Medium - significant slowdown or loss",
		incident.SeverityMedium:   "Low - minor performance issue",
		incident.SeverityLow:      "Minimal - mostly internal",
		"sev0":                    "Unknown",
	}
	for sev, want := range tests {
		if got := UserImpact(sev); got != want {
			t.Errorf("UserImpact(%q) = %q, want %q", sev, got, want)
		}
	}
}

func TestGenerate_NotFound(t *testing.T) {
	t.Parallel()

	_, err := New(mapSource{}, log.Nop()).Generate(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if !errors.Is(err, incident.ErrNotFound) {
		t.Errorf("err = %v, want to wrap incident.ErrNotFound", err)
	}
}

func TestGenerate_SourceError(t *testing.T) {
	t.Parallel()

	_, err := New(brokenSource{}, log.Nop()).Generate(context.Background(), "inc-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("transport error should not be reported as not found")
	}
}

func TestGenerate_UsesClock(t *testing.T) {
	t.Parallel()

	g := New(mapSource{"inc-1": sample()}, log.Nop(), WithClock(func() time.Time { return genDay }))
	pm, err := g.Generate(context.Background(), "inc-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if pm.Date != "2024-01-02" {
		t.Errorf("Date = %q", pm.Date)
	}
}

func TestGenerate_FromServiceEndToEnd(t *testing.T) {
	t.Parallel()

	svc := incident.NewService(memstore.New(), log.Nop(), nil)
	cr, err := svc.Create(context.Background(), &alert.Webhook{
		Status:            "firing",
		CommonAnnotations: alert.Annotations{Summary: "ServiceDown: checkout"},
		Alerts:            []alert.Alert{{Labels: map[string]string{"severity": "critical", "service": "checkout"}}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	pm, err := New(svc, log.Nop()).Generate(context.Background(), cr.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !slices.Equal(pm.Summary.ServicesAffected, []string{"checkout"}) {
		t.Errorf("ServicesAffected = %v, want [checkout]", pm.Summary.ServicesAffected)
	}
	if pm.Summary.UserImpact != "High - outage or severe degradation" {
		t.Errorf("UserImpact = %q", pm.Summary.UserImpact)
	}
}

func TestMarkdown_Sections(t *testing.T) {
	t.Parallel()

	md := string(Markdown(Build(sample(), genDay)))

	sections := []string{"## Summary", "## Timeline", "## Root Cause", "## Resolution", "## Lessons Learned", "## Follow-up Actions"}
	last := -1
	for _, s := range sections {
		i := strings.Index(md, s)
		if i < 0 {
			t.Fatalf("missing section %q", s)
		}
		if i < last {
			t.Errorf("section %q out of order", s)
		}
		last = i
	}

	for _, want := range []string{
		"# Post-Mortem: HighLatency: api p99 over budget",
		"**Incident ID:** inc-1",
		"- **Duration:** 15m30s",
		"- **Services Affected:** api, checkout",
		"**Primary Cause:** Performance degradation",
		"- Disabled high_latency mode",
		"**Resolution Method:** TBD",
		"- [ ] Update documentation",
		"- [ ] Conduct RCA review",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestWrite_Files(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	files, err := Write(dir, Build(sample(), genDay))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(files.JSON) != "postmortem_inc-1.json" {
		t.Errorf("json file = %q", files.JSON)
	}
	if filepath.Base(files.Markdown) != "postmortem_inc-1.md" {
		t.Errorf("markdown file = %q", files.Markdown)
	}

	raw, err := os.ReadFile(files.JSON)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var got Postmortem
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Summary.Duration != "15m30s" {
		t.Errorf("written duration = %q", got.Summary.Duration)
	}

	md, err := os.ReadFile(files.Markdown)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if !strings.HasPrefix(string(md), "# Post-Mortem: ") {
		t.Errorf("markdown starts with %q", string(md[:20]))
	}
}

func TestWrite_RejectsUnsafeID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "..", "../etc", `a\b`} {
		if _, err := Write(t.TempDir(), &Postmortem{IncidentID: id}); err == nil {
			t.Errorf("Write(id=%q) should fail", id)
		}
	}
}
