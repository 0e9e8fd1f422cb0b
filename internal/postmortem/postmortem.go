// Package postmortem derives a structured postmortem document from an incident's
// stored record. Everything in the document is computed from the incident alone;
// fields meant for human follow-up are emitted empty.
package postmortem

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/warden/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/postmortem")

// ErrNotFound is returned by Generate when the incident does not exist. It wraps
// incident.ErrNotFound.
var ErrNotFound = fmt.Errorf("postmortem: %w", incident.ErrNotFound)

// ResolutionPending is the resolution method of an incident with no resolution set.
const ResolutionPending = "TBD"

// Source fetches a single incident. Both *incident.Service and *apiclient.Client satisfy it.
type Source interface {
	Get(ctx context.Context, id string) (*incident.Incident, error)
}

// Postmortem is the generated document.
type Postmortem struct {
	IncidentID      string         `json:"incident_id"`
	Title           string         `json:"title"`
	Date            string         `json:"date"`
	Summary         Summary        `json:"summary"`
	Timeline        []Event        `json:"timeline"`
	RootCause       RootCause      `json:"root_cause"`
	Resolution      Resolution     `json:"resolution"`
	LessonsLearned  LessonsLearned `json:"lessons_learned"`
	FollowUpActions []string       `json:"follow_up_actions"`
}

// Summary is the incident overview: severity, duration, affected services and impact.
type Summary struct {
	IncidentTitle    string            `json:"incident_title"`
	Severity         incident.Severity `json:"severity"`
	Duration         string            `json:"duration"`
	DurationSeconds  float64           `json:"duration_seconds"`
	ServicesAffected []string          `json:"services_affected"`
	UserImpact       string            `json:"user_impact"`
}

// Event is one incident timeline entry as shown in the postmortem.
type Event struct {
	Time    time.Time `json:"time"`
	Event   string    `json:"event"`
	Details string    `json:"details"`
	User    string    `json:"user"`
}

// RootCause holds the inferred primary cause and contributing factors.
type RootCause struct {
	PrimaryCause        string   `json:"primary_cause"`
	ContributingFactors []string `json:"contributing_factors"`
}

// Resolution lists the automated actions taken and how the incident was closed.
type Resolution struct {
	ImmediateActions []string `json:"immediate_actions"`
	ResolutionMethod string   `json:"resolution_method"`
}

// LessonsLearned is left empty for the review meeting to fill in.
type LessonsLearned struct {
	WhatWentWell        []string `json:"what_went_well"`
	WhatCouldBeImproved []string `json:"what_could_be_improved"`
	ActionItems         []string `json:"action_items"`
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for the document date.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator builds postmortems from incidents fetched through a Source.
type Generator struct {
	src    Source
	logger log.Logger
	now    func() time.Time
}

// New creates a Generator reading from src.
func New(src Source, logger log.Logger, opts ...Option) *Generator {
	if src == nil {
		panic(xerrors.New("incident source is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	g := &Generator{src: src, logger: logger, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate fetches the incident and derives its postmortem. It has no side effects.
func (g *Generator) Generate(ctx context.Context, id string) (*Postmortem, error) {
	ctx, span := tracer.Start(ctx, "postmortem.Generate", trace.WithAttributes(
		attribute.String("warden.incident.id", id),
	))
	defer span.End()

	inc, err := g.src.Get(ctx, id)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			return nil, fmt.Errorf("incident %s: %w", id, ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch incident %s: %w", id, err)
	}

	pm := Build(inc, g.now())
	g.logger.Info(ctx, "postmortem generated",
		"incident_id", id,
		"primary_cause", pm.RootCause.PrimaryCause,
		"duration", pm.Summary.Duration,
	)
	return pm, nil
}

// Build derives the postmortem for inc as of now.
func Build(inc *incident.Incident, now time.Time) *Postmortem {
	dur := inc.UpdatedAt.Sub(inc.CreatedAt)

	timeline := make([]Event, len(inc.Timeline))
	for i, e := range inc.Timeline {
		user := e.User
		if user == "" {
			user = incident.UserSystem
		}
		timeline[i] = Event{Time: e.Timestamp, Event: e.Event, Details: e.Details, User: user}
	}

	method := ResolutionPending
	if inc.Resolution != nil {
		method = *inc.Resolution
	}

	return &Postmortem{
		IncidentID: inc.ID,
		Title:      "Post-Mortem: " + inc.Title,
		Date:       now.Format(time.DateOnly),
		Summary: Summary{
			IncidentTitle:    inc.Title,
			Severity:         inc.Severity,
			Duration:         dur.String(),
			DurationSeconds:  dur.Seconds(),
			ServicesAffected: servicesAffected(inc),
			UserImpact:       UserImpact(inc.Severity),
		},
		Timeline: timeline,
		RootCause: RootCause{
			PrimaryCause:        PrimaryCause(inc.Title),
			ContributingFactors: contributingFactors(inc),
		},
		Resolution: Resolution{
			ImmediateActions: immediateActions(inc),
			ResolutionMethod: method,
		},
		LessonsLearned: LessonsLearned{
			WhatWentWell:        []string{},
			WhatCouldBeImproved: []string{},
			ActionItems:         []string{},
		},
		FollowUpActions: []string{},
	}
}

var impacts = map[incident.Severity]string{
	incident.SeverityCritical: "High - outage or severe degradation",
	incident.SeverityHigh:     "Medium - significant slowdown or loss",
	incident.SeverityMedium:   "Low - minor performance issue",
	incident.SeverityLow:      "Minimal - mostly internal",
}

// UserImpact maps a severity to its impact narrative.
func UserImpact(s incident.Severity) string {
	if v, ok := impacts[s]; ok {
		return v
	}
	return "Unknown"
}

// causes is checked in order; the first keyword found in the title wins.
var causes = []struct{ keyword, cause string }{
	{"error rate", "Application failure"},
	{"latency", "Performance degradation"},
	{"service down", "Service unavailability"},
	{"database", "Database issue"},
}

// PrimaryCause guesses a root cause category from the incident title.
func PrimaryCause(title string) string {
	t := strings.ToLower(title)
	for _, c := range causes {
		if strings.Contains(t, c.keyword) {
			return c.cause
		}
	}
	return "Pending analysis"
}

func contributingFactors(inc *incident.Incident) []string {
	factors := []string{}
	if len(inc.Timeline) > 5 {
		factors = append(factors, "Prolonged issue with multiple events")
	}
	if slices.ContainsFunc(inc.Timeline, func(e incident.TimelineEntry) bool { return e.User == incident.UserAutomation }) {
		factors = append(factors, "Automation triggered")
	}
	if inc.Severity == incident.SeverityCritical {
		factors = append(factors, "High urgency")
	}
	return factors
}

func immediateActions(inc *incident.Incident) []string {
	actions := []string{}
	for _, e := range inc.Timeline {
		if strings.Contains(strings.ToLower(e.Event), "automated response") {
			actions = append(actions, e.Details)
		}
	}
	return actions
}

func servicesAffected(inc *incident.Incident) []string {
	services := []string{}
	for _, a := range inc.Alerts {
		if svc := a.Service(); svc != "" && !slices.Contains(services, svc) {
			services = append(services, svc)
		}
	}
	slices.Sort(services)
	return services
}
