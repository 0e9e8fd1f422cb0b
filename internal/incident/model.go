package incident

import (
	"slices"
	"time"

	"github.com/linnemanlabs/warden/internal/alert"
)

// Severity is the impact level of an incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityOrder lists severities from least to most severe; index is the rank.
var severityOrder = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the ordinal of s (low=0 .. critical=3), or -1 for unknown values.
func (s Severity) Rank() int {
	return slices.Index(severityOrder, s)
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Rank() >= 0 }

// Status tracks where an incident is in its lifecycle.
type Status string

const (
	// StatusOpen means created, no one (human or automation) has picked it up yet
	StatusOpen Status = "open"

	// StatusInvestigating means someone is looking at it
	StatusInvestigating Status = "investigating"

	// StatusIdentified means the cause is known
	StatusIdentified Status = "identified"

	// StatusMonitoring means a fix is in place and being watched
	StatusMonitoring Status = "monitoring"

	// StatusResolved means closed out
	StatusResolved Status = "resolved"
)

var statuses = []Status{StatusOpen, StatusInvestigating, StatusIdentified, StatusMonitoring, StatusResolved}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return slices.Contains(statuses, s) }

// Well-known timeline values.
const (
	EventCreated           = "Incident created"
	EventManualUpdate      = "Manual update"
	EventAutomatedResponse = "Automated Response"

	UserSystem     = "system"
	UserAutomation = "automation"

	// DefaultTitle is used when an alert batch carries no summary annotation.
	DefaultTitle = "Unknown incident"
)

// TimelineEntry is one immutable fact in an incident's history.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Details   string    `json:"details"`
	User      string    `json:"user"`
}

// Incident is the canonical record of an operational problem.
type Incident struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Severity    Severity        `json:"severity"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Alerts      []alert.Alert   `json:"alerts"`
	Timeline    []TimelineEntry `json:"timeline"`
	AssignedTo  *string         `json:"assigned_to"`
	Resolution  *string         `json:"resolution"`
}

// Clone returns a deep copy so stored records are never shared with callers.
func (i *Incident) Clone() *Incident {
	cp := *i
	cp.Alerts = make([]alert.Alert, len(i.Alerts))
	for n, a := range i.Alerts {
		cp.Alerts[n] = a.Clone()
	}
	cp.Timeline = slices.Clone(i.Timeline)
	if i.AssignedTo != nil {
		v := *i.AssignedTo
		cp.AssignedTo = &v
	}
	if i.Resolution != nil {
		v := *i.Resolution
		cp.Resolution = &v
	}
	return &cp
}

// Patch is a partial update. Absent fields are left untouched; null clears
// AssignedTo and Resolution and is rejected for the other fields.
type Patch struct {
	Title       Field[string]   `json:"title,omitzero"`
	Description Field[string]   `json:"description,omitzero"`
	Severity    Field[Severity] `json:"severity,omitzero"`
	Status      Field[Status]   `json:"status,omitzero"`
	AssignedTo  Field[string]   `json:"assigned_to,omitzero"`
	Resolution  Field[string]   `json:"resolution,omitzero"`
}

// TimelineInput is a caller-supplied timeline entry; empty Event and User get defaults.
type TimelineInput struct {
	Event   string `json:"event"`
	Details string `json:"details"`
	User    string `json:"user"`
}

// CreateResult is the outcome of submitting an alert batch.
type CreateResult struct {
	ID       string
	Incident *Incident
	Skipped  bool
	Reason   string
}

// Stats is the dashboard aggregate.
type Stats struct {
	Total    int         `json:"total_incidents"`
	Open     int         `json:"open_incidents"`
	Critical int         `json:"critical_incidents"`
	Recent   []*Incident `json:"recent_incidents"`
}
