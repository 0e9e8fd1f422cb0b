// Package alert holds the Alertmanager-style webhook payload accepted by the incident API.
package alert

import (
	"maps"
	"time"
)

// StatusResolved marks a webhook batch whose alerts have all cleared.
const StatusResolved = "resolved"

// Webhook is one alert batch as delivered by the alerting pipeline.
type Webhook struct {
	Version           string            `json:"version,omitempty"`
	GroupKey          string            `json:"groupKey,omitempty"`
	Status            string            `json:"status"`
	Receiver          string            `json:"receiver,omitempty"`
	CommonLabels      map[string]string `json:"commonLabels,omitempty"`
	CommonAnnotations Annotations       `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL,omitempty"`
	Alerts            []Alert           `json:"alerts"`
}

// Annotations are the batch-wide annotations an incident title and description are taken from.
type Annotations struct {
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
}

// Alert is a single raw alert, kept verbatim on the incident.
type Alert struct {
	Status       string            `json:"status,omitempty"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	StartsAt     time.Time         `json:"startsAt,omitzero"`
	EndsAt       time.Time         `json:"endsAt,omitzero"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
}

// Severity returns the severity label, or "" when unset.
func (a Alert) Severity() string { return a.Labels["severity"] }

// Service returns the service label, or "" when unset.
func (a Alert) Service() string { return a.Labels["service"] }

// Resolved reports whether the whole batch is resolved.
func (w *Webhook) Resolved() bool { return w.Status == StatusResolved }

// Clone returns a deep copy of the alert so callers can't mutate stored labels.
func (a Alert) Clone() Alert {
	cp := a
	cp.Labels = maps.Clone(a.Labels)
	cp.Annotations = maps.Clone(a.Annotations)
	return cp
}
