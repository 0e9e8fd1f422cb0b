package incident

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/warden/internal/alert"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/incident")

// recentLimit is how many incidents DashboardStats returns as recent.
const recentLimit = 5

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs overrides incident ID generation, mainly for tests.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// Service is the business boundary for incident lifecycle operations.
type Service struct {
	store   Store
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

// NewService creates a new incident service. metrics may be nil.
func NewService(store Store, logger log.Logger, metrics *Metrics, opts ...Option) *Service {
	if store == nil {
		panic(xerrors.New("incident store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		newID:   func() string { return ulid.Make().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create opens an incident for a non-resolved alert batch. Resolved batches are
// acknowledged and skipped without touching the store.
func (s *Service) Create(ctx context.Context, wh *alert.Webhook) (*CreateResult, error) {
	if wh.Resolved() {
		s.metrics.submit("resolved")
		return &CreateResult{Skipped: true, Reason: "resolved"}, nil
	}

	ctx, span := tracer.Start(ctx, "incident.Create")
	defer span.End()

	now := s.now()
	summary := wh.CommonAnnotations.Summary
	title := strings.TrimSpace(summary)
	if title == "" {
		title = DefaultTitle
	}

	alerts := make([]alert.Alert, len(wh.Alerts))
	for i, a := range wh.Alerts {
		alerts[i] = a.Clone()
	}

	inc := &Incident{
		ID:          s.newID(),
		Title:       title,
		Description: wh.CommonAnnotations.Description,
		Severity:    AggregateSeverity(alerts),
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		Alerts:      alerts,
		Timeline: []TimelineEntry{{
			Timestamp: now,
			Event:     EventCreated,
			Details:   "Alert received: " + summary,
			User:      UserSystem,
		}},
	}

	span.SetAttributes(
		attribute.String("warden.incident.id", inc.ID),
		attribute.String("warden.incident.severity", string(inc.Severity)),
		attribute.Int("warden.incident.alerts", len(alerts)),
	)

	if err := s.store.Create(ctx, inc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.submit("error")
		return nil, fmt.Errorf("create incident: %w", err)
	}

	s.metrics.submit("created")
	s.metrics.created(inc.Severity)
	s.logger.Info(ctx, "incident created",
		"incident_id", inc.ID,
		"title", inc.Title,
		"severity", inc.Severity,
		"alerts", len(alerts),
	)

	return &CreateResult{ID: inc.ID, Incident: inc.Clone()}, nil
}

// Update applies a partial update. Each recognized field present in p is overwritten
// and recorded as its own timeline entry; updated_at is refreshed even when p is empty.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Incident, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "incident.Update", trace.WithAttributes(
		attribute.String("warden.incident.id", id),
	))
	defer span.End()

	var fields []string
	updated, ok, err := s.store.Update(ctx, id, func(inc *Incident) error {
		now := s.now()
		fields = p.apply(inc, now)
		touch(inc, now)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("update incident %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("update incident %s: %w", id, ErrNotFound)
	}

	s.metrics.updated(fields)
	if len(fields) > 0 {
		s.logger.Info(ctx, "incident updated", "incident_id", id, "fields", fields, "status", updated.Status)
	}
	return updated, nil
}

// AppendTimeline adds a free-form entry without changing any other field.
func (s *Service) AppendTimeline(ctx context.Context, id string, in TimelineInput) (*TimelineEntry, error) {
	if in.Event == "" {
		in.Event = EventManualUpdate
	}
	if in.User == "" {
		in.User = UserSystem
	}

	var entry TimelineEntry
	_, ok, err := s.store.Update(ctx, id, func(inc *Incident) error {
		now := s.now()
		entry = TimelineEntry{Timestamp: now, Event: in.Event, Details: in.Details, User: in.User}
		inc.Timeline = append(inc.Timeline, entry)
		touch(inc, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append timeline %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("append timeline %s: %w", id, ErrNotFound)
	}

	s.metrics.appended(in.User)
	return &entry, nil
}

// Get retrieves an incident by ID.
func (s *Service) Get(ctx context.Context, id string) (*Incident, error) {
	inc, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("get incident %s: %w", id, ErrNotFound)
	}
	return inc, nil
}

// List returns every incident in creation order.
func (s *Service) List(ctx context.Context) ([]*Incident, error) {
	return s.store.List(ctx)
}

// DashboardStats reports totals and the most recently created incidents.
func (s *Service) DashboardStats(ctx context.Context) (*Stats, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}

	st := &Stats{Total: len(all)}
	for _, inc := range all {
		if inc.Status != StatusResolved {
			st.Open++
		}
		if inc.Severity == SeverityCritical {
			st.Critical++
		}
	}

	// newest creation order first, so the stable sort breaks timestamp ties the same way
	recent := slices.Clone(all)
	slices.Reverse(recent)
	slices.SortStableFunc(recent, func(a, b *Incident) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	st.Recent = recent

	s.metrics.unresolved(st.Open)
	return st, nil
}

// Validate rejects enumeration values outside the known sets and nulls on fields
// that cannot be empty. Transitions between known statuses are not restricted.
func (p Patch) Validate() error {
	switch {
	case p.Title.Null():
		return fmt.Errorf("%w: title cannot be null", ErrInvalid)
	case p.Description.Null():
		return fmt.Errorf("%w: description cannot be null", ErrInvalid)
	case p.Severity.Null():
		return fmt.Errorf("%w: severity cannot be null", ErrInvalid)
	case p.Status.Null():
		return fmt.Errorf("%w: status cannot be null", ErrInvalid)
	}
	if p.Severity.Value != nil && !p.Severity.Value.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalid, *p.Severity.Value)
	}
	if p.Status.Value != nil && !p.Status.Value.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, *p.Status.Value)
	}
	return nil
}

// apply writes the present fields in a fixed order and returns their names.
// Validate must have passed.
func (p Patch) apply(inc *Incident, now time.Time) []string {
	var fields []string
	record := func(field, oldVal, newVal string) {
		fields = append(fields, field)
		inc.Timeline = append(inc.Timeline, TimelineEntry{
			Timestamp: now,
			Event:     field + " updated",
			Details:   fmt.Sprintf("Changed from \"%s\" to \"%s\"", oldVal, newVal),
			User:      UserSystem,
		})
	}

	if p.Title.Set {
		old := inc.Title
		inc.Title = *p.Title.Value
		record("title", old, inc.Title)
	}
	if p.Description.Set {
		old := inc.Description
		inc.Description = *p.Description.Value
		record("description", old, inc.Description)
	}
	if p.Severity.Set {
		old := inc.Severity
		inc.Severity = *p.Severity.Value
		record("severity", string(old), string(inc.Severity))
	}
	if p.Status.Set {
		old := inc.Status
		inc.Status = *p.Status.Value
		record("status", string(old), string(inc.Status))
	}
	if p.AssignedTo.Set {
		old := optional(inc.AssignedTo)
		inc.AssignedTo = clone(p.AssignedTo.Value)
		record("assigned_to", old, optional(inc.AssignedTo))
	}
	if p.Resolution.Set {
		old := optional(inc.Resolution)
		inc.Resolution = clone(p.Resolution.Value)
		record("resolution", old, optional(inc.Resolution))
	}
	return fields
}

func clone(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// touch bumps updated_at without letting it move backwards.
func touch(inc *Incident, now time.Time) {
	if now.After(inc.UpdatedAt) {
		inc.UpdatedAt = now
	}
}

func optional(v *string) string {
	if v == nil {
		return "none"
	}
	return *v
}
