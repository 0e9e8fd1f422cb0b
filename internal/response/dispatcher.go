// Package response runs automated first response for newly opened incidents: it
// polls the incident store, matches each open incident against an ordered
// remediation catalog, acts on the monitored service, and records the outcome
// on the incident's timeline.
package response

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/warden/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/response")

const (
	DefaultInterval = 10 * time.Second
	DefaultBackoff  = 5 * time.Second
)

// Incidents is the slice of the incident API the dispatcher needs. It is satisfied
// in-process by *incident.Service and remotely by *apiclient.Client.
type Incidents interface {
	List(ctx context.Context) ([]*incident.Incident, error)
	Update(ctx context.Context, id string, p incident.Patch) (*incident.Incident, error)
	AppendTimeline(ctx context.Context, id string, in incident.TimelineInput) (*incident.TimelineEntry, error)
}

// Escalation is handed to the Notifier when a handler asks for a human.
type Escalation struct {
	IncidentID string
	Title      string
	Severity   incident.Severity
	Rule       string
	Details    string
	At         time.Time
}

// Notifier delivers escalations, e.g. to a chat channel.
type Notifier interface {
	Escalate(ctx context.Context, e *Escalation) error
}

// Options tunes the poll loop. Zero values use the defaults.
type Options struct {
	Interval time.Duration
	Backoff  time.Duration
}

// Dispatcher polls for open incidents and runs each through the catalog at most
// once for the lifetime of the Dispatcher.
type Dispatcher struct {
	incidents Incidents
	catalog   Catalog
	notifier  Notifier
	logger    log.Logger
	metrics   *Metrics
	interval  time.Duration
	backoff   time.Duration

	mu   sync.Mutex
	seen map[string]struct{} // incident IDs already dispatched

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewDispatcher creates a dispatcher. notifier and metrics may be nil.
func NewDispatcher(incidents Incidents, catalog Catalog, logger log.Logger, metrics *Metrics, notifier Notifier, opts Options) *Dispatcher {
	if incidents == nil {
		panic(xerrors.New("incident source is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return &Dispatcher{
		incidents: incidents,
		catalog:   catalog,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
		interval:  opts.Interval,
		backoff:   opts.Backoff,
		seen:      make(map[string]struct{}),
		sleep:     sleepCtx,
	}
}

// Run polls until ctx is cancelled. Fetch errors are logged and retried after
// the backoff; nothing else stops the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info(ctx, "response dispatcher starting",
		"interval", d.interval.String(),
		"backoff", d.backoff.String(),
		"rules", len(d.catalog),
	)

	for {
		wait := d.interval
		if err := d.Cycle(ctx); err != nil {
			d.logger.Error(ctx, err, "failed to fetch incidents, backing off", "backoff", d.backoff.String())
			wait = d.backoff
		}
		if !d.sleep(ctx, wait) {
			d.logger.Info(context.Background(), "response dispatcher stopped")
			return ctx.Err()
		}
	}
}

// Cycle runs one poll: every open incident not yet dispatched is dispatched.
// Only a failure to list incidents is returned.
func (d *Dispatcher) Cycle(ctx context.Context) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "response.Cycle")
	defer span.End()

	incs, err := d.incidents.List(ctx)
	if err != nil {
		d.metrics.pollError()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("list incidents: %w", err)
	}

	dispatched := 0
	for _, inc := range incs {
		if inc.Status != incident.StatusOpen {
			continue
		}
		if _, ok := d.Dispatch(ctx, inc); ok {
			dispatched++
		}
	}

	span.SetAttributes(
		attribute.Int("warden.response.incidents", len(incs)),
		attribute.Int("warden.response.dispatched", dispatched),
	)
	d.metrics.cycle(time.Since(start).Seconds())
	return nil
}

// Dispatch runs the matched handler for inc, records its outcome, and moves the
// incident to investigating. It returns false without doing anything if inc was
// already dispatched by this Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, inc *incident.Incident) (*Result, bool) {
	tracked, first := d.markSeen(inc.ID)
	if !first {
		return nil, false
	}

	ctx, span := tracer.Start(ctx, "response.Dispatch", trace.WithAttributes(
		attribute.String("warden.incident.id", inc.ID),
	))
	defer span.End()

	L := d.logger.With("incident_id", inc.ID, "title", inc.Title)

	var res *Result
	rule, ok := d.catalog.Match(inc.Title)
	if !ok {
		L.Info(ctx, "no automated response for incident")
		d.metrics.dispatched("none", "unmatched", tracked)
	} else {
		span.SetAttributes(attribute.String("warden.response.rule", rule.Key))
		L.Info(ctx, "responding to incident", "rule", rule.Key)

		r := rule.Handler.Handle(ctx, inc)
		r.Rule = rule.Key
		res = &r

		outcome := "ok"
		if r.Failed() {
			outcome = "failed"
		}
		d.metrics.dispatched(rule.Key, outcome, tracked)

		if _, err := d.incidents.AppendTimeline(ctx, inc.ID, incident.TimelineInput{
			Event:   incident.EventAutomatedResponse,
			Details: r.Details(),
			User:    incident.UserAutomation,
		}); err != nil {
			L.Error(ctx, err, "failed to record automated response")
		}

		if r.Escalate {
			d.escalate(ctx, L, inc, &r)
		}
	}

	status := incident.StatusInvestigating
	if _, err := d.incidents.Update(ctx, inc.ID, incident.Patch{Status: incident.Some(status)}); err != nil {
		span.RecordError(err)
		L.Error(ctx, err, "failed to move incident to investigating")
	}

	return res, true
}

// Dispatched reports whether id is in the response record.
func (d *Dispatcher) Dispatched(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

func (d *Dispatcher) markSeen(id string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return len(d.seen), false
	}
	d.seen[id] = struct{}{}
	return len(d.seen), true
}

func (d *Dispatcher) escalate(ctx context.Context, L log.Logger, inc *incident.Incident, r *Result) {
	L.Warn(ctx, "incident needs human escalation", "rule", r.Rule, "details", r.Details())
	if d.notifier == nil {
		d.metrics.escalated("skipped")
		return
	}
	err := d.notifier.Escalate(ctx, &Escalation{
		IncidentID: inc.ID,
		Title:      inc.Title,
		Severity:   inc.Severity,
		Rule:       r.Rule,
		Details:    r.Details(),
		At:         time.Now(),
	})
	if err != nil {
		d.metrics.escalated("error")
		L.Error(ctx, err, "failed to send escalation")
		return
	}
	d.metrics.escalated("sent")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
