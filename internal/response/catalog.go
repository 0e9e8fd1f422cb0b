package response

import (
	"context"
	"strings"
	"unicode"

	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/target"
)

// Target is the monitored service as seen by remediation handlers.
type Target interface {
	Health(ctx context.Context) (bool, error)
	SetFailureMode(ctx context.Context, mode target.Mode, enabled bool) error
}

// Handler performs the automated first response for one class of incident.
// Handle never returns an error; every failure is reported as an Outcome.
type Handler interface {
	Handle(ctx context.Context, inc *incident.Incident) Result
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, inc *incident.Incident) Result

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, inc *incident.Incident) Result { return f(ctx, inc) }

// Rule pairs a title key with its handler.
type Rule struct {
	Key     string
	Handler Handler
}

// Catalog is an ordered rule list; the first rule whose key appears in the title wins.
type Catalog []Rule

// Catalog keys, in match order.
const (
	KeyHighErrorRate              = "HighErrorRate"
	KeyHighLatency                = "HighLatency"
	KeyServiceDown                = "ServiceDown"
	KeyDatabaseConnectionFailures = "DatabaseConnectionFailures"
)

// DefaultCatalog returns the built-in remediation catalog acting on t.
func DefaultCatalog(t Target) Catalog {
	return Catalog{
		{Key: KeyHighErrorRate, Handler: DisableMode(t, target.ModeIntermittentFailures)},
		{Key: KeyHighLatency, Handler: DisableMode(t, target.ModeHighLatency)},
		{Key: KeyServiceDown, Handler: ProbeAndEscalate(t)},
		{Key: KeyDatabaseConnectionFailures, Handler: DisableMode(t, target.ModeDatabaseErrors)},
	}
}

// Match returns the first rule whose key occurs in title. Comparison ignores case,
// whitespace and punctuation, so "High Error Rate" matches HighErrorRate.
func (c Catalog) Match(title string) (Rule, bool) {
	t := normalize(title)
	for _, r := range c {
		if strings.Contains(t, normalize(r.Key)) {
			return r, true
		}
	}
	return Rule{}, false
}

func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}
