package response

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/target"
)

// Handler outcome texts.
const (
	TextFalseAlarm   = "Service is actually healthy (false alarm)"
	TextHealthFailed = "Health check failed"
	TextEscalate     = "Escalation to SRE team needed"
)

// DisableMode switches the given fault mode off on the target.
func DisableMode(t Target, mode target.Mode) Handler {
	return HandlerFunc(func(ctx context.Context, _ *incident.Incident) Result {
		if err := t.SetFailureMode(ctx, mode, false); err != nil {
			return Result{Outcomes: []Outcome{Failed(fmt.Sprintf("Failed to disable: %v", err))}}
		}
		return Result{Outcomes: []Outcome{Ok(fmt.Sprintf("Disabled %s mode", mode))}}
	})
}

// ProbeAndEscalate checks the target's health and always hands the incident to a
// human; an outage is never auto-resolved.
func ProbeAndEscalate(t Target) Handler {
	return HandlerFunc(func(ctx context.Context, _ *incident.Incident) Result {
		var probe Outcome
		healthy, err := t.Health(ctx)
		switch {
		case err != nil:
			probe = Failed(fmt.Sprintf("Health check error: %v", err))
		case !healthy:
			probe = Failed(TextHealthFailed)
		default:
			probe = Ok(TextFalseAlarm)
		}
		return Result{
			Outcomes: []Outcome{probe, Ok(TextEscalate)},
			Escalate: true,
		}
	})
}
