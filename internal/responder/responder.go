// Package responder assembles the response dispatcher from configuration and
// runs it in the background. cmd/server uses it in-process over the incident
// service; cmd/responder uses it over the HTTP API client.
package responder

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/cfg"
	"github.com/linnemanlabs/warden/internal/notify/slack"
	"github.com/linnemanlabs/warden/internal/response"
	"github.com/linnemanlabs/warden/internal/target"
)

// New builds a dispatcher acting on the target named in c. reg may be nil to
// skip metrics.
func New(c cfg.Dispatch, incidents response.Incidents, reg prometheus.Registerer, L log.Logger) *response.Dispatcher {
	var metrics *response.Metrics
	if reg != nil {
		metrics = response.NewMetrics(reg)
	}

	var notifier response.Notifier
	if c.SlackWebhookURL != "" {
		notifier = slack.New(c.SlackWebhookURL, L)
		L.Info(context.Background(), "notifier enabled", "type", "slack")
	}

	tc := target.NewClient(c.TargetURL, c.CallTimeout, c.HealthTimeout)
	return response.NewDispatcher(incidents, response.DefaultCatalog(tc), L, metrics, notifier, response.Options{
		Interval: c.PollInterval,
		Backoff:  c.PollBackoff,
	})
}

// Start runs d until ctx is cancelled or the returned stop function is called.
// stop waits for the current cycle to finish, bounded by its context.
func Start(ctx context.Context, d *response.Dispatcher) func(context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(runCtx)
	}()

	return func(stopCtx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return errors.Join(errors.New("response dispatcher did not stop in time"), stopCtx.Err())
		}
	}
}
