// Package slack posts incident escalations to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/response"
)

const (
	maxDetailsLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier sends escalations to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Escalate only logs.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Escalate implements response.Notifier.
func (n *Notifier) Escalate(ctx context.Context, e *response.Escalation) error {
	if n.webhookURL == "" {
		n.logger.Info(ctx, "slack webhook not configured, escalation not posted", "incident_id", e.IncidentID)
		return nil
	}

	body, err := json.Marshal(buildMessage(e))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(e *response.Escalation) map[string]any {
	return map[string]any{
		"text": fmt.Sprintf("Escalation: %s", e.Title),
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Escalation: %s", severityEmoji(e.Severity), e.Title),
				},
			},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", e.Severity)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Rule:* %s", e.Rule)},
				},
			},
			{"type": "divider"},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Automated response*\n\n%s", truncate(e.Details, maxDetailsLen)),
				},
			},
			contextBlock(e),
		},
	}
}

func contextBlock(e *response.Escalation) map[string]any {
	ts := e.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("warden • incident %s • %s", e.IncidentID, ts.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func severityEmoji(s incident.Severity) string {
	switch s {
	case incident.SeverityCritical, incident.SeverityHigh:
		return "\U0001f534" // red circle
	case incident.SeverityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
