// Package apiclient is an HTTP client for the incident API. It lets the response
// dispatcher and the postmortem generator run outside the server process.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/warden/internal/incident"
)

// DefaultTimeout bounds one API call.
const DefaultTimeout = 10 * time.Second

// Client calls the incident API at a base URL.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// New creates a client for the API at endpoint. token, if set, is sent as a bearer
// token. A zero timeout uses DefaultTimeout.
func New(endpoint, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// List fetches every incident.
func (c *Client) List(ctx context.Context) ([]*incident.Incident, error) {
	var out []*incident.Incident
	if err := c.do(ctx, http.MethodGet, nil, &out, "incidents"); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return out, nil
}

// Get fetches one incident. A 404 is reported as incident.ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*incident.Incident, error) {
	var out incident.Incident
	if err := c.do(ctx, http.MethodGet, nil, &out, "incidents", id); err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}
	return &out, nil
}

// Update sends a partial update.
func (c *Client) Update(ctx context.Context, id string, p incident.Patch) (*incident.Incident, error) {
	var out incident.Incident
	if err := c.do(ctx, http.MethodPatch, p, &out, "incidents", id); err != nil {
		return nil, fmt.Errorf("update incident %s: %w", id, err)
	}
	return &out, nil
}

// AppendTimeline adds a timeline entry.
func (c *Client) AppendTimeline(ctx context.Context, id string, in incident.TimelineInput) (*incident.TimelineEntry, error) {
	var out incident.TimelineEntry
	if err := c.do(ctx, http.MethodPost, in, &out, "incidents", id, "timeline"); err != nil {
		return nil, fmt.Errorf("append timeline %s: %w", id, err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method string, in, out any, path ...string) error {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	u := base.JoinPath(append([]string{"api", "v1"}, path...)...)

	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return incident.ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s", incident.ErrInvalid, bytes.TrimSpace(msg))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("incident api returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
