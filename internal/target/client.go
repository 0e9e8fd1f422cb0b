// Package target talks to, and simulates, the monitored service that automated
// responses act upon.
package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultHealthTimeout bounds a single health probe.
	DefaultHealthTimeout = 3 * time.Second

	// DefaultCallTimeout bounds remediation calls so one slow target can't stall a poll cycle.
	DefaultCallTimeout = 10 * time.Second
)

// Mode is a fault the monitored service can be told to simulate.
type Mode string

const (
	ModeHighLatency          Mode = "high_latency"
	ModeDatabaseErrors       Mode = "database_errors"
	ModeMemoryLeak           Mode = "memory_leak"
	ModeCPUSpike             Mode = "cpu_spike"
	ModeIntermittentFailures Mode = "intermittent_failures"
)

// Modes lists every known fault mode.
var Modes = []Mode{ModeHighLatency, ModeDatabaseErrors, ModeMemoryLeak, ModeCPUSpike, ModeIntermittentFailures}

// Valid reports whether m is a known fault mode.
func (m Mode) Valid() bool { return slices.Contains(Modes, m) }

// FailureModeRequest is the body of POST /admin/failure-mode.
type FailureModeRequest struct {
	Mode    Mode `json:"mode"`
	Enabled bool `json:"enabled"`
}

// Client calls the monitored service's health and admin endpoints.
type Client struct {
	endpoint      string
	httpClient    *http.Client
	healthTimeout time.Duration
}

// NewClient creates a client for the service at endpoint. Zero timeouts use the defaults.
func NewClient(endpoint string, callTimeout, healthTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   callTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		healthTimeout: healthTimeout,
	}
}

// Health probes GET /health. A reachable service answering non-200 is reported
// as unhealthy with a nil error; transport failures return the error.
func (c *Client) Health(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	u, err := c.url("health")
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health probe failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode == http.StatusOK, nil
}

// SetFailureMode toggles a fault mode. Any non-2xx answer is an error.
func (c *Client) SetFailureMode(ctx context.Context, mode Mode, enabled bool) error {
	body, err := json.Marshal(FailureModeRequest{Mode: mode, Enabled: enabled})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	u, err := c.url("admin", "failure-mode")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("set failure mode %s: %w", mode, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("target returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}

// url resolves path segments under the endpoint, keeping any base path it carries.
func (c *Client) url(elem ...string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	return u.JoinPath(elem...).String(), nil
}
