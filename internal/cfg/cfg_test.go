package cfg

import (
	"flag"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/warden/internal/target"
)

func parse(t *testing.T, c interface{ RegisterFlags(*flag.FlagSet) }, args ...string) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
}

func TestServer_Defaults(t *testing.T) {
	t.Parallel()

	var c Server
	parse(t, &c)

	if c.DrainSeconds != 60 || c.ShutdownBudgetSeconds != 90 {
		t.Errorf("drain/budget = %d/%d, want 60/90", c.DrainSeconds, c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.EnableResponder {
		t.Error("EnableResponder should default to false")
	}
	if c.PollInterval != 10*time.Second || c.PollBackoff != 5*time.Second {
		t.Errorf("poll = %s/%s, want 10s/5s", c.PollInterval, c.PollBackoff)
	}
	if c.HealthTimeout != 3*time.Second || c.CallTimeout != 10*time.Second {
		t.Errorf("timeouts = %s/%s, want 3s/10s", c.HealthTimeout, c.CallTimeout)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestServer_Override(t *testing.T) {
	t.Parallel()

	var c Server
	parse(t, &c,
		"-http-port", "9090",
		"-api-token", "s3cret",
		"-enable-responder",
		"-target-url", "http://backend:5000",
		"-poll-interval", "30s",
	)

	if c.APIPort != 9090 || c.APIToken != "s3cret" || !c.EnableResponder {
		t.Errorf("server = %+v", c)
	}
	if c.TargetURL != "http://backend:5000" || c.PollInterval != 30*time.Second {
		t.Errorf("dispatch = %+v", c.Dispatch)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestServer_Validate(t *testing.T) {
	t.Parallel()

	valid := func() Server {
		var c Server
		parse(t, &c)
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Server)
		wantErr string
	}{
		{"port zero", func(c *Server) { c.APIPort = 0 }, "HTTP_PORT"},
		{"port too high", func(c *Server) { c.APIPort = 70000 }, "HTTP_PORT"},
		{"drain zero", func(c *Server) { c.DrainSeconds = 0 }, "DRAIN_SECONDS"},
		{"budget below drain", func(c *Server) { c.DrainSeconds = 100; c.ShutdownBudgetSeconds = 90 }, "must be greater than"},
		{"bad target with responder", func(c *Server) { c.EnableResponder = true; c.TargetURL = "backend:5000" }, "TARGET_URL"},
		{"health timeout above interval", func(c *Server) { c.EnableResponder = true; c.HealthTimeout = time.Minute }, "HEALTH_TIMEOUT"},
		{"bad slack url", func(c *Server) { c.EnableResponder = true; c.SlackWebhookURL = "ftp://x" }, "SLACK_WEBHOOK_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestServer_DispatchIgnoredWithoutResponder(t *testing.T) {
	t.Parallel()

	var c Server
	parse(t, &c, "-target-url", "")
	if err := c.Validate(); err != nil {
		t.Errorf("dispatch flags should not be checked when the responder is off: %v", err)
	}
}

func TestServer_ValidateJoinsErrors(t *testing.T) {
	t.Parallel()

	c := Server{APIPort: 0, Lifecycle: Lifecycle{DrainSeconds: 0, ShutdownBudgetSeconds: 0}}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"HTTP_PORT", "DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %q, missing %s", err, want)
		}
	}
}

func TestResponder(t *testing.T) {
	t.Parallel()

	var c Responder
	parse(t, &c)
	if c.APIURL != "http://localhost:8080" || c.APITimeout != 10*time.Second {
		t.Errorf("api = %+v", c.API)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	c.APIURL = "not a url"
	c.ShutdownBudgetSeconds = 0
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "API_URL") || !strings.Contains(err.Error(), "SHUTDOWN_BUDGET_SECONDS") {
		t.Errorf("err = %v, want API_URL and SHUTDOWN_BUDGET_SECONDS", err)
	}
}

func TestPostmortem(t *testing.T) {
	t.Parallel()

	var c Postmortem
	parse(t, &c, "-output-dir", "/tmp/pm", "-api-url", "https://warden.internal")
	if c.OutputDir != "/tmp/pm" {
		t.Errorf("OutputDir = %q", c.OutputDir)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	c.OutputDir = " "
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "OUTPUT_DIR") {
		t.Errorf("err = %v, want OUTPUT_DIR", err)
	}
}

func TestTarget(t *testing.T) {
	t.Parallel()

	var c Target
	parse(t, &c, "-failure-modes", " high_latency, ,cpu_spike")
	if c.Port != 5000 {
		t.Errorf("Port = %d, want 5000", c.Port)
	}
	want := []target.Mode{target.ModeHighLatency, target.ModeCPUSpike}
	if got := c.Modes(); !slices.Equal(got, want) {
		t.Errorf("Modes = %v, want %v", got, want)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	c.FailureModes = "high_latency,meltdown"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "meltdown") {
		t.Errorf("err = %v, want unknown mode rejected", err)
	}
}
