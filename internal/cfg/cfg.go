// Package cfg holds the application flags of each warden binary. Every struct
// follows the RegisterFlags/Validate convention so main can combine it with the
// go-core package configs and fill it from WARDEN_* environment variables.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/linnemanlabs/warden/internal/target"
)

// Lifecycle is the drain/shutdown budget shared by the long-running binaries.
type Lifecycle struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
}

func (c *Lifecycle) RegisterFlags(fs *flag.FlagSet, drainDefault int) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", drainDefault, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
}

func (c *Lifecycle) Validate() error {
	var errs []error
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	return errors.Join(errs...)
}

// Dispatch configures the response dispatcher and the target it acts on.
type Dispatch struct {
	TargetURL       string
	PollInterval    time.Duration
	PollBackoff     time.Duration
	HealthTimeout   time.Duration
	CallTimeout     time.Duration
	SlackWebhookURL string
}

func (c *Dispatch) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.TargetURL, "target-url", "http://localhost:5000", "base URL of the monitored service remediation acts on")
	fs.DurationVar(&c.PollInterval, "poll-interval", 10*time.Second, "time between incident poll cycles")
	fs.DurationVar(&c.PollBackoff, "poll-backoff", 5*time.Second, "wait before retrying after a failed incident fetch")
	fs.DurationVar(&c.HealthTimeout, "health-timeout", 3*time.Second, "timeout for a single target health probe")
	fs.DurationVar(&c.CallTimeout, "call-timeout", 10*time.Second, "timeout for a single remediation call to the target")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for escalations (empty = log only)")
}

func (c *Dispatch) Validate() error {
	var errs []error
	if err := validURL("TARGET_URL", c.TargetURL); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid POLL_INTERVAL %s (must be > 0)", c.PollInterval))
	}
	if c.PollBackoff <= 0 {
		errs = append(errs, fmt.Errorf("invalid POLL_BACKOFF %s (must be > 0)", c.PollBackoff))
	}
	if c.HealthTimeout <= 0 || c.HealthTimeout >= c.PollInterval {
		errs = append(errs, fmt.Errorf("invalid HEALTH_TIMEOUT %s (must be > 0 and below POLL_INTERVAL)", c.HealthTimeout))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid CALL_TIMEOUT %s (must be > 0)", c.CallTimeout))
	}
	if c.SlackWebhookURL != "" {
		if err := validURL("SLACK_WEBHOOK_URL", c.SlackWebhookURL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Server configures cmd/server.
type Server struct {
	Lifecycle
	Dispatch

	APIPort         int
	APIToken        string
	EnableResponder bool
}

// RegisterFlags binds Server fields to the given FlagSet with defaults inline
func (c *Server) RegisterFlags(fs *flag.FlagSet) {
	c.Lifecycle.RegisterFlags(fs, 60)
	c.Dispatch.RegisterFlags(fs)
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 (empty = open API)")
	fs.BoolVar(&c.EnableResponder, "enable-responder", false, "run the response dispatcher inside the server process")
}

// Validate checks all configuration fields for correctness.
func (c *Server) Validate() error {
	errs := []error{c.Lifecycle.Validate()}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}
	// dispatch flags only matter when the dispatcher runs here
	if c.EnableResponder {
		errs = append(errs, c.Dispatch.Validate())
	}
	return errors.Join(errs...)
}

// API locates the incident API for the out-of-process binaries.
type API struct {
	APIURL     string
	APIToken   string
	APITimeout time.Duration
}

func (c *API) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.APIURL, "api-url", "http://localhost:8080", "base URL of the warden incident API")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token for the incident API")
	fs.DurationVar(&c.APITimeout, "api-timeout", 10*time.Second, "timeout for a single incident API call")
}

func (c *API) Validate() error {
	var errs []error
	if err := validURL("API_URL", c.APIURL); err != nil {
		errs = append(errs, err)
	}
	if c.APITimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid API_TIMEOUT %s (must be > 0)", c.APITimeout))
	}
	return errors.Join(errs...)
}

// Responder configures cmd/responder.
type Responder struct {
	Dispatch
	API

	ShutdownBudgetSeconds int
}

func (c *Responder) RegisterFlags(fs *flag.FlagSet) {
	c.Dispatch.RegisterFlags(fs)
	c.API.RegisterFlags(fs)
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown (1..300)")
}

func (c *Responder) Validate() error {
	errs := []error{c.Dispatch.Validate(), c.API.Validate()}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	return errors.Join(errs...)
}

// Postmortem configures cmd/postmortem.
type Postmortem struct {
	API

	OutputDir string
}

func (c *Postmortem) RegisterFlags(fs *flag.FlagSet) {
	c.API.RegisterFlags(fs)
	fs.StringVar(&c.OutputDir, "output-dir", ".", "directory the postmortem files are written to")
}

func (c *Postmortem) Validate() error {
	errs := []error{c.API.Validate()}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("OUTPUT_DIR is required"))
	}
	return errors.Join(errs...)
}

// Target configures cmd/target, the simulated monitored service.
type Target struct {
	Lifecycle

	Port         int
	FailureModes string
}

func (c *Target) RegisterFlags(fs *flag.FlagSet) {
	c.Lifecycle.RegisterFlags(fs, 5)
	fs.IntVar(&c.Port, "http-port", 5000, "listen TCP port (1..65535)")
	fs.StringVar(&c.FailureModes, "failure-modes", "", "comma-separated fault modes enabled at startup")
}

func (c *Target) Validate() error {
	errs := []error{c.Lifecycle.Validate()}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.Port))
	}
	for _, m := range c.Modes() {
		if !m.Valid() {
			errs = append(errs, fmt.Errorf("invalid FAILURE_MODES entry %q", m))
		}
	}
	return errors.Join(errs...)
}

// Modes splits FailureModes, dropping blanks.
func (c *Target) Modes() []target.Mode {
	var out []target.Mode
	for _, s := range strings.Split(c.FailureModes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, target.Mode(s))
		}
	}
	return out
}

func validURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q (must be an http(s) URL)", name, raw)
	}
	return nil
}
