// Target is a fault-injectable stand-in for the service warden monitors. Fault
// modes are toggled over /admin/failure-mode; metrics are served on /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/otelx"
	v "github.com/linnemanlabs/go-core/version"

	wc "github.com/linnemanlabs/warden/internal/cfg"
	"github.com/linnemanlabs/warden/internal/sdnotify"
	"github.com/linnemanlabs/warden/internal/target"
)

const appName = "warden"
const component = "target"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var (
		appCfg   wc.Target
		httpCfg  httpserver.Config
		logCfg   log.Config
		traceCfg otelx.Config
	)
	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "WARDEN_TARGET_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		logCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx == nil {
		shutdownOtelx = func(context.Context) error { return nil }
	}

	// the simulated service exposes its own registry on the main listener,
	// like the real service it stands in for
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sim := target.NewSimulator(L, target.NewSimMetrics(reg))
	for _, m := range appCfg.Modes() {
		sim.SetMode(m, true)
		L.Warn(ctx, "failure mode enabled at startup", "mode", m)
	}

	var shutdownGate health.ShutdownGate
	readiness := health.All(shutdownGate.Probe())

	r := chi.NewRouter()
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(1024 * 16))
	r.Get("/-/ready", health.ReadyzHandler(readiness))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	sim.RegisterRoutes(r)

	var h http.Handler = r
	h = httpmw.WithLogger(L)(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/-/ready"
		}),
	)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)

	httpOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}
	httpStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.Port), h, L, httpOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start target http listener")
		return err
	}

	L.Info(ctx, "target service started", "http_port", appCfg.Port, "version", vi.Version)
	if err := sdnotify.Notify(sdnotify.Ready); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")
	_ = sdnotify.Notify(sdnotify.Stopping)
	shutdownGate.Set("draining")
	time.Sleep(time.Duration(appCfg.DrainSeconds) * time.Second)

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()
	if err := httpStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "target http server shutdown")
	}
	if err := shutdownOtelx(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	L.Info(context.Background(), "shutdown complete")
	return nil
}
