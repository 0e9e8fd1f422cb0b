// Postmortem fetches one incident from the warden API and writes its postmortem
// as postmortem_<id>.json and postmortem_<id>.md.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/warden/internal/apiclient"
	wc "github.com/linnemanlabs/warden/internal/cfg"
	"github.com/linnemanlabs/warden/internal/postmortem"
)

const appName = "warden"
const component = "postmortem"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component

	fs := flag.NewFlagSet(component, flag.ContinueOnError)
	var (
		appCfg wc.Postmortem
		logCfg log.Config
	)
	appCfg.RegisterFlags(fs)
	logCfg.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags] <incident-id>\n", component)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one incident id is required")
	}
	id := fs.Arg(0)

	cfg.FillFromEnv(fs, "WARDEN_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(appCfg.Validate(), logCfg.Validate()); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)

	client := apiclient.New(appCfg.APIURL, appCfg.APIToken, appCfg.APITimeout)
	pm, err := postmortem.New(client, L).Generate(ctx, id)
	if err != nil {
		if errors.Is(err, postmortem.ErrNotFound) {
			return fmt.Errorf("incident %s not found", id)
		}
		return err
	}

	files, err := postmortem.Write(appCfg.OutputDir, pm)
	if err != nil {
		return err
	}

	L.Info(ctx, "postmortem written", "incident_id", id, "json", files.JSON, "markdown", files.Markdown)
	fmt.Fprintf(stdout, "Saved JSON: %s\nSaved Markdown: %s\n", files.JSON, files.Markdown)
	return nil
}
