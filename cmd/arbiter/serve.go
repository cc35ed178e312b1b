package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/arbiter/pkg/audit/verify"
	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/inbox"
	arbitertls "mercator-hq/arbiter/pkg/security/tls"
	"mercator-hq/arbiter/pkg/server"
	"mercator-hq/arbiter/pkg/telemetry/health"
)

type serveFlags struct {
	listenAddress string
	inbox         bool
	dryRun        bool
}

func newServeCmd(g *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decision API",
		Long: `Start the HTTP decision API.

The server loads the rulebook, opens the audit store, optionally verifies
the audit chain, and serves until interrupted. Scheduled chain
verification runs on audit.verify_schedule.

Examples:
  # Start with defaults
  arbiter serve

  # Start with a config file and a different address
  arbiter serve --config /etc/arbiter/arbiter.yaml --listen 0.0.0.0:8080

  # Also decide requests dropped into the configured inbox
  arbiter serve --inbox

  # Validate config and rulebook without serving
  arbiter serve --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().BoolVar(&flags.inbox, "inbox", false, "also watch the configured inbox directory")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "validate config and rulebook without serving")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalFlags, flags *serveFlags) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, g, cmd.ErrOrStderr(), needAll)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if flags.listenAddress != "" {
		cfg.Server.ListenAddress = flags.listenAddress
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Arbiter v%s\n", Version)
	fmt.Fprintf(out, "✓ Rulebook loaded from %s (%d policies)\n", a.source.Describe(), a.rulebook.Len())
	fmt.Fprintf(out, "✓ Audit store ready (%s, %d entries)\n", cfg.Audit.Backend, a.audit.LastSequence())

	scheduler := verify.NewScheduler(a.audit, cfg.Audit.VerifySchedule,
		verify.WithRecorder(a.collector),
		verify.WithLogger(a.logger),
	)
	if cfg.Audit.VerifyOnStart {
		result, err := scheduler.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("audit verification failed: %w", err)
		}
		if !result.Valid() {
			return fmt.Errorf("audit chain is broken at entry %d: %s", result.Broken.Sequence, result.Broken.Reason)
		}
		fmt.Fprintf(out, "✓ Audit chain verified (%d entries)\n", result.Entries)
	}

	if flags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	deps := server.Deps{
		Decider:  a.governor,
		Audit:    a.audit,
		Recorder: a.collector,
		Logger:   a.logger,
		Checks: map[string]health.CheckFunc{
			"audit_chain": chainCheck(scheduler),
		},
	}
	if a.tracer.Enabled() {
		deps.Tracer = a.tracer.Tracer()
	}
	if cfg.Telemetry.Metrics.Enabled {
		deps.Metrics = a.collector.Handler()
		deps.MetricsPath = cfg.Telemetry.Metrics.Path
	}
	scheme := "http"
	if tlsCfg := cfg.Server.TLS; tlsCfg.Enabled {
		reloader := arbitertls.NewCertificateReloader(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.ReloadInterval, a.logger)
		if err := reloader.Start(ctx); err != nil {
			return cli.NewConfigError("server.tls", err.Error())
		}
		deps.TLSConfig, err = arbitertls.NewServerConfig(tlsCfg, reloader)
		if err != nil {
			return cli.NewConfigError("server.tls", err.Error())
		}
		scheme = "https"
	}
	srv, err := server.New(&cfg.Server, deps)
	if err != nil {
		return err
	}

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start verification scheduler: %w", err)
	}
	defer scheduler.Stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Start(gctx) })

	if flags.inbox {
		w, err := inbox.New(&cfg.Inbox, a.governor, a.logger)
		if err != nil {
			return err
		}
		group.Go(func() error { return w.Run(gctx) })
		fmt.Fprintf(out, "✓ Watching inbox %s\n", cfg.Inbox.Dir)
	}

	fmt.Fprintf(out, "✓ Listening on %s://%s\n", scheme, cfg.Server.ListenAddress)
	if deps.Metrics != nil {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, deps.MetricsPath)
	}
	if cfg.Server.TLS.ClientCAFile != "" && deps.TLSConfig != nil {
		fmt.Fprintln(out, "✓ Mutual TLS required")
	}
	if cfg.Server.Auth.Enabled {
		fmt.Fprintf(out, "✓ API key auth: %d key(s)\n", len(cfg.Server.Auth.Keys))
	}
	if a.tracer.Enabled() {
		fmt.Fprintf(out, "✓ Tracing to %s\n", cfg.Telemetry.Tracing.Endpoint)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := group.Wait(); err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// chainCheck fails readiness once a verification run reports a broken
// chain. A scheduler that has not run yet is treated as ready.
func chainCheck(s *verify.Scheduler) health.CheckFunc {
	return func(context.Context) error {
		result, err := s.LastResult()
		if err != nil {
			return err
		}
		if result != nil && result.Broken != nil {
			return fmt.Errorf("audit chain broken at entry %d: %s", result.Broken.Sequence, result.Broken.Reason)
		}
		return nil
	}
}
