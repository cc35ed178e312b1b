package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/storage"
	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/governance/coordinator"
	"mercator-hq/arbiter/pkg/governance/governor"
	"mercator-hq/arbiter/pkg/governance/registry"
	"mercator-hq/arbiter/pkg/rulebook"
	"mercator-hq/arbiter/pkg/rulebook/source"
	"mercator-hq/arbiter/pkg/security/secrets"
	"mercator-hq/arbiter/pkg/telemetry/logging"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
	"mercator-hq/arbiter/pkg/telemetry/tracing"
)

// app holds the components a command runs against. Fields a command did
// not ask for stay nil.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	collector *metrics.Collector
	tracer    *tracing.Tracer

	audit    *audit.Log
	source   source.Source
	rulebook *rulebook.Rulebook
	registry *registry.Registry
	governor *governor.Governor
}

// needs selects which parts of the app a command builds.
type needs struct {
	audit    bool
	rulebook bool
}

var needAll = needs{audit: true, rulebook: true}

// loadConfig reads the config file (or the defaults), applies ARBITER_*
// environment overrides and the --log-level flag.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(flags.configFile)
	if err != nil {
		return nil, cli.NewConfigError(flags.configFile, err.Error())
	}
	if flags.logLevel != "" {
		if _, err := logging.ParseLevel(flags.logLevel); err != nil {
			return nil, cli.NewConfigError("--log-level", err.Error())
		}
		cfg.Telemetry.Logging.Level = flags.logLevel
	}
	return cfg, nil
}

// newApp wires configuration, logging, metrics, the audit log and the
// governor. Logs go to logOut so command output on stdout stays clean.
func newApp(ctx context.Context, flags *globalFlags, logOut io.Writer, n needs) (a *app, err error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging, logOut))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}

	sm, err := secrets.FromConfig(cfg.Secrets, logger)
	if err != nil {
		return nil, cli.NewConfigError("secrets.dir", err.Error())
	}
	if err := sm.Resolve(ctx, cfg.SecretFields()...); err != nil {
		return nil, cli.NewConfigError("secrets", err.Error())
	}

	a = &app{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing, Version); err != nil {
		return nil, cli.NewConfigError("telemetry.tracing", err.Error())
	}

	if n.audit {
		if a.audit, err = openAudit(ctx, cfg, logger, a.collector); err != nil {
			return nil, err
		}
	}
	if n.rulebook {
		if a.source, err = source.New(&cfg.Policies, logger); err != nil {
			return nil, cli.NewConfigError("policies.source", err.Error())
		}
		if a.rulebook, err = source.LoadRulebook(ctx, a.source, rulebook.WithLogger(logger)); err != nil {
			return nil, fmt.Errorf("failed to load rulebook: %w", err)
		}
		a.registry = registry.New()
		if err := a.rulebook.RegisterAll(a.registry); err != nil {
			return nil, fmt.Errorf("failed to register policies: %w", err)
		}
		a.registry.Seal()
		a.collector.SetRegisteredPolicies(a.registry.Count())
	}
	if n.audit && n.rulebook {
		coord := coordinator.New(coordinator.Config{
			PolicyTimeout:  cfg.Governance.PolicyTimeout(),
			WorkerPoolSize: cfg.Governance.WorkerPoolSize,
		}, coordinator.WithLogger(logger),
			coordinator.WithRecorder(a.collector),
			coordinator.WithTracer(a.tracer.Tracer()),
		)

		a.governor, err = governor.New(a.registry, coord, a.audit,
			governor.WithLogger(logger),
			governor.WithRecorder(a.collector),
			governor.WithTracer(a.tracer.Tracer()),
		)
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("arbiter initialized",
		"audit_backend", cfg.Audit.Backend,
		"policy_source", cfg.Policies.Source,
	)
	return a, nil
}

func openAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger, rec audit.Recorder) (*audit.Log, error) {
	sink, err := storage.Open(ctx, storage.Config{
		Backend:        cfg.Audit.Backend,
		Path:           cfg.Audit.StorePath,
		SQLiteDriver:   cfg.Audit.SQLite.Driver,
		BusyTimeout:    cfg.Audit.SQLite.BusyTimeout,
		PostgresDSN:    cfg.Audit.Postgres.DSN,
		RedisAddress:   cfg.Audit.Redis.Address,
		RedisPassword:  cfg.Audit.Redis.Password,
		RedisDB:        cfg.Audit.Redis.DB,
		RedisStream:    cfg.Audit.Redis.Stream,
		ConnectRetries: uint64(max(cfg.Audit.Postgres.ConnectRetries, 0)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}

	log, err := audit.New(ctx, sink, audit.WithLogger(logger), audit.WithRecorder(rec))
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return log, nil
}

// Close releases the audit store and flushes pending spans.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit log: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}
	return errors.Join(errs...)
}
