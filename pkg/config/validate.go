package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Maximum accepted values.
const (
	MaxWorkerPoolSize  = 1024
	MaxPolicyTimeoutMS = 10 * 60 * 1000
)

var (
	validPolicySources = map[string]bool{"builtin": true, "file": true, "git": true}
	validGitAuthTypes  = map[string]bool{"none": true, "token": true, "ssh": true}
	validAuditBackends = map[string]bool{"memory": true, "sqlite": true, "jsonl": true, "postgres": true, "redis": true}
	validSQLiteDrivers = map[string]bool{"sqlite3": true, "sqlite": true}
	validLogLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats    = map[string]bool{"json": true, "text": true}
	validSamplers      = map[string]bool{"always": true, "never": true, "ratio": true}
)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateGovernance(&cfg.Governance)...)
	errs = append(errs, validatePolicies(&cfg.Policies)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateInbox(&cfg.Inbox)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateGovernance validates evaluation settings.
func validateGovernance(cfg *GovernanceConfig) []FieldError {
	var errs []FieldError

	if cfg.PolicyTimeoutMS <= 0 {
		errs = append(errs, FieldError{
			Field:   "governance.policy_timeout_ms",
			Message: "policy timeout must be positive",
		})
	} else if cfg.PolicyTimeoutMS > MaxPolicyTimeoutMS {
		errs = append(errs, FieldError{
			Field:   "governance.policy_timeout_ms",
			Message: fmt.Sprintf("policy timeout exceeds reasonable limit (%dms)", MaxPolicyTimeoutMS),
		})
	}

	if cfg.WorkerPoolSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "governance.worker_pool_size",
			Message: "worker pool size must be positive",
		})
	} else if cfg.WorkerPoolSize > MaxWorkerPoolSize {
		errs = append(errs, FieldError{
			Field:   "governance.worker_pool_size",
			Message: fmt.Sprintf("worker pool size exceeds reasonable limit (%d)", MaxWorkerPoolSize),
		})
	}

	return errs
}

// validatePolicies validates the rulebook source configuration.
func validatePolicies(cfg *PoliciesConfig) []FieldError {
	var errs []FieldError

	if !validPolicySources[cfg.Source] {
		errs = append(errs, FieldError{
			Field:   "policies.source",
			Message: fmt.Sprintf("invalid source %q (must be one of: builtin, file, git)", cfg.Source),
		})
		return errs
	}

	switch cfg.Source {
	case "file":
		if cfg.FilePath == "" {
			errs = append(errs, FieldError{
				Field:   "policies.file_path",
				Message: "file path is required when source is file",
			})
		}
	case "git":
		errs = append(errs, validateGit(&cfg.Git)...)
	}

	return errs
}

// validateGit validates Git rulebook configuration.
func validateGit(cfg *GitPolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Repository == "" {
		errs = append(errs, FieldError{
			Field:   "policies.git.repository",
			Message: "repository is required when source is git",
		})
	}
	if cfg.Branch == "" {
		errs = append(errs, FieldError{
			Field:   "policies.git.branch",
			Message: "branch is required",
		})
	}
	if cfg.Clone.Depth < 0 {
		errs = append(errs, FieldError{
			Field:   "policies.git.clone.depth",
			Message: "clone depth must be non-negative",
		})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "policies.git.timeout",
			Message: "timeout must be positive",
		})
	}

	if !validGitAuthTypes[cfg.Auth.Type] {
		errs = append(errs, FieldError{
			Field:   "policies.git.auth.type",
			Message: fmt.Sprintf("invalid auth type %q (must be one of: none, token, ssh)", cfg.Auth.Type),
		})
	}
	if cfg.Auth.Type == "token" && cfg.Auth.Token == "" {
		errs = append(errs, FieldError{
			Field:   "policies.git.auth.token",
			Message: "token is required when auth type is token",
		})
	}
	if cfg.Auth.Type == "ssh" && cfg.Auth.SSHKeyPath == "" {
		errs = append(errs, FieldError{
			Field:   "policies.git.auth.ssh_key_path",
			Message: "ssh key path is required when auth type is ssh",
		})
	}

	return errs
}

// validateAudit validates audit storage configuration.
func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if !validAuditBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("invalid backend %q (must be one of: memory, sqlite, jsonl, postgres, redis)", cfg.Backend),
		})
	}

	switch cfg.Backend {
	case "sqlite":
		if cfg.StorePath == "" {
			errs = append(errs, FieldError{Field: "audit.store_path", Message: "store path is required for sqlite backend"})
		}
		if !validSQLiteDrivers[cfg.SQLite.Driver] {
			errs = append(errs, FieldError{
				Field:   "audit.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q (must be one of: sqlite3, sqlite)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "audit.sqlite.busy_timeout", Message: "busy timeout must be non-negative"})
		}
	case "jsonl":
		if cfg.StorePath == "" {
			errs = append(errs, FieldError{Field: "audit.store_path", Message: "store path is required for jsonl backend"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{Field: "audit.postgres.dsn", Message: "dsn is required for postgres backend"})
		}
		if cfg.Postgres.ConnectRetries < 0 {
			errs = append(errs, FieldError{Field: "audit.postgres.connect_retries", Message: "connect retries must be non-negative"})
		}
	case "redis":
		if cfg.Redis.Address == "" {
			errs = append(errs, FieldError{Field: "audit.redis.address", Message: "address is required for redis backend"})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{Field: "audit.redis.db", Message: "db must be non-negative"})
		}
	}

	if cfg.VerifySchedule != "" {
		if _, err := cron.ParseStandard(cfg.VerifySchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "audit.verify_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address: %v", err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be positive"})
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls", Message: "cert_file and key_file are required when TLS is enabled"})
		}
		if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{Field: "server.tls.min_version", Message: fmt.Sprintf("unsupported TLS version %q (must be 1.2 or 1.3)", cfg.TLS.MinVersion)})
		}
		if cfg.TLS.ReloadInterval < 0 {
			errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "reload interval must be positive"})
		}
	}

	if cfg.Auth.Enabled && len(cfg.Auth.Keys) == 0 {
		errs = append(errs, FieldError{Field: "server.auth.keys", Message: "at least one key is required when auth is enabled"})
	}
	seen := make(map[string]bool, len(cfg.Auth.Keys))
	for i, k := range cfg.Auth.Keys {
		field := fmt.Sprintf("server.auth.keys[%d]", i)
		switch {
		case k.Name == "":
			errs = append(errs, FieldError{Field: field + ".name", Message: "key name is required"})
		case k.Key == "":
			errs = append(errs, FieldError{Field: field + ".key", Message: fmt.Sprintf("key %q is empty", k.Name)})
		case seen[k.Key]:
			errs = append(errs, FieldError{Field: field + ".key", Message: fmt.Sprintf("key %q duplicates an earlier key", k.Name)})
		}
		seen[k.Key] = true
	}

	return errs
}

// validateInbox validates inbox configuration.
func validateInbox(cfg *InboxConfig) []FieldError {
	var errs []FieldError

	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "inbox.debounce", Message: "debounce must be non-negative"})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be one of: debug, info, warn, error)", cfg.Logging.Level),
		})
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be one of: json, text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}
	for i := 1; i < len(cfg.Metrics.EvaluationDurationBuckets); i++ {
		if cfg.Metrics.EvaluationDurationBuckets[i] <= cfg.Metrics.EvaluationDurationBuckets[i-1] {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.evaluation_duration_buckets",
				Message: "buckets must be strictly increasing",
			})
			break
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be one of: always, never, ratio)", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
