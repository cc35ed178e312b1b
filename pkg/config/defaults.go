package config

import "time"

// Default values for configuration fields.
const (
	// Governance defaults
	DefaultPolicyTimeoutMS = 2000
	DefaultWorkerPoolSize  = 8

	// Policy defaults
	DefaultPolicySource       = "builtin"
	DefaultPolicyFilePath     = "./policies"
	DefaultPolicyGitBranch    = "main"
	DefaultPolicyGitAuthType  = "none"
	DefaultPolicyGitDepth     = 1
	DefaultPolicyGitTimeout   = 30 * time.Second

	// Audit defaults
	DefaultAuditBackend       = "sqlite"
	DefaultAuditStorePath     = "data/audit.db"
	DefaultAuditSQLiteDriver  = "sqlite3"
	DefaultAuditBusyTimeout   = 5 * time.Second
	DefaultAuditPGRetries     = 5
	DefaultAuditRedisStream   = "arbiter:audit"
	DefaultAuditVerifySched   = "0 * * * *"
	DefaultAuditVerifyOnStart = true

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = int64(1048576) // 1MB

	// Inbox defaults
	DefaultInboxDir      = "./inbox"
	DefaultInboxDebounce = 250 * time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "arbiter"

	// TLS defaults
	DefaultTLSMinVersion     = "1.3"
	DefaultTLSReloadInterval = 5 * time.Minute

	// Secrets defaults
	DefaultSecretsEnvPrefix = "ARBITER_SECRET_"

	// Tracing defaults
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingService     = "arbiter"
	DefaultTracingTimeout     = 10 * time.Second
)

// DefaultEvaluationDurationBuckets are the default histogram buckets for
// policy evaluation duration, in seconds.
var DefaultEvaluationDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5}

// NewDefaultConfig returns a configuration with every field set to its
// default. Files are decoded on top of it, so fields whose zero value is
// meaningful (true booleans, the verify schedule) keep their default unless
// the file sets them.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Audit: AuditConfig{
			VerifySchedule: DefaultAuditVerifySched,
			VerifyOnStart:  DefaultAuditVerifyOnStart,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Governance defaults
	if cfg.Governance.PolicyTimeoutMS == 0 {
		cfg.Governance.PolicyTimeoutMS = DefaultPolicyTimeoutMS
	}
	if cfg.Governance.WorkerPoolSize == 0 {
		cfg.Governance.WorkerPoolSize = DefaultWorkerPoolSize
	}

	// Policy defaults
	if cfg.Policies.Source == "" {
		cfg.Policies.Source = DefaultPolicySource
	}
	if cfg.Policies.FilePath == "" {
		cfg.Policies.FilePath = DefaultPolicyFilePath
	}
	if cfg.Policies.Git.Branch == "" {
		cfg.Policies.Git.Branch = DefaultPolicyGitBranch
	}
	if cfg.Policies.Git.Auth.Type == "" {
		cfg.Policies.Git.Auth.Type = DefaultPolicyGitAuthType
	}
	if cfg.Policies.Git.Clone.Depth == 0 {
		cfg.Policies.Git.Clone.Depth = DefaultPolicyGitDepth
	}
	if cfg.Policies.Git.Timeout == 0 {
		cfg.Policies.Git.Timeout = DefaultPolicyGitTimeout
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.StorePath == "" {
		cfg.Audit.StorePath = DefaultAuditStorePath
	}
	if cfg.Audit.SQLite.Driver == "" {
		cfg.Audit.SQLite.Driver = DefaultAuditSQLiteDriver
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultAuditBusyTimeout
	}
	if cfg.Audit.Postgres.ConnectRetries == 0 {
		cfg.Audit.Postgres.ConnectRetries = DefaultAuditPGRetries
	}
	if cfg.Audit.Redis.Stream == "" {
		cfg.Audit.Redis.Stream = DefaultAuditRedisStream
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Inbox defaults
	if cfg.Inbox.Dir == "" {
		cfg.Inbox.Dir = DefaultInboxDir
	}
	if cfg.Inbox.Debounce == 0 {
		cfg.Inbox.Debounce = DefaultInboxDebounce
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.EvaluationDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.EvaluationDurationBuckets = append([]float64(nil), DefaultEvaluationDurationBuckets...)
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReloadInterval
	}
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}
