package config

import "time"

// Config is the root configuration structure for Arbiter.
// It contains the governance engine settings, the policy source, audit
// storage, the HTTP surface, the request inbox and telemetry.
type Config struct {
	// Governance contains evaluation settings shared by every decision:
	// per-policy timeout and the size of the evaluation worker pool.
	Governance GovernanceConfig `yaml:"governance"`

	// Policies selects where the rulebook is loaded from.
	Policies PoliciesConfig `yaml:"policies"`

	// Audit contains audit log storage and verification settings.
	Audit AuditConfig `yaml:"audit"`

	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Inbox contains configuration for the watched request directory.
	Inbox InboxConfig `yaml:"inbox"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures how ${secret:name} references are resolved.
	Secrets SecretsConfig `yaml:"secrets"`
}

// SecretFields returns the fields that may hold ${secret:name}
// references.
func (c *Config) SecretFields() []*string {
	fields := []*string{
		&c.Policies.Git.Auth.Token,
		&c.Policies.Git.Auth.SSHKeyPassphrase,
		&c.Audit.Postgres.DSN,
		&c.Audit.Redis.Password,
	}
	for i := range c.Server.Auth.Keys {
		fields = append(fields, &c.Server.Auth.Keys[i].Key)
	}
	return fields
}

// GovernanceConfig contains evaluation settings.
type GovernanceConfig struct {
	// PolicyTimeoutMS is the maximum time a single policy evaluation may
	// take, in milliseconds. A policy exceeding it yields UNKNOWN.
	// Default: 2000
	PolicyTimeoutMS int `yaml:"policy_timeout_ms"`

	// WorkerPoolSize bounds how many policies are evaluated concurrently
	// for one request.
	// Default: 8
	WorkerPoolSize int `yaml:"worker_pool_size"`
}

// PolicyTimeout returns PolicyTimeoutMS as a duration.
func (g GovernanceConfig) PolicyTimeout() time.Duration {
	return time.Duration(g.PolicyTimeoutMS) * time.Millisecond
}

// PoliciesConfig selects the rulebook source.
type PoliciesConfig struct {
	// Source specifies how policies are loaded.
	// Options: "builtin" (embedded default rulebook), "file", "git"
	// Default: "builtin"
	Source string `yaml:"source"`

	// FilePath is a rulebook file or a directory of rulebook files when
	// Source is "file".
	// Default: "./policies"
	FilePath string `yaml:"file_path"`

	// Git contains repository configuration used when Source is "git".
	Git GitPolicyConfig `yaml:"git"`
}

// GitPolicyConfig configures Git-based rulebook loading.
type GitPolicyConfig struct {
	// Repository URL (HTTPS or SSH).
	// Example: "https://github.com/company/governance.git"
	Repository string `yaml:"repository"`

	// Branch to check out.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path within the repository to the rulebook file or directory.
	// Default: "" (repository root)
	Path string `yaml:"path"`

	// Auth configures Git authentication.
	Auth GitAuthConfig `yaml:"auth"`

	// Clone configures repository cloning.
	Clone GitCloneConfig `yaml:"clone"`

	// Timeout bounds the clone operation.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type: "token", "ssh", "none"
	// Default: "none"
	Type string `yaml:"type"`

	// Token for HTTPS authentication. Required when Type is "token".
	Token string `yaml:"token"`

	// SSHKeyPath for SSH authentication. Required when Type is "ssh".
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase for encrypted SSH keys.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GitCloneConfig configures repository cloning.
type GitCloneConfig struct {
	// Depth for shallow clones (0 = full clone).
	// Default: 1
	Depth int `yaml:"depth"`

	// LocalPath where the repository is cloned.
	// Default: system temp directory
	LocalPath string `yaml:"local_path"`

	// CleanOnStart removes the local clone before cloning again.
	// Default: false
	CleanOnStart bool `yaml:"clean_on_start"`
}

// AuditConfig contains audit log configuration.
type AuditConfig struct {
	// Backend selects the storage sink.
	// Options: "memory", "sqlite", "jsonl", "postgres", "redis"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// StorePath is the database file (sqlite) or log file (jsonl).
	// Default: "data/audit.db"
	StorePath string `yaml:"store_path"`

	// SQLite contains SQLite-specific settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific settings.
	Postgres PostgresConfig `yaml:"postgres"`

	// Redis contains Redis stream settings.
	Redis RedisConfig `yaml:"redis"`

	// VerifySchedule is a cron expression for periodic chain verification.
	// Empty disables scheduled verification.
	// Default: "0 * * * *"
	VerifySchedule string `yaml:"verify_schedule"`

	// VerifyOnStart verifies the full chain when the service starts.
	// Default: true
	VerifyOnStart bool `yaml:"verify_on_start"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Driver selects the database/sql driver.
	// Options: "sqlite3" (mattn/go-sqlite3, cgo), "sqlite" (modernc.org/sqlite, pure Go)
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long SQLite waits for a lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	// DSN is the lib/pq connection string.
	// Example: "postgres://arbiter@db:5432/arbiter?sslmode=require"
	DSN string `yaml:"dsn"`

	// ConnectRetries is how many times an initial ping is retried.
	// Default: 5
	ConnectRetries int `yaml:"connect_retries"`
}

// RedisConfig contains Redis stream configuration.
type RedisConfig struct {
	// Address is the Redis server "host:port".
	Address string `yaml:"address"`

	// Password for AUTH (optional).
	Password string `yaml:"password"`

	// DB is the logical database number.
	DB int `yaml:"db"`

	// Stream is the stream key holding the audit entries.
	// Default: "arbiter:audit"
	Stream string `yaml:"stream"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits the size of a submitted change request.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Auth protects the /v1 routes with API keys.
	Auth AuthConfig `yaml:"auth"`

	// TLS serves the API over HTTPS.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures HTTPS for the API server.
type TLSConfig struct {
	// Enabled serves HTTPS instead of plain HTTP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum accepted TLS version ("1.2" or "1.3").
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ClientCAFile enables mutual TLS: clients must present a certificate
	// signed by one of these CAs.
	ClientCAFile string `yaml:"client_ca_file"`

	// ReloadInterval is how often the certificate files are checked for
	// changes.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	// Enabled requires a valid key on every /v1 request.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Keys are the accepted API keys.
	Keys []APIKeyConfig `yaml:"keys"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	// Name identifies the caller in logs.
	Name string `yaml:"name"`

	// Key is the secret presented as "Authorization: Bearer <key>" or in
	// the X-API-Key header.
	Key string `yaml:"key"`
}

// InboxConfig configures the watched request directory.
type InboxConfig struct {
	// Dir is the directory watched for ChangeRequest JSON files.
	// Default: "./inbox"
	Dir string `yaml:"dir"`

	// Debounce is how long a file must be quiet before it is decided.
	// Default: 250ms
	Debounce time.Duration `yaml:"debounce"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "arbiter"
	Namespace string `yaml:"namespace"`

	// EvaluationDurationBuckets defines histogram buckets for policy
	// evaluation duration (seconds).
	// Default: [0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5]
	EvaluationDurationBuckets []float64 `yaml:"evaluation_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "arbiter"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the collector connection.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// SecretsConfig configures secret resolution. Environment variables are
// consulted after the secrets directory.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name to form the
	// environment variable name.
	// Default: "ARBITER_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret, named after the secret. Files must
	// be mode 0600 or 0400.
	Dir string `yaml:"dir"`
}
