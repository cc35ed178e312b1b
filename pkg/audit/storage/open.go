package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mercator-hq/arbiter/pkg/audit"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendJSONL    = "jsonl"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures an audit sink.
type Config struct {
	Backend string

	// Path is the store location for the sqlite and jsonl backends.
	Path string

	// SQLiteDriver is DriverCGO or DriverPureGo.
	SQLiteDriver string
	BusyTimeout  time.Duration

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string

	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisStream   string

	// ConnectRetries bounds startup connection attempts for network
	// backends.
	ConnectRetries uint64
}

// Open creates the sink described by cfg.
func Open(ctx context.Context, cfg Config) (audit.Sink, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemorySink(), nil
	case "", BackendSQLite:
		sc := DefaultSQLiteConfig()
		if cfg.Path != "" {
			sc.Path = cfg.Path
		}
		if cfg.SQLiteDriver != "" {
			sc.Driver = cfg.SQLiteDriver
		}
		if cfg.BusyTimeout > 0 {
			sc.BusyTimeout = cfg.BusyTimeout
		}
		if err := ensureParentDir(sc.Path); err != nil {
			return nil, audit.NewStorageError(BackendSQLite, "open", err)
		}
		sink, err := NewSQLiteSink(sc)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case BackendJSONL:
		sink, err := NewJSONLSink(cfg.Path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case BackendPostgres:
		sink, err := OpenPostgres(ctx, &PostgresConfig{
			DSN:            cfg.PostgresDSN,
			ConnectRetries: cfg.ConnectRetries,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	case BackendRedis:
		sink, err := OpenRedis(ctx, &RedisConfig{
			Address:        cfg.RedisAddress,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			Stream:         cfg.RedisStream,
			ConnectRetries: cfg.ConnectRetries,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, audit.NewStorageError(cfg.Backend, "open", fmt.Errorf("unknown audit backend %q", cfg.Backend))
	}
}

// ensureParentDir creates the directory holding a file-backed database.
// In-memory and URI paths are left alone.
func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
