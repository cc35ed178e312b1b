package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/governance"
)

const (
	// DriverCGO selects github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPureGo selects modernc.org/sqlite.
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite sink.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver is DriverCGO (default) or DriverPureGo.
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteSink stores audit entries in SQLite.
type SQLiteSink struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteSink opens (and if needed creates) the audit database.
func NewSQLiteSink(config *SQLiteConfig) (*SQLiteSink, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Driver != DriverCGO && config.Driver != DriverPureGo {
		return nil, audit.NewStorageError("sqlite", "open",
			fmt.Errorf("unknown driver %q (want %q or %q)", config.Driver, DriverCGO, DriverPureGo))
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	s := &SQLiteSink{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit sink initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

// initialize sets pragmas and creates the schema.
func (s *SQLiteSink) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Append inserts entry.
func (s *SQLiteSink) Append(ctx context.Context, entry *governance.AuditEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}

	_, err = s.db.ExecContext(ctx, sqliteInsertEntry,
		entry.Sequence,
		entry.Decision.RequestID,
		string(entry.Decision.FinalStatus),
		entry.Decision.DominantPolicy,
		formatTime(entry.Decision.DecidedAt),
		formatTime(entry.RecordedAt),
		entry.PrevHash,
		entry.Hash,
		string(data),
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Entries streams entries in sequence order.
func (s *SQLiteSink) Entries(ctx context.Context) iter.Seq2[*governance.AuditEntry, error] {
	return scanEntries(ctx, s.db, "sqlite", sqliteSelectEntries)
}

// Last returns the newest entry.
func (s *SQLiteSink) Last(ctx context.Context) (*governance.AuditEntry, error) {
	return queryLast(ctx, s.db, "sqlite", sqliteSelectLast)
}

// Count returns the number of entries.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqliteCountEntries).Scan(&n); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite audit sink closed")
	return nil
}

// scanEntries runs query (which must select a single entry column) on each
// iteration.
func scanEntries(ctx context.Context, db *sql.DB, backend, query string) iter.Seq2[*governance.AuditEntry, error] {
	return func(yield func(*governance.AuditEntry, error) bool) {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			yield(nil, audit.NewStorageError(backend, "entries", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var data string
			if err := rows.Scan(&data); err != nil {
				yield(nil, audit.NewStorageError(backend, "entries", err))
				return
			}
			entry, err := decodeEntry([]byte(data))
			if err != nil {
				yield(nil, audit.NewStorageError(backend, "entries", err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, audit.NewStorageError(backend, "entries", err))
		}
	}
}

func queryLast(ctx context.Context, db *sql.DB, backend, query string) (*governance.AuditEntry, error) {
	var data string
	err := db.QueryRowContext(ctx, query).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, audit.NewStorageError(backend, "last", err)
	}
	entry, err := decodeEntry([]byte(data))
	if err != nil {
		return nil, audit.NewStorageError(backend, "last", err)
	}
	return entry, nil
}
