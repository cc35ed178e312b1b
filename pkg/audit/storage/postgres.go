package storage

import (
	"context"
	"database/sql"
	"iter"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/governance"
)

// PostgresSchema creates the audit table. Rules turn UPDATE and DELETE into
// no-ops so stored entries cannot be rewritten through the table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS arbiter_audit_entries (
    sequence BIGINT PRIMARY KEY,
    request_id TEXT NOT NULL,
    final_status TEXT NOT NULL,
    dominant_policy TEXT NOT NULL,
    decided_at TIMESTAMPTZ NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL,
    entry TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_arbiter_audit_request_id ON arbiter_audit_entries(request_id);
CREATE OR REPLACE RULE arbiter_audit_no_update AS ON UPDATE TO arbiter_audit_entries DO INSTEAD NOTHING;
CREATE OR REPLACE RULE arbiter_audit_no_delete AS ON DELETE TO arbiter_audit_entries DO INSTEAD NOTHING;
`

const (
	pgInsertEntry = `INSERT INTO arbiter_audit_entries (
    sequence, request_id, final_status, dominant_policy,
    decided_at, recorded_at, prev_hash, hash, entry
) VALUES ($1, $2, $3, $4, $5::timestamptz, $6::timestamptz, $7, $8, $9)`

	pgSelectEntries = `SELECT entry FROM arbiter_audit_entries ORDER BY sequence ASC`
	pgSelectLast    = `SELECT entry FROM arbiter_audit_entries ORDER BY sequence DESC LIMIT 1`
	pgCountEntries  = `SELECT COUNT(*) FROM arbiter_audit_entries`
)

// PostgresConfig contains configuration for the PostgreSQL sink.
type PostgresConfig struct {
	DSN string

	// ConnectRetries bounds connection attempts at startup.
	// Default: 5
	ConnectRetries uint64

	// ConnectBackoff is the initial Fibonacci backoff between attempts.
	// Default: 500ms
	ConnectBackoff time.Duration
}

// PostgresSink stores audit entries in PostgreSQL.
type PostgresSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgres connects to PostgreSQL, retrying with backoff until the
// server answers, and creates the schema.
func OpenPostgres(ctx context.Context, cfg *PostgresConfig) (*PostgresSink, error) {
	retries := cfg.ConnectRetries
	if retries == 0 {
		retries = 5
	}
	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, audit.NewStorageError("postgres", "open", err)
	}

	s := NewPostgresSink(db)
	b := retry.WithMaxRetries(retries, retry.NewFibonacci(backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			s.logger.Warn("postgres not reachable, will retry", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, audit.NewStorageError("postgres", "connect", err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSink wraps an open database handle.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{
		db:     db,
		logger: slog.Default().With("component", "audit.storage.postgres"),
	}
}

// Migrate creates the audit table if needed.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return audit.NewStorageError("postgres", "create_schema", err)
	}
	return nil
}

// Append inserts entry.
func (s *PostgresSink) Append(ctx context.Context, entry *governance.AuditEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return audit.NewStorageError("postgres", "append", err)
	}

	_, err = s.db.ExecContext(ctx, pgInsertEntry,
		int64(entry.Sequence),
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
		return audit.NewStorageError("postgres", "append", err)
	}
	return nil
}

// Entries streams entries in sequence order.
func (s *PostgresSink) Entries(ctx context.Context) iter.Seq2[*governance.AuditEntry, error] {
	return scanEntries(ctx, s.db, "postgres", pgSelectEntries)
}

// Last returns the newest entry.
func (s *PostgresSink) Last(ctx context.Context) (*governance.AuditEntry, error) {
	return queryLast(ctx, s.db, "postgres", pgSelectLast)
}

// Count returns the number of entries.
func (s *PostgresSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, pgCountEntries).Scan(&n); err != nil {
		return 0, audit.NewStorageError("postgres", "count", err)
	}
	return n, nil
}

// Close closes the database handle.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
