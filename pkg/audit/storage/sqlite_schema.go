package storage

// SchemaVersion is the current audit database schema version.
const SchemaVersion = 1

// Schema creates the audit tables. Triggers reject UPDATE and DELETE so the
// table stays append-only even for direct SQL access.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    sequence INTEGER PRIMARY KEY,
    request_id TEXT NOT NULL,
    final_status TEXT NOT NULL,
    dominant_policy TEXT NOT NULL,
    decided_at TEXT NOT NULL,
    recorded_at TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL,
    entry TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_entries(request_id);
CREATE INDEX IF NOT EXISTS idx_audit_final_status ON audit_entries(final_status);
CREATE INDEX IF NOT EXISTS idx_audit_decided_at ON audit_entries(decided_at);

CREATE TRIGGER IF NOT EXISTS audit_entries_no_update
BEFORE UPDATE ON audit_entries
BEGIN
    SELECT RAISE(ABORT, 'audit entries are append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_entries_no_delete
BEFORE DELETE ON audit_entries
BEGIN
    SELECT RAISE(ABORT, 'audit entries are append-only');
END;
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const (
	sqliteInsertEntry = `
INSERT INTO audit_entries (
    sequence, request_id, final_status, dominant_policy,
    decided_at, recorded_at, prev_hash, hash, entry
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqliteSelectEntries = `SELECT entry FROM audit_entries ORDER BY sequence ASC`
	sqliteSelectLast    = `SELECT entry FROM audit_entries ORDER BY sequence DESC LIMIT 1`
	sqliteCountEntries  = `SELECT COUNT(*) FROM audit_entries`
)
