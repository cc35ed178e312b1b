// Package storage provides audit sinks.
//
// # Backends
//
//   - memory: in-process slice; readers iterate a snapshot
//   - sqlite: embedded database, cgo driver (github.com/mattn/go-sqlite3,
//     driver name "sqlite3") or pure Go driver (modernc.org/sqlite, driver
//     name "sqlite")
//   - jsonl: one JSON document per line, fsync after every append
//   - postgres: github.com/lib/pq, connection retried with backoff
//   - redis: a Redis stream via github.com/redis/go-redis/v9
//
// All SQL backends store the full entry as JSON next to a few indexed
// columns, and reject UPDATE and DELETE at the database level.
//
// # Basic Usage
//
//	sink, err := storage.Open(ctx, storage.Config{
//	    Backend: storage.BackendSQLite,
//	    Path:    "data/audit.db",
//	})
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
// # Thread Safety
//
// Every sink is safe for concurrent use. Entries may be iterated while
// appends are in progress; an iteration sees the entries that existed
// when it started.
package storage
