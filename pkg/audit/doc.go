// Package audit provides the append-only decision log.
//
// Every decision is stored as an AuditEntry carrying a gap-free sequence
// number and a SHA-256 hash over its canonical JSON form. Each entry also
// stores the hash of its predecessor, so any modification, deletion or
// reordering of stored entries is detected by Verify.
//
// # Sinks
//
// Persistence is delegated to a Sink. The storage subpackage provides:
//
//   - memory: in-process slice, for tests and ephemeral runs
//   - sqlite: embedded database (cgo or pure Go driver)
//   - jsonl: append-only JSON lines file
//   - postgres: shared database for multi-instance deployments
//   - redis: Redis stream
//
// # Basic Usage
//
//	sink, err := storage.Open(ctx, cfg.Audit)
//	if err != nil {
//	    return err
//	}
//	log, err := audit.New(ctx, sink)
//	if err != nil {
//	    return err
//	}
//	defer log.Close()
//
//	entry, err := log.Append(ctx, req, decision, skipped)
//
//	for entry, err := range log.Entries(ctx) {
//	    ...
//	}
//
// # Thread Safety
//
// Append is serialized by a single mutex, which is what keeps sequence
// numbers and hash links consistent. Entries, Query and Verify read from
// the sink and may run concurrently with appends.
package audit
