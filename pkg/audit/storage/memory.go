package storage

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/governance"
)

// MemorySink keeps entries in process memory. Readers get a snapshot taken
// when iteration starts, so they never block appends.
type MemorySink struct {
	mu      sync.RWMutex
	entries []*governance.AuditEntry
	closed  bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores a copy of entry.
func (s *MemorySink) Append(ctx context.Context, entry *governance.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError("memory", "append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audit.NewStorageError("memory", "append", ErrClosed)
	}
	if n := uint64(len(s.entries)); entry.Sequence != n+1 {
		return audit.NewStorageError("memory", "append",
			fmt.Errorf("sequence %d does not follow %d", entry.Sequence, n))
	}
	s.entries = append(s.entries, audit.CloneEntry(entry))
	return nil
}

// Entries yields copies of the entries present when iteration starts.
func (s *MemorySink) Entries(ctx context.Context) iter.Seq2[*governance.AuditEntry, error] {
	return func(yield func(*governance.AuditEntry, error) bool) {
		s.mu.RLock()
		snapshot := s.entries[:len(s.entries):len(s.entries)]
		s.mu.RUnlock()

		for _, e := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, audit.NewStorageError("memory", "entries", err))
				return
			}
			if !yield(audit.CloneEntry(e), nil) {
				return
			}
		}
	}
}

// Last returns the most recent entry.
func (s *MemorySink) Last(ctx context.Context) (*governance.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	return audit.CloneEntry(s.entries[len(s.entries)-1]), nil
}

// Count returns the number of stored entries.
func (s *MemorySink) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close marks the sink closed. Stored entries stay readable.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
