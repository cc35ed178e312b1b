package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/governance"
)

// appendFile is the part of *os.File the sink writes through.
type appendFile interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Close() error
}

// JSONLSink appends one JSON document per line to a file and syncs after
// every append. A failed append is cut back off the file so it never
// holds a line that was not acknowledged.
type JSONLSink struct {
	path string

	mu     sync.Mutex
	f      appendFile
	size   int64 // bytes of complete lines written so far
	count  int
	last   *governance.AuditEntry
	broken error // set when a failed append could not be rolled back
}

// NewJSONLSink opens or creates the file at path. Parent directories are
// created as needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, audit.NewStorageError("jsonl", "open", os.ErrInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, audit.NewStorageError("jsonl", "open", err)
	}

	s := &JSONLSink{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, audit.NewStorageError("jsonl", "open", err)
	}
	s.f = f
	return s, nil
}

// load scans existing content to recover the entry count and last entry.
func (s *JSONLSink) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return audit.NewStorageError("jsonl", "load", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(line)) > 0 {
				return audit.NewStorageError("jsonl", "load",
					fmt.Errorf("truncated entry after %d entries", s.count))
			}
			return nil
		}
		if err != nil {
			return audit.NewStorageError("jsonl", "load", err)
		}
		s.size += int64(len(line))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		entry, err := decodeEntry(line)
		if err != nil {
			return audit.NewStorageError("jsonl", "load", err)
		}
		s.count++
		s.last = entry
	}
}

// Append writes entry as one line.
func (s *JSONLSink) Append(ctx context.Context, entry *governance.AuditEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return audit.NewStorageError("jsonl", "append", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return audit.NewStorageError("jsonl", "append", ErrClosed)
	}
	if s.broken != nil {
		return audit.NewStorageError("jsonl", "append", s.broken)
	}
	if _, err := s.f.Write(data); err != nil {
		return s.rollback("append", err)
	}
	if err := s.f.Sync(); err != nil {
		return s.rollback("sync", err)
	}

	s.size += int64(len(data))
	s.count++
	s.last = audit.CloneEntry(entry)
	return nil
}

// rollback truncates the file to the last acknowledged line. If that fails
// the file tail is unknown and the sink refuses further appends. Callers
// hold s.mu.
func (s *JSONLSink) rollback(op string, cause error) error {
	if err := s.f.Truncate(s.size); err != nil {
		s.broken = fmt.Errorf("failed to roll back %s at offset %d: %w", op, s.size, err)
		return audit.NewStorageError("jsonl", op, errors.Join(cause, s.broken))
	}
	return audit.NewStorageError("jsonl", op, cause)
}

// Entries reads the lines written before iteration started.
func (s *JSONLSink) Entries(ctx context.Context) iter.Seq2[*governance.AuditEntry, error] {
	return func(yield func(*governance.AuditEntry, error) bool) {
		s.mu.Lock()
		limit := s.size
		s.mu.Unlock()

		f, err := os.Open(s.path)
		if err != nil {
			yield(nil, audit.NewStorageError("jsonl", "entries", err))
			return
		}
		defer f.Close()

		r := bufio.NewReader(io.LimitReader(f, limit))
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, audit.NewStorageError("jsonl", "entries", err))
				return
			}
			line, err := r.ReadBytes('\n')
			if errors.Is(err, io.EOF) {
				if len(bytes.TrimSpace(line)) > 0 {
					yield(nil, audit.NewStorageError("jsonl", "entries",
						fmt.Errorf("unterminated entry at end of %s", s.path)))
				}
				return
			}
			if err != nil {
				yield(nil, audit.NewStorageError("jsonl", "entries", err))
				return
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			entry, err := decodeEntry(line)
			if err != nil {
				yield(nil, audit.NewStorageError("jsonl", "entries", err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Last returns the newest entry.
func (s *JSONLSink) Last(ctx context.Context) (*governance.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return audit.CloneEntry(s.last), nil
}

// Count returns the number of entries.
func (s *JSONLSink) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

// Close closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return audit.NewStorageError("jsonl", "close", err)
	}
	return nil
}
