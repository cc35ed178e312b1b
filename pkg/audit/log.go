package audit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/arbiter/pkg/governance"
)

// Sink persists audit entries. Implementations only ever append; there is
// no update or delete operation.
type Sink interface {
	// Append durably stores entry. It must fail rather than store a
	// partial entry.
	Append(ctx context.Context, entry *governance.AuditEntry) error

	// Entries yields every stored entry in sequence order. The sequence is
	// lazy and may be ranged over more than once; each pass reflects the
	// entries present when it started.
	Entries(ctx context.Context) iter.Seq2[*governance.AuditEntry, error]

	// Last returns the most recent entry, or nil if the sink is empty.
	Last(ctx context.Context) (*governance.AuditEntry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the sink.
	Close() error
}

// Recorder receives append outcomes. The metrics collector implements it.
type Recorder interface {
	RecordAuditAppend(success bool)
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger.With("component", "audit")
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(l *Log) { l.recorder = rec }
}

// WithClock overrides the clock used for RecordedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// Log is the hash-chained, append-only decision log. Appends are
// serialized; reads go straight to the sink and may run concurrently with
// appends.
type Log struct {
	mu       sync.Mutex
	sink     Sink
	lastSeq  uint64
	lastHash string

	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// New opens a log over sink, resuming the chain from the sink's last entry.
func New(ctx context.Context, sink Sink, opts ...Option) (*Log, error) {
	if sink == nil {
		return nil, errors.New("audit sink cannot be nil")
	}

	l := &Log{
		sink:     sink,
		lastHash: GenesisHash,
		logger:   slog.Default().With("component", "audit"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	last, err := sink.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last audit entry: %w", err)
	}
	if last != nil {
		l.lastSeq = last.Sequence
		l.lastHash = last.Hash
	}

	l.logger.Debug("audit log opened", "last_sequence", l.lastSeq)
	return l, nil
}

// Append records a decision together with its request and skipped
// policies. The returned entry carries its sequence and hash. On failure
// the chain is left unchanged.
func (l *Log) Append(ctx context.Context, req *governance.ChangeRequest, decision governance.Decision, skipped []governance.SkippedPolicy) (*governance.AuditEntry, error) {
	if req == nil {
		return nil, errors.New("audit entry requires a change request")
	}

	entry := CloneEntry(&governance.AuditEntry{
		Request:  *req,
		Decision: decision,
		Skipped:  skipped,
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Sequence = l.lastSeq + 1
	entry.PrevHash = l.lastHash
	entry.RecordedAt = l.now()
	canonicalize(entry)

	hash, err := ComputeHash(entry)
	if err != nil {
		l.record(false)
		return nil, fmt.Errorf("failed to hash audit entry: %w", err)
	}
	entry.Hash = hash

	if err := l.sink.Append(ctx, entry); err != nil {
		l.record(false)
		l.logger.Error("audit append failed",
			"request_id", decision.RequestID,
			"sequence", entry.Sequence,
			"error", err,
		)
		return nil, err
	}

	l.lastSeq = entry.Sequence
	l.lastHash = entry.Hash
	l.record(true)

	l.logger.Debug("audit entry appended",
		"request_id", decision.RequestID,
		"sequence", entry.Sequence,
		"final_status", decision.FinalStatus,
	)
	return CloneEntry(entry), nil
}

// Entries yields every entry in sequence order.
func (l *Log) Entries(ctx context.Context) iter.Seq2[*governance.AuditEntry, error] {
	return l.sink.Entries(ctx)
}

// Query returns the entries matching q in sequence order.
func (l *Log) Query(ctx context.Context, q *Query) ([]*governance.AuditEntry, error) {
	if q == nil {
		q = &Query{}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	results := make([]*governance.AuditEntry, 0)
	skipped := 0
	for entry, err := range l.sink.Entries(ctx) {
		if err != nil {
			return nil, err
		}
		if !q.Matches(entry) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		results = append(results, entry)
		if len(results) >= q.limit() {
			break
		}
	}
	return results, nil
}

// Count returns the number of entries in the log.
func (l *Log) Count(ctx context.Context) (int, error) {
	return l.sink.Count(ctx)
}

// LastSequence returns the sequence of the most recent append.
func (l *Log) LastSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Close closes the underlying sink.
func (l *Log) Close() error {
	return l.sink.Close()
}

func (l *Log) record(success bool) {
	if l.recorder != nil {
		l.recorder.RecordAuditAppend(success)
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[*governance.AuditEntry, error]) ([]*governance.AuditEntry, error) {
	out := make([]*governance.AuditEntry, 0)
	for entry, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, entry)
	}
	return out, nil
}
