package audit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/governance"
)

// sliceSink is a minimal Sink for exercising Log.
type sliceSink struct {
	mu      sync.Mutex
	entries []*governance.AuditEntry
	failOn  uint64 // sequence to reject, 0 = never
}

func (s *sliceSink) Append(_ context.Context, e *governance.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Sequence == s.failOn {
		return NewStorageError("slice", "append", errors.New("disk full"))
	}
	s.entries = append(s.entries, CloneEntry(e))
	return nil
}

func (s *sliceSink) Entries(context.Context) iter.Seq2[*governance.AuditEntry, error] {
	return func(yield func(*governance.AuditEntry, error) bool) {
		s.mu.Lock()
		snap := append([]*governance.AuditEntry(nil), s.entries...)
		s.mu.Unlock()
		for _, e := range snap {
			if !yield(CloneEntry(e), nil) {
				return
			}
		}
	}
}

func (s *sliceSink) Last(context.Context) (*governance.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	return CloneEntry(s.entries[len(s.entries)-1]), nil
}

func (s *sliceSink) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *sliceSink) Close() error { return nil }

type countingRecorder struct {
	mu       sync.Mutex
	ok, fail int
}

func (r *countingRecorder) RecordAuditAppend(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.ok++
	} else {
		r.fail++
	}
}

func decisionFor(req *governance.ChangeRequest, status governance.FinalStatus, dominant string, at time.Time) governance.Decision {
	return governance.Decision{
		RequestID:      req.ID(),
		FinalStatus:    status,
		DominantPolicy: dominant,
		Verdicts:       []governance.Verdict{},
		Conditions:     []string{},
		DecidedAt:      at,
	}
}

func newTestLog(t *testing.T, sink Sink, opts ...Option) *Log {
	t.Helper()
	l, err := New(context.Background(), sink, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return l
}

func TestNew_NilSink(t *testing.T) {
	if _, err := New(context.Background(), nil); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestLog_Append(t *testing.T) {
	sink := &sliceSink{}
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	l := newTestLog(t, sink, WithClock(func() time.Time { return fixed }))

	req := governance.NewChangeRequest("first", []string{"qa"})
	first, err := l.Append(context.Background(), req, decisionFor(req, governance.FinalApproved, "qa", fixed), nil)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	if first.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", first.Sequence)
	}
	if first.PrevHash != GenesisHash {
		t.Errorf("PrevHash = %s, want genesis", first.PrevHash)
	}
	if len(first.Hash) != 64 {
		t.Errorf("Hash = %q, want 64 hex chars", first.Hash)
	}
	if first.RecordedAt.Location() != time.UTC {
		t.Errorf("RecordedAt location = %v, want UTC", first.RecordedAt.Location())
	}
	if first.Skipped == nil {
		t.Error("Skipped is nil, want empty slice")
	}

	second, err := l.Append(context.Background(), req, decisionFor(req, governance.FinalApproved, "qa", fixed), nil)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if second.Sequence != 2 || second.PrevHash != first.Hash {
		t.Errorf("second entry = {%d %s}, want {2 %s}", second.Sequence, second.PrevHash, first.Hash)
	}
}

func TestLog_AppendFailureLeavesChainUnchanged(t *testing.T) {
	sink := &sliceSink{failOn: 2}
	rec := &countingRecorder{}
	l := newTestLog(t, sink, WithRecorder(rec))
	ctx := context.Background()
	req := governance.NewChangeRequest("x", nil)

	if _, err := l.Append(ctx, req, decisionFor(req, governance.FinalBlocked, "guardrails", time.Now()), nil); err != nil {
		t.Fatalf("Append(1) failed: %v", err)
	}

	_, err := l.Append(ctx, req, decisionFor(req, governance.FinalBlocked, "guardrails", time.Now()), nil)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Append(2) error = %v, want StorageError", err)
	}
	if l.LastSequence() != 1 {
		t.Errorf("LastSequence() = %d after failure, want 1", l.LastSequence())
	}

	sink.failOn = 0
	third, err := l.Append(ctx, req, decisionFor(req, governance.FinalBlocked, "guardrails", time.Now()), nil)
	if err != nil {
		t.Fatalf("Append(3) failed: %v", err)
	}
	if third.Sequence != 2 {
		t.Errorf("Sequence after recovery = %d, want 2", third.Sequence)
	}

	if rec.ok != 2 || rec.fail != 1 {
		t.Errorf("recorder ok/fail = %d/%d, want 2/1", rec.ok, rec.fail)
	}

	res, err := l.Verify(ctx)
	if err != nil || !res.Valid() {
		t.Errorf("Verify() = %+v, %v", res, err)
	}
}

func TestLog_ConcurrentAppends(t *testing.T) {
	sink := &sliceSink{}
	l := newTestLog(t, sink)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := governance.NewChangeRequest(fmt.Sprintf("req %d", i), nil)
			if _, err := l.Append(ctx, req, decisionFor(req, governance.FinalApproved, "guardrails", time.Now()), nil); err != nil {
				t.Errorf("Append() failed: %v", err)
			}
		}()
	}

	// Readers run alongside the writers.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Collect(l.Entries(ctx)); err != nil {
				t.Errorf("Entries() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := Collect(l.Entries(ctx))
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("len(entries) = %d, want %d", len(entries), n)
	}
	for i, e := range entries {
		if e.Sequence != uint64(i+1) {
			t.Fatalf("entries[%d].Sequence = %d, want %d", i, e.Sequence, i+1)
		}
	}

	res, err := l.Verify(ctx)
	if err != nil || !res.Valid() || res.Entries != n {
		t.Errorf("Verify() = %+v, %v", res, err)
	}
}

func TestLog_ResumesChain(t *testing.T) {
	sink := &sliceSink{}
	ctx := context.Background()
	req := governance.NewChangeRequest("x", nil)

	first := newTestLog(t, sink)
	e1, err := first.Append(ctx, req, decisionFor(req, governance.FinalApproved, "guardrails", time.Now()), nil)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	second := newTestLog(t, sink)
	e2, err := second.Append(ctx, req, decisionFor(req, governance.FinalApproved, "guardrails", time.Now()), nil)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if e2.Sequence != 2 || e2.PrevHash != e1.Hash {
		t.Errorf("resumed entry = {%d %s}, want {2 %s}", e2.Sequence, e2.PrevHash, e1.Hash)
	}
}

func TestLog_Verify_DetectsTampering(t *testing.T) {
	tests := []struct {
		name       string
		tamper     func(entries []*governance.AuditEntry) []*governance.AuditEntry
		wantBroken uint64
	}{
		{
			name: "modified decision",
			tamper: func(es []*governance.AuditEntry) []*governance.AuditEntry {
				es[1].Decision.FinalStatus = governance.FinalApproved
				return es
			},
			wantBroken: 2,
		},
		{
			name: "deleted entry",
			tamper: func(es []*governance.AuditEntry) []*governance.AuditEntry {
				return append(es[:1], es[2:]...)
			},
			wantBroken: 3,
		},
		{
			name: "reordered entries",
			tamper: func(es []*governance.AuditEntry) []*governance.AuditEntry {
				es[1], es[2] = es[2], es[1]
				return es
			},
			wantBroken: 3,
		},
		{
			name: "relinked hash",
			tamper: func(es []*governance.AuditEntry) []*governance.AuditEntry {
				es[2].PrevHash = GenesisHash
				return es
			},
			wantBroken: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &sliceSink{}
			l := newTestLog(t, sink)
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				req := governance.NewChangeRequest(fmt.Sprintf("r%d", i), nil)
				if _, err := l.Append(ctx, req, decisionFor(req, governance.FinalBlocked, "guardrails", time.Now()), nil); err != nil {
					t.Fatalf("Append() failed: %v", err)
				}
			}

			sink.entries = tt.tamper(sink.entries)

			res, err := l.Verify(ctx)
			if err != nil {
				t.Fatalf("Verify() failed: %v", err)
			}
			if res.Valid() {
				t.Fatal("Verify() reported tampered chain as valid")
			}
			if res.Broken.Sequence != tt.wantBroken {
				t.Errorf("Broken.Sequence = %d, want %d (%s)", res.Broken.Sequence, tt.wantBroken, res.Broken.Reason)
			}
		})
	}
}

func TestLog_Query(t *testing.T) {
	sink := &sliceSink{}
	l := newTestLog(t, sink)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	fixtures := []struct {
		status   governance.FinalStatus
		dominant string
	}{
		{governance.FinalApproved, "guardrails"},
		{governance.FinalBlocked, "migration-only"},
		{governance.FinalConditional, "canary-feature-flag"},
		{governance.FinalBlocked, "guardrails"},
	}
	for i, f := range fixtures {
		req := governance.NewChangeRequest("x", nil, governance.WithID(fmt.Sprintf("req-%d", i)))
		at := base.Add(time.Duration(i) * time.Hour)
		if _, err := l.Append(ctx, req, decisionFor(req, f.status, f.dominant, at), nil); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	since := base.Add(90 * time.Minute)
	tests := []struct {
		name    string
		query   *Query
		wantIDs []string
	}{
		{"all", nil, []string{"req-0", "req-1", "req-2", "req-3"}},
		{"by status", &Query{FinalStatus: governance.FinalBlocked}, []string{"req-1", "req-3"}},
		{"by dominant", &Query{DominantPolicy: "guardrails"}, []string{"req-0", "req-3"}},
		{"by request", &Query{RequestID: "req-2"}, []string{"req-2"}},
		{"since", &Query{Since: &since}, []string{"req-2", "req-3"}},
		{"limit and offset", &Query{Limit: 2, Offset: 1}, []string{"req-1", "req-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Query(ctx, tt.query)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Query() returned %d entries, want %d", len(got), len(tt.wantIDs))
			}
			for i, e := range got {
				if e.Decision.RequestID != tt.wantIDs[i] {
					t.Errorf("got[%d] = %s, want %s", i, e.Decision.RequestID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestQuery_Validate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{"empty", Query{}, false},
		{"negative limit", Query{Limit: -1}, true},
		{"limit too large", Query{Limit: MaxLimit + 1}, true},
		{"negative offset", Query{Offset: -1}, true},
		{"bad status", Query{FinalStatus: "MAYBE"}, true},
		{"inverted range", Query{Since: &now, Until: &earlier}, true},
		{"valid range", Query{Since: &earlier, Until: &now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var qe *QueryError
			if err != nil && !errors.As(err, &qe) {
				t.Errorf("Validate() error type = %T, want *QueryError", err)
			}
		})
	}
}

func TestComputeHash_NFC(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	composed := governance.NewChangeRequest("caf\u00e9", nil, governance.WithID("a"), governance.WithTimestamp(ts))
	decomposed := governance.NewChangeRequest("cafe\u0301", nil, governance.WithID("a"), governance.WithTimestamp(ts))

	h1, err := ComputeHash(&governance.AuditEntry{Request: *composed})
	if err != nil {
		t.Fatalf("ComputeHash() failed: %v", err)
	}
	h2, err := ComputeHash(&governance.AuditEntry{Request: *decomposed})
	if err != nil {
		t.Fatalf("ComputeHash() failed: %v", err)
	}
	if h1 != h2 {
		t.Error("canonically equivalent descriptions hashed differently")
	}

	h3, _ := ComputeHash(&governance.AuditEntry{Request: *composed, Hash: "ignored"})
	if h3 != h1 {
		t.Error("Hash field should not contribute to the hash")
	}
}
