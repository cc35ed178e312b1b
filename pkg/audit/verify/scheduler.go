// Package verify runs audit chain verification on a cron schedule.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/arbiter/pkg/audit"
)

// Verifier checks the integrity of an audit chain. *audit.Log implements it.
type Verifier interface {
	Verify(ctx context.Context) (*audit.VerifyResult, error)
}

// Recorder receives the outcome of every verification run.
type Recorder interface {
	RecordChainVerification(valid bool, entries int)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder reports verification outcomes to rec.
func WithRecorder(rec Recorder) Option {
	return func(s *Scheduler) { s.recorder = rec }
}

// WithLogger overrides the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler runs chain verification on a cron schedule.
type Scheduler struct {
	verifier Verifier
	schedule string
	recorder Recorder
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	last    *audit.VerifyResult
	lastErr error
}

// NewScheduler creates a scheduler that verifies v on schedule, a standard
// five-field cron expression. An empty schedule disables scheduling.
func NewScheduler(v Verifier, schedule string, opts ...Option) *Scheduler {
	s := &Scheduler{
		verifier: v,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "audit.verify"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the verification job and starts the cron runner. It
// stops automatically when ctx is cancelled.
//
// Common cron expressions:
//   - "0 * * * *"    - Hourly
//   - "*/15 * * * *" - Every 15 minutes
//   - "0 4 * * *"    - Daily at 4 AM
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("verify schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if len(s.cron.Entries()) == 0 {
		if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule verification: %w", err)
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("verification scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce verifies the chain immediately and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (*audit.VerifyResult, error) {
	result, err := s.verifier.Verify(ctx)

	s.mu.Lock()
	s.last, s.lastErr = result, err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled verification failed", "error", err)
		if s.recorder != nil {
			s.recorder.RecordChainVerification(false, 0)
		}
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.RecordChainVerification(result.Valid(), result.Entries)
	}
	if !result.Valid() {
		s.logger.Error("audit chain is broken",
			"sequence", result.Broken.Sequence,
			"reason", result.Broken.Reason,
		)
	} else {
		s.logger.Debug("scheduled verification completed", "entries", result.Entries)
	}
	return result, nil
}

// Stop stops the scheduler and waits for a running verification to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	// Released before waiting: a job in flight takes the lock to store its result.
	<-s.cron.Stop().Done()
	s.logger.Info("verification scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled verification time, or nil when
// nothing is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// LastResult returns the outcome of the most recent run.
func (s *Scheduler) LastResult() (*audit.VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}
