// Package coordinator evaluates applicable policies concurrently.
//
// Every policy runs under its own deadline on a bounded worker pool. The
// returned verdicts always line up one-to-one with the input policies,
// whatever order the evaluations finish in. Timeouts, errors, panics and
// malformed verdicts are converted to UNKNOWN verdicts and never abort the
// remaining evaluations.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mercator-hq/arbiter/pkg/governance"
	"mercator-hq/arbiter/pkg/telemetry/tracing"
)

const (
	// DefaultPolicyTimeout bounds a single policy evaluation.
	DefaultPolicyTimeout = 2 * time.Second

	// DefaultWorkerPoolSize bounds concurrent evaluations.
	DefaultWorkerPoolSize = 8
)

// Recorder receives per-verdict observations. The metrics collector
// implements it.
type Recorder interface {
	RecordVerdict(policy string, status governance.VerdictStatus, duration time.Duration)
	RecordTimeout(policy string)
}

// Config controls evaluation limits.
type Config struct {
	PolicyTimeout  time.Duration
	WorkerPoolSize int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger.With("component", "coordinator")
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(c *Coordinator) { c.recorder = rec }
}

// WithTracer opens a span per policy evaluation.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// Coordinator dispatches policy evaluations.
type Coordinator struct {
	timeout  time.Duration
	workers  int
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// New creates a coordinator. Zero config values fall back to the defaults.
func New(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		timeout: cfg.PolicyTimeout,
		workers: cfg.WorkerPoolSize,
		logger:  slog.Default().With("component", "coordinator"),
		tracer:  tracing.Noop().Tracer(),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultPolicyTimeout
	}
	if c.workers <= 0 {
		c.workers = DefaultWorkerPoolSize
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PolicyTimeout returns the effective per-policy deadline.
func (c *Coordinator) PolicyTimeout() time.Duration { return c.timeout }

// WorkerPoolSize returns the effective concurrency bound.
func (c *Coordinator) WorkerPoolSize() int { return c.workers }

// slot holds one policy's verdict. Only the first writer wins, so an
// abandoned evaluation cannot overwrite the verdict recorded on timeout.
type slot struct {
	once    sync.Once
	verdict governance.Verdict
	timeout bool
}

func (s *slot) set(v governance.Verdict, timedOut bool) bool {
	won := false
	s.once.Do(func() {
		s.verdict = v
		s.timeout = timedOut
		won = true
	})
	return won
}

// Evaluate runs every policy against req and returns one verdict per
// policy in input order. It returns only after every slot is filled.
func (c *Coordinator) Evaluate(ctx context.Context, req *governance.ChangeRequest, policies []governance.Policy) []governance.Verdict {
	slots := make([]slot, len(policies))

	var g errgroup.Group
	g.SetLimit(c.workers)

	for i, p := range policies {
		s := &slots[i]
		g.Go(func() error {
			c.run(ctx, req, p, s)
			return nil
		})
	}
	_ = g.Wait()

	verdicts := make([]governance.Verdict, len(slots))
	for i := range slots {
		verdicts[i] = slots[i].verdict
		c.observe(req, &slots[i])
	}
	return verdicts
}

// run evaluates one policy and fills its slot before returning.
func (c *Coordinator) run(ctx context.Context, req *governance.ChangeRequest, p governance.Policy, s *slot) {
	if err := ctx.Err(); err != nil {
		s.set(governance.UnknownVerdict(p, fmt.Sprintf("evaluation cancelled: %v", err)), false)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sctx, span := c.tracer.Start(pctx, "policy.Evaluate", trace.WithAttributes(tracing.PolicyAttributes(p)...))
	defer func() {
		tracing.SetVerdict(span, s.verdict)
		span.End()
	}()

	start := time.Now()
	done := make(chan struct{})

	go func() {
		defer close(done)
		v, err := c.invoke(sctx, req, p)
		if err != nil && pctx.Err() != nil {
			v = c.interrupted(ctx, pctx, p)
		}
		v.Duration = time.Since(start)
		s.set(v, v.Status == governance.StatusUnknown && timedOut(ctx, pctx))
	}()

	select {
	case <-done:
	case <-pctx.Done():
		v := c.interrupted(ctx, pctx, p)
		v.Duration = time.Since(start)
		if s.set(v, timedOut(ctx, pctx)) {
			c.logger.Warn("policy evaluation abandoned",
				"request_id", req.ID(),
				"policy", p.Name(),
				"timeout", c.timeout,
			)
		}
	}
}

// interrupted builds the verdict for an evaluation whose context ended.
func (c *Coordinator) interrupted(parent, pctx context.Context, p governance.Policy) governance.Verdict {
	if timedOut(parent, pctx) {
		return governance.UnknownVerdict(p, fmt.Sprintf("evaluation timed out after %s", c.timeout))
	}
	return governance.UnknownVerdict(p, fmt.Sprintf("evaluation cancelled: %v", parent.Err()))
}

// timedOut reports whether pctx ended because of its own deadline rather
// than the caller's.
func timedOut(parent, pctx context.Context) bool {
	return parent.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded)
}

// invoke calls the policy and normalizes its result. The returned error is
// the policy's own error, already folded into an UNKNOWN verdict.
func (c *Coordinator) invoke(ctx context.Context, req *governance.ChangeRequest, p governance.Policy) (v governance.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = governance.UnknownVerdict(p, fmt.Sprintf("evaluation panicked: %v", r))
			err = nil
		}
	}()

	got, err := p.Evaluate(ctx, req)
	if err != nil {
		return governance.UnknownVerdict(p, fmt.Sprintf("evaluation failed: %v", err)), err
	}
	return normalize(p, got), nil
}

// normalize attributes the verdict to p and enforces the verdict shape.
func normalize(p governance.Policy, v governance.Verdict) governance.Verdict {
	if !v.Status.Valid() {
		return governance.UnknownVerdict(p, fmt.Sprintf("policy returned invalid status %q", v.Status))
	}

	v.PolicyName = p.Name()
	v.Priority = p.Priority()
	if v.EvaluatedAt.IsZero() {
		v.EvaluatedAt = time.Now().UTC()
	}
	if v.Status != governance.StatusConditional || v.Conditions == nil {
		v.Conditions = []string{}
	} else {
		v.Conditions = append([]string(nil), v.Conditions...)
	}
	return v
}

func (c *Coordinator) observe(req *governance.ChangeRequest, s *slot) {
	v := s.verdict
	c.logger.Debug("policy evaluated",
		"request_id", req.ID(),
		"policy", v.PolicyName,
		"status", v.Status,
		"duration", v.Duration,
	)
	if c.recorder == nil {
		return
	}
	c.recorder.RecordVerdict(v.PolicyName, v.Status, v.Duration)
	if s.timeout {
		c.recorder.RecordTimeout(v.PolicyName)
	}
}
