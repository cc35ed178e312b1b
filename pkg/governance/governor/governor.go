// Package governor is the public entry point of the decision engine. It
// classifies a change request, evaluates the applicable policies, resolves
// their verdicts and records the decision in the audit log before
// returning it.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/arbiter/pkg/governance"
	"mercator-hq/arbiter/pkg/governance/classifier"
	"mercator-hq/arbiter/pkg/governance/coordinator"
	"mercator-hq/arbiter/pkg/governance/resolver"
	"mercator-hq/arbiter/pkg/telemetry/logging"
	"mercator-hq/arbiter/pkg/telemetry/tracing"
)

// RationaleUnclassifiable is recorded when no policy applies to a request.
const RationaleUnclassifiable = "context could not be classified"

var (
	// ErrNilRequest is returned by Decide when called without a request.
	ErrNilRequest = errors.New("change request is nil")

	// ErrRegistryNotSealed is returned by New when the registry still
	// accepts registrations.
	ErrRegistryNotSealed = errors.New("policy registry is not sealed")
)

// Registry supplies the registered policies in priority order.
// *registry.Registry implements it.
type Registry interface {
	All() []governance.Policy
	Sealed() bool
}

// Auditor durably records decisions. *audit.Log implements it.
type Auditor interface {
	Append(ctx context.Context, req *governance.ChangeRequest, decision governance.Decision, skipped []governance.SkippedPolicy) (*governance.AuditEntry, error)
}

// Recorder observes recorded decisions.
type Recorder interface {
	RecordDecision(status governance.FinalStatus, dominant string, duration time.Duration)
}

// Option configures a Governor.
type Option func(*Governor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Governor) {
		if logger != nil {
			g.logger = logger.With("component", "governor")
		}
	}
}

// WithRecorder reports every recorded decision to rec.
func WithRecorder(rec Recorder) Option {
	return func(g *Governor) { g.recorder = rec }
}

// WithTracer wraps every Record call in a span.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Governor) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// WithClock overrides the decision timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		if now != nil {
			g.now = now
		}
	}
}

// Governor decides change requests. It is safe for concurrent use.
type Governor struct {
	registry    Registry
	classifier  *classifier.Classifier
	coordinator *coordinator.Coordinator
	auditor     Auditor
	recorder    Recorder
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// New wires a Governor. The registry must be sealed.
func New(reg Registry, coord *coordinator.Coordinator, auditor Auditor, opts ...Option) (*Governor, error) {
	switch {
	case reg == nil:
		return nil, errors.New("governor requires a policy registry")
	case coord == nil:
		return nil, errors.New("governor requires a coordinator")
	case auditor == nil:
		return nil, errors.New("governor requires an audit log")
	case !reg.Sealed():
		return nil, ErrRegistryNotSealed
	}

	g := &Governor{
		registry:    reg,
		coordinator: coord,
		auditor:     auditor,
		tracer:      tracing.Noop().Tracer(),
		logger:      slog.Default().With("component", "governor"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	g.classifier = classifier.New(g.logger)
	return g, nil
}

// Policies returns the registered policies in priority order.
func (g *Governor) Policies() []governance.Policy {
	return g.registry.All()
}

// Decide returns the decision for req once it has been appended to the
// audit log. Every per-request fault ends in a BLOCKED decision; the only
// error besides ErrNilRequest is *governance.AuditFailureError, in which
// case no decision is returned.
func (g *Governor) Decide(ctx context.Context, req *governance.ChangeRequest) (governance.Decision, error) {
	entry, err := g.Record(ctx, req)
	if err != nil {
		return governance.Decision{}, err
	}
	return entry.Decision, nil
}

// Record is Decide returning the whole audit entry, including its
// sequence number and hash.
func (g *Governor) Record(ctx context.Context, req *governance.ChangeRequest) (*governance.AuditEntry, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	start := time.Now()
	ctx = logging.WithChangeID(ctx, req.ID())
	ctx, span := g.tracer.Start(ctx, "governor.Record", trace.WithAttributes(tracing.RequestAttributes(req)...))
	defer span.End()

	decision, skipped := g.decide(ctx, req)

	entry, err := g.auditor.Append(ctx, req, decision, skipped)
	if err != nil {
		tracing.SetError(span, err)
		g.logger.ErrorContext(ctx, "decision withheld, audit append failed",
			"final_status", decision.FinalStatus,
			"error", err,
		)
		return nil, governance.NewAuditFailureError(req.ID(), err)
	}

	tracing.SetDecision(span, entry)
	duration := time.Since(start)
	if g.recorder != nil {
		g.recorder.RecordDecision(decision.FinalStatus, decision.DominantPolicy, duration)
	}
	g.logger.InfoContext(ctx, "decision recorded",
		"final_status", decision.FinalStatus,
		"dominant_policy", decision.DominantPolicy,
		"verdicts", len(decision.Verdicts),
		"sequence", entry.Sequence,
		"duration", duration,
	)
	return entry, nil
}

// decide runs classification, evaluation and resolution. It never fails:
// faults are turned into BLOCKED decisions.
func (g *Governor) decide(ctx context.Context, req *governance.ChangeRequest) (decision governance.Decision, skipped []governance.SkippedPolicy) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.ErrorContext(ctx, "governance fault, failing closed",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			decision = resolver.Blocked(req.ID(), governance.DominantFacade,
				fmt.Sprintf("internal fault: %v", r), nil, g.now())
		}
	}()

	result, err := g.classifier.Classify(req, g.registry)
	if result != nil {
		skipped = result.Skipped
	}
	if err != nil {
		var unclassifiable *governance.UnclassifiableContextError
		if errors.As(err, &unclassifiable) {
			g.logger.WarnContext(ctx, "request could not be classified", "tags", []string(unclassifiable.Tags))
			return resolver.Blocked(req.ID(), governance.DominantClassifier, RationaleUnclassifiable, nil, g.now()), skipped
		}
		g.logger.ErrorContext(ctx, "classification failed, failing closed", "error", err)
		return resolver.Blocked(req.ID(), governance.DominantFacade,
			fmt.Sprintf("classification failed: %v", err), nil, g.now()), skipped
	}

	verdicts := g.coordinator.Evaluate(ctx, req, result.Applicable)
	return resolver.Resolve(req.ID(), verdicts, g.now()), skipped
}
