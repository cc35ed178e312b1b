package rulebook

import (
	"cmp"
	"log/slog"
	"slices"

	"mercator-hq/arbiter/pkg/governance"
)

// Rulebook is a compiled set of policies.
type Rulebook struct {
	policies []*Policy
}

// Registrar accepts policies. *registry.Registry implements it.
type Registrar interface {
	Register(policy governance.Policy) error
}

// Option configures compilation.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger the compiled policies report runtime problems to.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Compile lints doc and compiles every expression. Any error-level lint
// issue fails the whole rulebook with a *LintError.
func Compile(doc *Document, opts ...Option) (*Rulebook, error) {
	o := options{logger: slog.Default().With("component", "rulebook")}
	for _, opt := range opts {
		opt(&o)
	}

	if errs := Errors(Lint(doc)); len(errs) > 0 {
		return nil, &LintError{Issues: errs}
	}

	rb := &Rulebook{policies: make([]*Policy, 0, len(doc.Policies))}
	for _, spec := range doc.Policies {
		p, err := compilePolicy(spec, o.logger)
		if err != nil {
			return nil, err
		}
		rb.policies = append(rb.policies, p)
	}
	slices.SortStableFunc(rb.policies, func(a, b *Policy) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})

	o.logger.Debug("rulebook compiled", "policy_count", len(rb.policies))
	return rb, nil
}

// Load parses and compiles a single rulebook file.
func Load(data []byte, origin string, opts ...Option) (*Rulebook, error) {
	doc, err := Parse(data, origin)
	if err != nil {
		return nil, err
	}
	return Compile(doc, opts...)
}

// Policies returns the compiled policies in priority order.
func (rb *Rulebook) Policies() []governance.Policy {
	out := make([]governance.Policy, len(rb.policies))
	for i, p := range rb.policies {
		out[i] = p
	}
	return out
}

// Lookup returns the named policy.
func (rb *Rulebook) Lookup(name string) (*Policy, bool) {
	for _, p := range rb.policies {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Len returns the number of policies.
func (rb *Rulebook) Len() int { return len(rb.policies) }

// RegisterAll registers every policy with r, stopping at the first failure.
func (rb *Rulebook) RegisterAll(r Registrar) error {
	for _, p := range rb.policies {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}
