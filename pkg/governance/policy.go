package governance

import (
	"context"
	"time"
)

// Policy is an independent governance evaluator.
//
// Implementations must be safe for concurrent use. AppliesTo must be pure.
// Evaluate should honour ctx cancellation; an evaluator that ignores it is
// abandoned by the coordinator once its timeout elapses.
type Policy interface {
	// Name returns the unique policy name.
	Name() string

	// Priority returns the unique precedence rank. Lower values take
	// precedence over higher values.
	Priority() int

	// AppliesTo reports whether the policy is relevant for the given tags.
	AppliesTo(tags TagSet) bool

	// Evaluate judges the change request.
	Evaluate(ctx context.Context, req *ChangeRequest) (Verdict, error)
}

// MandatoryPolicy is implemented by policies that apply to every request
// regardless of tags.
type MandatoryPolicy interface {
	Mandatory() bool
}

// IsMandatory reports whether p declares itself always applicable.
func IsMandatory(p Policy) bool {
	m, ok := p.(MandatoryPolicy)
	return ok && m.Mandatory()
}

// PolicyFunc adapts plain functions to the Policy interface.
type PolicyFunc struct {
	PolicyName     string
	PolicyPriority int

	// Always marks the policy mandatory.
	Always bool

	// Applies decides applicability. A nil Applies never applies unless
	// Always is set.
	Applies func(tags TagSet) bool

	// Fn produces the verdict. A nil Fn approves.
	Fn func(ctx context.Context, req *ChangeRequest) (Verdict, error)
}

// Name implements Policy.
func (p *PolicyFunc) Name() string { return p.PolicyName }

// Priority implements Policy.
func (p *PolicyFunc) Priority() int { return p.PolicyPriority }

// Mandatory implements MandatoryPolicy.
func (p *PolicyFunc) Mandatory() bool { return p.Always }

// AppliesTo implements Policy.
func (p *PolicyFunc) AppliesTo(tags TagSet) bool {
	if p.Applies == nil {
		return p.Always
	}
	return p.Applies(tags)
}

// Evaluate implements Policy.
func (p *PolicyFunc) Evaluate(ctx context.Context, req *ChangeRequest) (Verdict, error) {
	if p.Fn == nil {
		return p.Verdict(StatusApprove, "no objections"), nil
	}
	return p.Fn(ctx, req)
}

// Verdict builds a verdict attributed to this policy.
func (p *PolicyFunc) Verdict(status VerdictStatus, rationale string, conditions ...string) Verdict {
	return NewVerdict(p, status, rationale, conditions...)
}

// NewVerdict builds a verdict attributed to p, stamped with the current
// time. Conditions are dropped unless status is StatusConditional.
func NewVerdict(p Policy, status VerdictStatus, rationale string, conditions ...string) Verdict {
	v := Verdict{
		PolicyName:  p.Name(),
		Priority:    p.Priority(),
		Status:      status,
		Rationale:   rationale,
		Conditions:  []string{},
		EvaluatedAt: time.Now().UTC(),
	}
	if status == StatusConditional && len(conditions) > 0 {
		v.Conditions = append(v.Conditions, conditions...)
	}
	return v
}

// UnknownVerdict synthesizes an UNKNOWN verdict for p with the given cause.
func UnknownVerdict(p Policy, cause string) Verdict {
	return NewVerdict(p, StatusUnknown, cause)
}

// TagsApply returns an AppliesTo function that matches when any of the
// trigger tags is present.
func TagsApply(triggers ...string) func(TagSet) bool {
	normalized := NewTagSet(triggers...)
	return func(tags TagSet) bool {
		return tags.HasAny(normalized...)
	}
}
