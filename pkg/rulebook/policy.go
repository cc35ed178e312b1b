package rulebook

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"

	"mercator-hq/arbiter/pkg/governance"
)

// DefaultApproveRationale is used when a policy declares none.
const DefaultApproveRationale = "no objections"

// Policy is a compiled PolicySpec. It implements governance.Policy and
// governance.MandatoryPolicy.
type Policy struct {
	spec    PolicySpec
	applies cel.Program // nil: always applicable
	rules   []compiledRule
	logger  *slog.Logger
}

type compiledRule struct {
	RuleSpec
	prg cel.Program
}

var _ governance.MandatoryPolicy = (*Policy)(nil)

func compilePolicy(spec PolicySpec, logger *slog.Logger) (*Policy, error) {
	p := &Policy{
		spec:   spec,
		logger: logger.With("policy", spec.Name),
	}

	if !spec.Mandatory && spec.AppliesWhen != "" {
		prg, err := compileBool(applyEnv, spec.AppliesWhen)
		if err != nil {
			return nil, &CompileError{Policy: spec.Name, Expression: spec.AppliesWhen, Cause: err}
		}
		p.applies = prg
	}

	p.rules = make([]compiledRule, 0, len(spec.Rules))
	for _, r := range spec.Rules {
		prg, err := compileBool(ruleEnv, r.When)
		if err != nil {
			return nil, &CompileError{Policy: spec.Name, Rule: r.Name, Expression: r.When, Cause: err}
		}
		p.rules = append(p.rules, compiledRule{RuleSpec: r, prg: prg})
	}
	return p, nil
}

// Name implements governance.Policy.
func (p *Policy) Name() string { return p.spec.Name }

// Priority implements governance.Policy.
func (p *Policy) Priority() int { return p.spec.Priority }

// Mandatory implements governance.MandatoryPolicy.
func (p *Policy) Mandatory() bool { return p.spec.Mandatory }

// Description returns the policy's human-readable description.
func (p *Policy) Description() string { return p.spec.Description }

// Spec returns the declaration the policy was compiled from.
func (p *Policy) Spec() PolicySpec { return p.spec }

// AppliesTo implements governance.Policy. An applies_when expression that
// fails at runtime counts as applicable.
func (p *Policy) AppliesTo(tags governance.TagSet) bool {
	if p.spec.Mandatory || p.applies == nil {
		return true
	}

	ok, err := evalBool(context.Background(), p.applies, map[string]any{"tags": tagList(tags)})
	if err != nil {
		p.logger.Warn("applies_when failed, treating policy as applicable", "error", err)
		return true
	}
	return ok
}

// Evaluate implements governance.Policy.
//
// Rules are checked in declaration order. The first matching block rule
// decides immediately. Otherwise the first matching unknown rule yields
// UNKNOWN, every matching conditional rule contributes its conditions, and
// a policy with no matches approves.
func (p *Policy) Evaluate(ctx context.Context, req *governance.ChangeRequest) (governance.Verdict, error) {
	vars := activation(req)

	var (
		unknown    *compiledRule
		rationales []string
		conditions []string
	)
	for i := range p.rules {
		r := &p.rules[i]
		if err := ctx.Err(); err != nil {
			return governance.Verdict{}, err
		}

		matched, err := evalBool(ctx, r.prg, vars)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return governance.Verdict{}, ctxErr
			}
			return governance.Verdict{}, &EvalError{Policy: p.Name(), Rule: r.Name, Cause: err}
		}
		if !matched {
			continue
		}

		switch r.Effect {
		case EffectBlock:
			return governance.NewVerdict(p, governance.StatusBlock, r.Rationale), nil
		case EffectUnknown:
			if unknown == nil {
				unknown = r
			}
		case EffectConditional:
			rationales = append(rationales, r.Rationale)
			conditions = append(conditions, r.Conditions...)
		}
	}

	if unknown != nil {
		return governance.NewVerdict(p, governance.StatusUnknown, unknown.Rationale), nil
	}
	if len(conditions) > 0 || len(rationales) > 0 {
		return governance.NewVerdict(p, governance.StatusConditional, strings.Join(rationales, "; "), conditions...), nil
	}

	rationale := p.spec.ApproveRationale
	if rationale == "" {
		rationale = DefaultApproveRationale
	}
	return governance.NewVerdict(p, governance.StatusApprove, rationale), nil
}

func activation(req *governance.ChangeRequest) map[string]any {
	return map[string]any{
		"id":          req.ID(),
		"description": req.Description(),
		"tags":        tagList(req.Tags()),
		"attributes":  req.Attributes(),
	}
}

func tagList(tags governance.TagSet) []string {
	if tags == nil {
		return []string{}
	}
	return []string(tags)
}
