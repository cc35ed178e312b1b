package rulebook

import (
	"fmt"
	"strings"

	"mercator-hq/arbiter/pkg/governance"
)

// Severity classifies a lint issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from Lint.
type Issue struct {
	Severity Severity `json:"severity"`
	Policy   string   `json:"policy,omitempty"`
	Rule     string   `json:"rule,omitempty"`
	Origin   string   `json:"origin,omitempty"`
	Message  string   `json:"message"`
}

// String formats the issue as "origin: policy/rule: message".
func (i Issue) String() string {
	var sb strings.Builder
	if i.Origin != "" {
		sb.WriteString(i.Origin)
		sb.WriteString(": ")
	}
	if i.Policy != "" {
		sb.WriteString(i.Policy)
		if i.Rule != "" {
			sb.WriteString("/")
			sb.WriteString(i.Rule)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(i.Message)
	return sb.String()
}

// Errors filters issues down to error severity.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Lint checks a document without building it: structural problems, name and
// priority collisions, and expressions that do not compile to bool.
func Lint(doc *Document) []Issue {
	var issues []Issue
	add := func(sev Severity, p *PolicySpec, rule, format string, args ...any) {
		issues = append(issues, Issue{
			Severity: sev,
			Policy:   p.Name,
			Rule:     rule,
			Origin:   p.Origin,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if doc == nil || len(doc.Policies) == 0 {
		return []Issue{{Severity: SeverityError, Message: "rulebook declares no policies"}}
	}

	names := make(map[string]bool, len(doc.Policies))
	priorities := make(map[int]string, len(doc.Policies))
	mandatory := 0

	for i := range doc.Policies {
		p := &doc.Policies[i]

		if strings.TrimSpace(p.Name) == "" {
			add(SeverityError, p, "", "policy #%d has no name", i+1)
		} else if names[p.Name] {
			add(SeverityError, p, "", "duplicate policy name")
		}
		names[p.Name] = true

		if other, taken := priorities[p.Priority]; taken {
			add(SeverityError, p, "", "priority %d already used by %q", p.Priority, other)
		} else {
			priorities[p.Priority] = p.Name
		}
		if p.Priority < 0 {
			add(SeverityWarning, p, "", "negative priority %d", p.Priority)
		}

		if p.Name == governance.PolicyGuardrails && !p.Mandatory {
			add(SeverityError, p, "", "%s must be mandatory: it runs for every request", governance.PolicyGuardrails)
		}

		if p.Mandatory {
			mandatory++
			if p.AppliesWhen != "" {
				add(SeverityWarning, p, "", "applies_when is ignored for mandatory policies")
			}
		} else if p.AppliesWhen == "" {
			add(SeverityWarning, p, "", "no applies_when: policy runs for every request")
		} else if _, err := compileBool(applyEnv, p.AppliesWhen); err != nil {
			add(SeverityError, p, "", "applies_when: %v", err)
		}

		if len(p.Rules) == 0 {
			add(SeverityWarning, p, "", "policy has no rules and always approves")
		}

		ruleNames := make(map[string]bool, len(p.Rules))
		for j, r := range p.Rules {
			name := r.Name
			if name == "" {
				name = fmt.Sprintf("#%d", j+1)
				add(SeverityWarning, p, name, "rule has no name")
			} else if ruleNames[name] {
				add(SeverityError, p, name, "duplicate rule name")
			}
			ruleNames[name] = true

			if !r.Effect.Valid() {
				add(SeverityError, p, name, "invalid effect %q (must be one of: block, unknown, conditional)", r.Effect)
			}
			if _, err := compileBool(ruleEnv, r.When); err != nil {
				add(SeverityError, p, name, "when: %v", err)
			}
			if r.Rationale == "" {
				add(SeverityWarning, p, name, "rule has no rationale")
			}
			switch {
			case r.Effect == EffectConditional && len(r.Conditions) == 0:
				add(SeverityWarning, p, name, "conditional rule lists no conditions")
			case r.Effect != EffectConditional && len(r.Conditions) > 0:
				add(SeverityWarning, p, name, "conditions are ignored for %s rules", r.Effect)
			}
		}
	}

	if mandatory == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  "no mandatory policy: requests matching no applies_when are unclassifiable",
		})
	}
	return issues
}
