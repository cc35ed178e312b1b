// Package resolver reduces a set of policy verdicts to one decision.
//
// Resolution is a pure function of its inputs. Verdicts are ranked by
// priority; the first BLOCK or UNKNOWN in that order blocks the change,
// otherwise any CONDITIONAL makes it conditional, otherwise it is approved.
// An empty verdict set is blocked.
package resolver

import (
	"cmp"
	"slices"
	"time"

	"mercator-hq/arbiter/pkg/governance"
)

// RationaleNoVerdicts is recorded when there is nothing to resolve.
const RationaleNoVerdicts = "no verdicts to resolve"

// Resolve combines verdicts into a decision for requestID. A CONDITIONAL
// decision carries the conditions of every CONDITIONAL verdict in priority
// order; a condition repeated by a later policy is dropped, keeping its
// first occurrence.
func Resolve(requestID string, verdicts []governance.Verdict, decidedAt time.Time) governance.Decision {
	ordered := slices.Clone(verdicts)
	slices.SortStableFunc(ordered, func(a, b governance.Verdict) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	for i := range ordered {
		ordered[i].Conditions = slices.Clone(ordered[i].Conditions)
		if ordered[i].Conditions == nil {
			ordered[i].Conditions = []string{}
		}
	}

	d := governance.Decision{
		RequestID:  requestID,
		Verdicts:   ordered,
		Conditions: []string{},
		DecidedAt:  decidedAt,
	}

	if len(ordered) == 0 {
		d.FinalStatus = governance.FinalBlocked
		d.DominantPolicy = governance.DominantResolver
		d.Rationale = RationaleNoVerdicts
		return d
	}

	// UNKNOWN blocks at its own priority.
	for _, v := range ordered {
		if v.Status == governance.StatusBlock || v.Status == governance.StatusUnknown || !v.Status.Valid() {
			d.FinalStatus = governance.FinalBlocked
			d.DominantPolicy = v.PolicyName
			d.Rationale = v.Rationale
			return d
		}
	}

	var dominant *governance.Verdict
	seen := make(map[string]struct{})
	for i := range ordered {
		v := &ordered[i]
		if v.Status != governance.StatusConditional {
			continue
		}
		if dominant == nil {
			dominant = v
		}
		for _, c := range v.Conditions {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			d.Conditions = append(d.Conditions, c)
		}
	}
	if dominant != nil {
		d.FinalStatus = governance.FinalConditional
		d.DominantPolicy = dominant.PolicyName
		d.Rationale = dominant.Rationale
		return d
	}

	d.FinalStatus = governance.FinalApproved
	d.DominantPolicy = ordered[0].PolicyName
	d.Rationale = ordered[0].Rationale
	return d
}

// Blocked synthesizes a BLOCKED decision attributed to an engine component
// rather than a policy.
func Blocked(requestID, dominant, rationale string, verdicts []governance.Verdict, decidedAt time.Time) governance.Decision {
	if verdicts == nil {
		verdicts = []governance.Verdict{}
	}
	return governance.Decision{
		RequestID:      requestID,
		FinalStatus:    governance.FinalBlocked,
		DominantPolicy: dominant,
		Rationale:      rationale,
		Verdicts:       verdicts,
		Conditions:     []string{},
		DecidedAt:      decidedAt,
	}
}
