// Package governance defines the data model shared by the decision engine:
// change requests, policy verdicts, combined decisions and audit entries,
// along with the Policy contract and the error taxonomy.
//
// # Decision Model
//
// Each registered policy has a unique name and a unique priority (lower
// value = higher precedence). For every change request the engine:
//
//  1. selects the applicable policies from the request tags (the
//     guardrails policy always applies)
//  2. evaluates them concurrently, each under its own timeout
//  3. reduces the verdicts into one decision: the highest-precedence BLOCK
//     or UNKNOWN blocks, otherwise any CONDITIONAL makes the decision
//     conditional, otherwise the change is approved
//  4. appends the decision to a hash-chained audit log
//
// UNKNOWN is never treated as an approval. Any fault in the pipeline yields
// a BLOCKED decision.
//
// # Basic Usage
//
//	req := governance.NewChangeRequest("add orders index", []string{"database-change"})
//	decision, err := gov.Decide(ctx, req)
//	if err != nil {
//	    var auditErr *governance.AuditFailureError
//	    if errors.As(err, &auditErr) {
//	        // the decision could not be recorded and must not be acted upon
//	    }
//	}
//
// Subpackages provide the registry, classifier, coordinator, resolver and
// the governor facade that composes them.
package governance
