package governance

import (
	"time"
)

// VerdictStatus is the outcome of a single policy evaluation.
type VerdictStatus string

const (
	// StatusApprove means the policy has no objection to the change.
	StatusApprove VerdictStatus = "APPROVE"

	// StatusBlock means the policy rejects the change.
	StatusBlock VerdictStatus = "BLOCK"

	// StatusConditional means the change may proceed once the attached
	// conditions are met.
	StatusConditional VerdictStatus = "CONDITIONAL"

	// StatusUnknown means the policy could not complete (timeout, fault,
	// insufficient input). It is never treated as an approval.
	StatusUnknown VerdictStatus = "UNKNOWN"
)

// Valid reports whether s is one of the four known verdict statuses.
func (s VerdictStatus) Valid() bool {
	switch s {
	case StatusApprove, StatusBlock, StatusConditional, StatusUnknown:
		return true
	}
	return false
}

// FinalStatus is the combined governance outcome for a change request.
type FinalStatus string

const (
	// FinalApproved means every consulted policy approved.
	FinalApproved FinalStatus = "APPROVED"

	// FinalBlocked means a BLOCK or UNKNOWN verdict dominated.
	FinalBlocked FinalStatus = "BLOCKED"

	// FinalConditional means no policy blocked but at least one attached
	// conditions.
	FinalConditional FinalStatus = "CONDITIONAL"
)

// Names recorded as the dominant policy when a decision is synthesized by
// the engine itself rather than by a registered policy.
const (
	DominantClassifier = "context-classifier"
	DominantResolver   = "conflict-resolver"
	DominantFacade     = "governance-facade"
)

// Canonical meta-policy names.
const (
	PolicyGuardrails          = "guardrails"
	PolicyProductionReadiness = "production-readiness"
	PolicyRegression          = "regression"
	PolicyCanaryFeatureFlag   = "canary-feature-flag"
	PolicyCicdReleaseGate     = "cicd-release-gate"
	PolicyMigrationOnly       = "migration-only"
	PolicyQA                  = "qa"
	PolicyReleaseGate         = "release-gate"
)

// Verdict is the result of one policy's evaluation of one change request.
type Verdict struct {
	// PolicyName is the name of the policy that produced this verdict.
	PolicyName string `json:"policyName"`

	// Priority is the policy's declared priority (lower = higher precedence).
	Priority int `json:"priority"`

	// Status is the policy's judgement.
	Status VerdictStatus `json:"status"`

	// Rationale explains the status in human-readable form.
	Rationale string `json:"rationale"`

	// Conditions must be satisfied before the change proceeds.
	// Empty unless Status is StatusConditional.
	Conditions []string `json:"conditions"`

	// EvaluatedAt is when the verdict was produced (or synthesized).
	EvaluatedAt time.Time `json:"evaluatedAt"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Decision is the single governance outcome for a change request.
// It is created once per request and never mutated afterwards.
type Decision struct {
	RequestID      string      `json:"requestId"`
	FinalStatus    FinalStatus `json:"finalStatus"`
	DominantPolicy string      `json:"dominantPolicy"`

	// Rationale is the dominant verdict's rationale, or the reason the
	// engine synthesized the decision.
	Rationale string `json:"rationale"`

	// Verdicts holds every verdict consulted, in priority order.
	Verdicts []Verdict `json:"verdicts"`

	// Conditions is the concatenation of all CONDITIONAL verdicts'
	// conditions. Empty unless FinalStatus is FinalConditional.
	Conditions []string `json:"conditions"`

	DecidedAt time.Time `json:"decidedAt"`
}

// Permitted reports whether the change may proceed, possibly subject to
// conditions.
func (d *Decision) Permitted() bool {
	return d.FinalStatus == FinalApproved || d.FinalStatus == FinalConditional
}

// SkippedPolicy records a registered policy that did not run for a request.
type SkippedPolicy struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Reason   string `json:"reason"`
}

// AuditEntry is one immutable record in the audit log: the decision, the
// request it resolved, and the policies that were skipped.
type AuditEntry struct {
	// Sequence is the 1-based, gap-free position of the entry in the log.
	Sequence uint64 `json:"sequence"`

	Request  ChangeRequest   `json:"request"`
	Decision Decision        `json:"decision"`
	Skipped  []SkippedPolicy `json:"skipped"`

	// RecordedAt is when the entry was appended.
	RecordedAt time.Time `json:"recordedAt"`

	// PrevHash is the Hash of the preceding entry (or the genesis hash).
	PrevHash string `json:"prevHash"`

	// Hash is the SHA-256 of the entry's canonical form, excluding Hash.
	Hash string `json:"hash"`
}
