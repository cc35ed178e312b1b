package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/arbiter/pkg/governance"
)

// Attribute keys set on decision spans.
const (
	AttrRequestID      = "arbiter.request_id"
	AttrTags           = "arbiter.tags"
	AttrPolicy         = "arbiter.policy"
	AttrPriority       = "arbiter.policy.priority"
	AttrVerdict        = "arbiter.verdict"
	AttrFinalStatus    = "arbiter.final_status"
	AttrDominantPolicy = "arbiter.dominant_policy"
	AttrAuditSequence  = "arbiter.audit.sequence"
	AttrApplicable     = "arbiter.applicable_policies"
)

// RequestAttributes describes a change request.
func RequestAttributes(req *governance.ChangeRequest) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRequestID, req.ID()),
		attribute.StringSlice(AttrTags, []string(req.Tags())),
	}
}

// PolicyAttributes describes the policy being evaluated.
func PolicyAttributes(p governance.Policy) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrPolicy, p.Name()),
		attribute.Int(AttrPriority, p.Priority()),
	}
}

// SetVerdict records a policy's verdict on span. An UNKNOWN verdict marks
// the span failed with its rationale.
func SetVerdict(span trace.Span, v governance.Verdict) {
	span.SetAttributes(attribute.String(AttrVerdict, string(v.Status)))
	if v.Status == governance.StatusUnknown {
		span.SetStatus(codes.Error, v.Rationale)
	}
}

// SetDecision records the outcome of a recorded decision on span.
func SetDecision(span trace.Span, entry *governance.AuditEntry) {
	span.SetAttributes(
		attribute.String(AttrFinalStatus, string(entry.Decision.FinalStatus)),
		attribute.String(AttrDominantPolicy, entry.Decision.DominantPolicy),
		attribute.Int64(AttrAuditSequence, int64(entry.Sequence)),
	)
}
