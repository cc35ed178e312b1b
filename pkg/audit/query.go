package audit

import (
	"fmt"
	"time"

	"mercator-hq/arbiter/pkg/governance"
)

const (
	// DefaultLimit is the number of entries returned when Limit is zero.
	DefaultLimit = 100

	// MaxLimit caps a single listing.
	MaxLimit = 10000
)

// Query filters audit entries for listing. Zero fields match everything.
type Query struct {
	RequestID      string
	FinalStatus    governance.FinalStatus
	DominantPolicy string

	// Since and Until bound Decision.DecidedAt (inclusive).
	Since *time.Time
	Until *time.Time

	Limit  int
	Offset int
}

// Validate checks the query parameters.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	switch q.FinalStatus {
	case "", governance.FinalApproved, governance.FinalBlocked, governance.FinalConditional:
	default:
		return NewQueryError(q, fmt.Errorf("invalid final status: %s", q.FinalStatus))
	}
	if q.Since != nil && q.Until != nil && q.Since.After(*q.Until) {
		return NewQueryError(q, fmt.Errorf("since (%s) is after until (%s)",
			q.Since.Format(time.RFC3339), q.Until.Format(time.RFC3339)))
	}
	return nil
}

// Matches reports whether entry satisfies the filters. Pagination is not
// considered.
func (q *Query) Matches(entry *governance.AuditEntry) bool {
	d := &entry.Decision
	if q.RequestID != "" && d.RequestID != q.RequestID {
		return false
	}
	if q.FinalStatus != "" && d.FinalStatus != q.FinalStatus {
		return false
	}
	if q.DominantPolicy != "" && d.DominantPolicy != q.DominantPolicy {
		return false
	}
	if q.Since != nil && d.DecidedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && d.DecidedAt.After(*q.Until) {
		return false
	}
	return true
}

func (q *Query) limit() int {
	if q.Limit == 0 {
		return DefaultLimit
	}
	return q.Limit
}
