// Package classifier selects the policies that apply to a change request.
package classifier

import (
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/arbiter/pkg/governance"
)

// Source supplies policies in ascending priority order.
type Source interface {
	All() []governance.Policy
}

// Result is the outcome of classification.
type Result struct {
	// Applicable lists the policies to evaluate, in priority order.
	Applicable []governance.Policy

	// Skipped lists the registered policies that were not selected.
	Skipped []governance.SkippedPolicy
}

// Classifier maps request tags to applicable policies.
type Classifier struct {
	logger *slog.Logger
}

// New creates a classifier. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger.With("component", "classifier")}
}

// Classify selects the applicable policies for req. Mandatory policies are
// always selected. If nothing applies an *UnclassifiableContextError is
// returned together with the skipped list.
func (c *Classifier) Classify(req *governance.ChangeRequest, src Source) (*Result, error) {
	tags := req.Tags()
	result := &Result{
		Applicable: []governance.Policy{},
		Skipped:    []governance.SkippedPolicy{},
	}

	for _, p := range src.All() {
		if governance.IsMandatory(p) || appliesSafely(p, tags) {
			result.Applicable = append(result.Applicable, p)
			continue
		}
		result.Skipped = append(result.Skipped, governance.SkippedPolicy{
			Name:     p.Name(),
			Priority: p.Priority(),
			Reason:   skipReason(tags),
		})
	}

	c.logger.Debug("request classified",
		"request_id", req.ID(),
		"tags", []string(tags),
		"applicable", len(result.Applicable),
		"skipped", len(result.Skipped),
	)

	if len(result.Applicable) == 0 {
		return result, governance.NewUnclassifiableContextError(req.ID(), tags)
	}
	return result, nil
}

// appliesSafely treats a panicking AppliesTo as applicable so the policy
// still gets a verdict.
func appliesSafely(p governance.Policy, tags governance.TagSet) (applies bool) {
	defer func() {
		if recover() != nil {
			applies = true
		}
	}()
	return p.AppliesTo(tags)
}

func skipReason(tags governance.TagSet) string {
	return fmt.Sprintf("not applicable to tags [%s]", strings.Join(tags, ", "))
}
