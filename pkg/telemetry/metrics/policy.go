package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/arbiter/pkg/config"
)

// PolicyMetrics tracks per-policy evaluation.
//
// Metrics:
//   - arbiter_policy_evaluations_total: evaluations by policy and verdict status
//   - arbiter_policy_evaluation_duration_seconds: evaluation duration by policy
//   - arbiter_policy_timeouts_total: evaluations cut off by the policy timeout
//   - arbiter_policies_registered: policies in the sealed registry
type PolicyMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	timeoutsTotal      *prometheus.CounterVec
	registered         prometheus.Gauge
}

// NewPolicyMetrics creates and registers policy metrics with the provided registry.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_evaluations_total",
				Help:      "Total number of policy evaluations",
			},
			[]string{"policy", "status"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_evaluation_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				Buckets:   cfg.EvaluationDurationBuckets,
			},
			[]string{"policy"},
		),

		timeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_timeouts_total",
				Help:      "Total number of policy evaluations that exceeded the policy timeout",
			},
			[]string{"policy"},
		),

		registered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "policies_registered",
				Help:      "Number of policies in the sealed registry",
			},
		),
	}

	registry.MustRegister(
		pm.evaluationsTotal,
		pm.evaluationDuration,
		pm.timeoutsTotal,
		pm.registered,
	)

	return pm
}

// RecordEvaluation records a policy evaluation.
func (pm *PolicyMetrics) RecordEvaluation(policy, status string, duration time.Duration) {
	pm.evaluationsTotal.WithLabelValues(policy, status).Inc()
	pm.evaluationDuration.WithLabelValues(policy).Observe(duration.Seconds())
}

// RecordTimeout records a policy timeout.
func (pm *PolicyMetrics) RecordTimeout(policy string) {
	pm.timeoutsTotal.WithLabelValues(policy).Inc()
}

// SetRegistered sets the registered policy gauge.
func (pm *PolicyMetrics) SetRegistered(n int) {
	pm.registered.Set(float64(n))
}
