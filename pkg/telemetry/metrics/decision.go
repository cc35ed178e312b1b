package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/arbiter/pkg/config"
)

// DecisionMetrics tracks resolved decisions.
//
// Metrics:
//   - arbiter_decisions_total: decisions by final status and dominant policy
//   - arbiter_decision_duration_seconds: end-to-end decision latency
type DecisionMetrics struct {
	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
}

// NewDecisionMetrics creates and registers decision metrics.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_total",
				Help:      "Total number of governance decisions",
			},
			[]string{"final_status", "dominant_policy"},
		),
		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "decision_duration_seconds",
				Help:      "Duration from request to recorded decision in seconds",
				Buckets:   cfg.EvaluationDurationBuckets,
			},
			[]string{"final_status"},
		),
	}
	registry.MustRegister(dm.decisionsTotal, dm.decisionDuration)
	return dm
}

// RecordDecision records one decision.
func (dm *DecisionMetrics) RecordDecision(status, dominant string, duration time.Duration) {
	dm.decisionsTotal.WithLabelValues(status, dominant).Inc()
	dm.decisionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// AuditMetrics tracks the audit log.
//
// Metrics:
//   - arbiter_audit_appends_total: appends by result ("success", "failure")
//   - arbiter_audit_verifications_total: chain verifications by result ("valid", "broken")
//   - arbiter_audit_verified_entries: entries covered by the last verification
type AuditMetrics struct {
	appendsTotal       *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	verifiedEntries    prometheus.Gauge
}

// NewAuditMetrics creates and registers audit metrics.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		appendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_appends_total",
				Help:      "Total number of audit log appends",
			},
			[]string{"result"},
		),
		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_verifications_total",
				Help:      "Total number of audit hash chain verifications",
			},
			[]string{"result"},
		),
		verifiedEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "audit_verified_entries",
				Help:      "Number of entries checked by the last chain verification",
			},
		),
	}
	registry.MustRegister(am.appendsTotal, am.verificationsTotal, am.verifiedEntries)
	return am
}

// RecordAppend records an append outcome.
func (am *AuditMetrics) RecordAppend(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	am.appendsTotal.WithLabelValues(result).Inc()
}

// RecordVerification records a verification outcome.
func (am *AuditMetrics) RecordVerification(valid bool, entries int) {
	result := "valid"
	if !valid {
		result = "broken"
	}
	am.verificationsTotal.WithLabelValues(result).Inc()
	am.verifiedEntries.Set(float64(entries))
}
