package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/governance"
)

// Collector owns every Prometheus metric the engine exports. It satisfies
// the recorder interfaces of the coordinator, the audit log and the chain
// verification scheduler, so one Collector is passed to all of them.
//
// A Collector built from a config with Enabled=false registers its metrics
// but drops every observation.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	policyMetrics   *PolicyMetrics
	decisionMetrics *DecisionMetrics
	auditMetrics    *AuditMetrics
	requestMetrics  *RequestMetrics
}

// NewCollector creates a collector registered with registry. If registry is
// nil a fresh private registry is used.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	coord := coordinator.New(coordCfg, coordinator.WithRecorder(collector))
//	log, _ := audit.New(ctx, sink, audit.WithRecorder(collector))
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := *cfg
	if c.Namespace == "" {
		c.Namespace = config.DefaultMetricsNamespace
	}
	if len(c.EvaluationDurationBuckets) == 0 {
		c.EvaluationDurationBuckets = config.DefaultEvaluationDurationBuckets
	}

	return &Collector{
		config:          &c,
		registry:        registry,
		policyMetrics:   NewPolicyMetrics(&c, registry),
		decisionMetrics: NewDecisionMetrics(&c, registry),
		auditMetrics:    NewAuditMetrics(&c, registry),
		requestMetrics:  NewRequestMetrics(&c, registry),
	}
}

// RecordVerdict records one policy evaluation.
func (c *Collector) RecordVerdict(policy string, status governance.VerdictStatus, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.policyMetrics.RecordEvaluation(policy, string(status), duration)
}

// RecordTimeout records a policy that exceeded its evaluation deadline.
func (c *Collector) RecordTimeout(policy string) {
	if !c.config.Enabled {
		return
	}
	c.policyMetrics.RecordTimeout(policy)
}

// SetRegisteredPolicies publishes the size of the sealed registry.
func (c *Collector) SetRegisteredPolicies(n int) {
	if !c.config.Enabled {
		return
	}
	c.policyMetrics.SetRegistered(n)
}

// RecordDecision records a resolved decision and the end-to-end latency of
// the request that produced it.
func (c *Collector) RecordDecision(status governance.FinalStatus, dominant string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.decisionMetrics.RecordDecision(string(status), dominant, duration)
}

// RecordAuditAppend records the outcome of an audit log append.
func (c *Collector) RecordAuditAppend(success bool) {
	if !c.config.Enabled {
		return
	}
	c.auditMetrics.RecordAppend(success)
}

// RecordChainVerification records a hash chain verification run.
func (c *Collector) RecordChainVerification(valid bool, entries int) {
	if !c.config.Enabled {
		return
	}
	c.auditMetrics.RecordVerification(valid, entries)
}

// RecordHTTPRequest records one API request. route is the registered
// pattern, never the raw URL path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(method, route, status, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
