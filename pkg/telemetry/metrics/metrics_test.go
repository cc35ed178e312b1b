package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/governance"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:                   true,
		Namespace:                 "test",
		EvaluationDurationBuckets: []float64{0.001, 0.01, 0.1, 1},
	}
}

func TestCollector_RecordVerdict(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordVerdict(governance.PolicyGuardrails, governance.StatusApprove, 2*time.Millisecond)
	c.RecordVerdict(governance.PolicyGuardrails, governance.StatusApprove, 3*time.Millisecond)
	c.RecordVerdict(governance.PolicyQA, governance.StatusConditional, time.Millisecond)
	c.RecordTimeout(governance.PolicyRegression)

	ev := c.policyMetrics.evaluationsTotal
	if got := testutil.ToFloat64(ev.WithLabelValues("guardrails", "APPROVE")); got != 2 {
		t.Errorf("guardrails APPROVE = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ev.WithLabelValues("qa", "CONDITIONAL")); got != 1 {
		t.Errorf("qa CONDITIONAL = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.policyMetrics.timeoutsTotal.WithLabelValues("regression")); got != 1 {
		t.Errorf("regression timeouts = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.policyMetrics.evaluationDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestCollector_RecordDecision(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordDecision(governance.FinalBlocked, governance.PolicyGuardrails, 5*time.Millisecond)
	c.RecordDecision(governance.FinalBlocked, governance.DominantClassifier, time.Millisecond)
	c.RecordDecision(governance.FinalApproved, governance.PolicyGuardrails, time.Millisecond)

	dt := c.decisionMetrics.decisionsTotal
	if got := testutil.ToFloat64(dt.WithLabelValues("BLOCKED", "guardrails")); got != 1 {
		t.Errorf("BLOCKED/guardrails = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(dt); got != 3 {
		t.Errorf("decision series = %d, want 3", got)
	}
}

func TestCollector_Audit(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordAuditAppend(true)
	c.RecordAuditAppend(true)
	c.RecordAuditAppend(false)
	c.RecordChainVerification(true, 42)

	at := c.auditMetrics.appendsTotal
	if got := testutil.ToFloat64(at.WithLabelValues("success")); got != 2 {
		t.Errorf("success appends = %v, want 2", got)
	}
	if got := testutil.ToFloat64(at.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed appends = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.auditMetrics.verifiedEntries); got != 42 {
		t.Errorf("verified entries = %v, want 42", got)
	}

	c.RecordChainVerification(false, 7)
	if got := testutil.ToFloat64(c.auditMetrics.verificationsTotal.WithLabelValues("broken")); got != 1 {
		t.Errorf("broken verifications = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, nil)

	c.RecordVerdict("p", governance.StatusBlock, time.Millisecond)
	c.RecordDecision(governance.FinalBlocked, "p", time.Millisecond)
	c.RecordAuditAppend(true)
	c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	c.SetRegisteredPolicies(8)

	if n := testutil.CollectAndCount(c.policyMetrics.evaluationsTotal); n != 0 {
		t.Errorf("disabled collector recorded %d evaluation series", n)
	}
	if got := testutil.ToFloat64(c.policyMetrics.registered); got != 0 {
		t.Errorf("disabled collector set registered gauge to %v", got)
	}
}

func TestCollector_DefaultsDoNotMutateConfig(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)
	if cfg.Namespace != "" {
		t.Errorf("caller config mutated: Namespace = %q", cfg.Namespace)
	}
	if c.config.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("Namespace = %q, want %q", c.config.Namespace, config.DefaultMetricsNamespace)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 404: "4xx", 503: "5xx", 42: "42"}
	for code, want := range tests {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.SetRegisteredPolicies(8)
	c.RecordHTTPRequest(http.MethodPost, "/v1/decisions", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"test_policies_registered 8",
		`test_http_requests_total{method="POST",route="/v1/decisions",status="2xx"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
