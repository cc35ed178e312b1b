package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/storage"
	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/governance"
	"mercator-hq/arbiter/pkg/governance/coordinator"
	"mercator-hq/arbiter/pkg/governance/governor"
	"mercator-hq/arbiter/pkg/governance/registry"
	"mercator-hq/arbiter/pkg/rulebook"
	"mercator-hq/arbiter/pkg/telemetry/health"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
)

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxBodyBytes:    4096,
	}
}

type testEnv struct {
	server    *Server
	log       *audit.Log
	collector *metrics.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rb, err := rulebook.Default()
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New()
	if err := rb.RegisterAll(reg); err != nil {
		t.Fatal(err)
	}
	reg.Seal()

	log, err := audit.New(context.Background(), storage.NewMemorySink())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	gov, err := governor.New(reg, coordinator.New(coordinator.Config{PolicyTimeout: time.Second}), log)
	if err != nil {
		t.Fatal(err)
	}

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	srv, err := New(testServerConfig(), Deps{
		Decider:  gov,
		Audit:    log,
		Metrics:  collector.Handler(),
		Recorder: collector,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{server: srv, log: log, collector: collector}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantCode     int
		wantStatus   governance.FinalStatus
		wantDominant string
		wantErrCode  string
	}{
		{
			name:         "approved docs change",
			body:         `{"id":"req-1","description":"fix typo","tags":["docs"]}`,
			wantCode:     http.StatusOK,
			wantStatus:   governance.FinalApproved,
			wantDominant: governance.PolicyGuardrails,
		},
		{
			name:         "blocked release during freeze",
			body:         `{"description":"cut release","tags":["release","freeze"],"attributes":{"version":"1.2.0"}}`,
			wantCode:     http.StatusOK,
			wantStatus:   governance.FinalBlocked,
			wantDominant: governance.PolicyReleaseGate,
		},
		{
			name:        "malformed json",
			body:        `{"description":`,
			wantCode:    http.StatusBadRequest,
			wantErrCode: CodeInvalidRequest,
		},
		{
			name:        "body too large",
			body:        `{"description":"` + strings.Repeat("a", 5000) + `"}`,
			wantCode:    http.StatusRequestEntityTooLarge,
			wantErrCode: CodeBodyTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/v1/decisions", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantErrCode != "" {
				if got := decode[ErrorResponse](t, w).Error.Code; got != tt.wantErrCode {
					t.Errorf("error code = %q, want %q", got, tt.wantErrCode)
				}
				return
			}

			resp := decode[DecisionResponse](t, w)
			if resp.FinalStatus != tt.wantStatus || resp.DominantPolicy != tt.wantDominant {
				t.Errorf("decision = %s/%s, want %s/%s (%s)",
					resp.FinalStatus, resp.DominantPolicy, tt.wantStatus, tt.wantDominant, resp.Rationale)
			}
			if resp.AuditSequence != 1 || len(resp.AuditHash) != 64 {
				t.Errorf("audit sequence %d hash %q", resp.AuditSequence, resp.AuditHash)
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}
}

func TestDecide_KeepsRequestID(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/decisions", `{"id":"chg-42","description":"x","tags":["docs"]}`)
	if got := decode[DecisionResponse](t, w).RequestID; got != "chg-42" {
		t.Errorf("RequestID = %q, want chg-42", got)
	}
}

type failingDecider struct{}

func (failingDecider) Record(_ context.Context, req *governance.ChangeRequest) (*governance.AuditEntry, error) {
	return nil, governance.NewAuditFailureError(req.ID(), errors.New("disk full"))
}

func (failingDecider) Policies() []governance.Policy { return nil }

func TestDecide_AuditFailure(t *testing.T) {
	log, err := audit.New(context.Background(), storage.NewMemorySink())
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(testServerConfig(), Deps{Decider: failingDecider{}, Audit: log})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/decisions", strings.NewReader(`{"description":"x"}`)))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if strings.Contains(w.Body.String(), "finalStatus") {
		t.Error("response carries a decision despite audit failure")
	}
}

func TestAuditList(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/decisions", `{"id":"a","description":"docs","tags":["docs"]}`)
	env.do(t, http.MethodPost, "/v1/decisions", `{"id":"b","description":"","tags":["docs"]}`)
	env.do(t, http.MethodPost, "/v1/decisions", `{"id":"c","description":"docs","tags":["docs"]}`)

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantIDs  string
	}{
		{name: "all", query: "", wantCode: http.StatusOK, wantIDs: "a,b,c"},
		{name: "by status", query: "?status=BLOCKED", wantCode: http.StatusOK, wantIDs: "b"},
		{name: "by request", query: "?request_id=c", wantCode: http.StatusOK, wantIDs: "c"},
		{name: "paged", query: "?limit=1&offset=1", wantCode: http.StatusOK, wantIDs: "b"},
		{name: "bad limit", query: "?limit=ten", wantCode: http.StatusBadRequest},
		{name: "bad status", query: "?status=MAYBE", wantCode: http.StatusBadRequest},
		{name: "bad since", query: "?since=yesterday", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/v1/audit"+tt.query, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			resp := decode[AuditListResponse](t, w)
			var ids []string
			for _, e := range resp.Entries {
				ids = append(ids, e.Decision.RequestID)
			}
			if got := strings.Join(ids, ","); got != tt.wantIDs || resp.Count != len(ids) {
				t.Errorf("ids = %s (count %d), want %s", got, resp.Count, tt.wantIDs)
			}
		})
	}
}

func TestAuditVerify(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/decisions", `{"description":"docs","tags":["docs"]}`)
	env.do(t, http.MethodPost, "/v1/decisions", `{"description":"docs","tags":["docs"]}`)

	w := env.do(t, http.MethodGet, "/v1/audit/verify", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[VerifyResponse](t, w)
	if !resp.Valid || resp.Entries != 2 || resp.Broken != nil {
		t.Errorf("verify = %+v, want valid over 2 entries", resp)
	}
}

func TestPoliciesAndHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/policies", "")
	policies := decode[[]PolicyInfo](t, w)
	if len(policies) != 8 {
		t.Fatalf("policies = %d, want 8", len(policies))
	}
	if p := policies[0]; p.Name != governance.PolicyGuardrails || p.Priority != 1 || !p.Mandatory || p.Description == "" {
		t.Errorf("first policy = %+v", p)
	}

	w = env.do(t, http.MethodGet, "/health", "")
	health := decode[map[string]any](t, w)
	if w.Code != http.StatusOK || health["status"] != "ok" || health["policies"] != float64(8) {
		t.Errorf("health = %d %v", w.Code, health)
	}
}

func TestReady(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/ready", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /ready = %d, want 200: %s", w.Code, w.Body.String())
	}
	status := decode[map[string]any](t, w)
	checks, _ := status["checks"].(map[string]any)
	for _, name := range []string{"audit_store", "policies"} {
		if _, ok := checks[name]; !ok {
			t.Errorf("readiness missing check %q: %v", name, status)
		}
	}
}

func TestReady_ExtraCheckFails(t *testing.T) {
	env := newTestEnv(t)
	srv, err := New(testServerConfig(), Deps{
		Decider: env.server.deps.Decider,
		Audit:   env.log,
		Checks: map[string]health.CheckFunc{
			"audit_chain": func(context.Context) error { return errors.New("broken") },
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /ready = %d, want 503", w.Code)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)
	cfg := testServerConfig()
	cfg.Auth = config.AuthConfig{
		Enabled: true,
		Keys:    []config.APIKeyConfig{{Name: "ci", Key: "sk-ci"}},
	}
	srv, err := New(cfg, Deps{Decider: env.server.deps.Decider, Audit: env.log})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{name: "policies without key", path: "/v1/policies", status: http.StatusUnauthorized},
		{name: "policies with wrong key", path: "/v1/policies", key: "sk-nope", status: http.StatusUnauthorized},
		{name: "policies with key", path: "/v1/policies", key: "sk-ci", status: http.StatusOK},
		{name: "audit with key", path: "/v1/audit", key: "sk-ci", status: http.StatusOK},
		{name: "health stays open", path: "/health", status: http.StatusOK},
		{name: "ready stays open", path: "/ready", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("Authorization", "Bearer "+tt.key)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("GET %s = %d, want %d", tt.path, w.Code, tt.status)
			}
			if tt.status == http.StatusUnauthorized {
				if e := decode[ErrorResponse](t, w); e.Error.Code != CodeUnauthorized {
					t.Errorf("error code = %q", e.Error.Code)
				}
			}
		})
	}
}

func TestMethodAndRouting(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/v1/decisions", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/decisions = %d, want 405", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", w.Code)
	}

	env.do(t, http.MethodGet, "/health", "")
	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `route="GET /health"`) {
		t.Errorf("metrics missing route label: %d", w.Code)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := newTestEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	deadline := time.Now().Add(2 * time.Second)
	var resp *http.Response
	for time.Now().Before(deadline) {
		resp, err = http.Get("http://" + ln.Addr().String() + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()
	if !env.server.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if env.server.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

func TestServe_TLS(t *testing.T) {
	// Borrow httptest's certificate; its client already trusts it.
	ts := httptest.NewUnstartedServer(http.NotFoundHandler())
	ts.StartTLS()
	defer ts.Close()
	client := ts.Client()

	env := newTestEnv(t)
	deps := env.server.deps
	deps.TLSConfig = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: ts.TLS.Certificates,
	}
	srv, err := New(testServerConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = client.Get("https://" + ln.Addr().String() + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("https request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.TLS == nil {
		t.Error("response was not served over TLS")
	}

	plain, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err == nil {
		plain.Body.Close()
		if plain.StatusCode == http.StatusOK {
			t.Error("plain HTTP was served on the TLS listener")
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Deps{}); err == nil {
		t.Error("New(nil config) error = nil")
	}
	if _, err := New(testServerConfig(), Deps{}); err == nil {
		t.Error("New(no deps) error = nil")
	}
}
