package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/governance"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := NewWithProvider(tp)
	t.Cleanup(func() { tr.Shutdown(context.Background()) })
	return tr, rec
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestNew_Disabled(t *testing.T) {
	tr, err := New(context.Background(), &config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.Enabled() {
		t.Error("disabled config produced an enabled tracer")
	}
	_, span := tr.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("noop tracer produced a valid span context")
	}
	span.End()
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil, "test"); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{strategy: SamplerAlways},
		{strategy: SamplerNever},
		{strategy: SamplerRatio, ratio: 0.25},
		{strategy: SamplerRatio, ratio: 1.5, wantErr: true},
		{strategy: SamplerRatio, ratio: -0.1, wantErr: true},
		{strategy: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			s, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s == nil {
				t.Error("createSampler() returned a nil sampler")
			}
		})
	}
}

func TestSpanHelpers(t *testing.T) {
	tr, rec := newRecordingTracer(t)
	req := governance.NewChangeRequest("ship it", []string{"release", "freeze"}, governance.WithID("rel-1"))
	policy := &governance.PolicyFunc{PolicyName: "release-gate", PolicyPriority: 8}

	ctx, root := tr.Start(context.Background(), "root")
	root.SetAttributes(RequestAttributes(req)...)
	if TraceID(ctx) == "" {
		t.Error("TraceID() empty inside a recorded span")
	}

	_, child := tr.Start(ctx, "child")
	child.SetAttributes(PolicyAttributes(policy)...)
	SetVerdict(child, governance.Verdict{Status: governance.StatusUnknown, Rationale: "timed out"})
	child.End()

	SetError(root, errors.New("disk full"))
	SetDecision(root, &governance.AuditEntry{
		Sequence: 7,
		Decision: governance.Decision{FinalStatus: governance.FinalBlocked, DominantPolicy: "release-gate"},
	})
	root.End()

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	c := spans[0]
	if got := attrs(c)[AttrPolicy].AsString(); got != "release-gate" {
		t.Errorf("policy attribute = %q", got)
	}
	if got := attrs(c)[AttrVerdict].AsString(); got != "UNKNOWN" {
		t.Errorf("verdict attribute = %q", got)
	}
	if c.Status().Code != codes.Error || c.Status().Description != "timed out" {
		t.Errorf("unknown verdict status = %+v", c.Status())
	}
	if c.Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("child span is not parented to root")
	}

	r := attrs(spans[1])
	if r[AttrRequestID].AsString() != "rel-1" || r[AttrAuditSequence].AsInt64() != 7 {
		t.Errorf("root attributes = %v", r)
	}
	if got := r[AttrTags].AsStringSlice(); len(got) != 2 {
		t.Errorf("tags attribute = %v", got)
	}
	if spans[1].Status().Code != codes.Error || len(spans[1].Events()) == 0 {
		t.Error("SetError did not record the error")
	}
}

func TestSetError_Nil(t *testing.T) {
	tr, rec := newRecordingTracer(t)
	_, span := tr.Start(context.Background(), "ok")
	SetError(span, nil)
	span.End()

	if got := rec.Ended()[0].Status().Code; got != codes.Unset {
		t.Errorf("status = %v, want unset", got)
	}
}

func TestExtractInject(t *testing.T) {
	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	h := http.Header{}
	h.Set("traceparent", traceparent)
	ctx := Extract(context.Background(), h)

	tr, _ := newRecordingTracer(t)
	ctx, span := tr.Start(ctx, "server")
	defer span.End()

	if got := TraceID(ctx); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("TraceID() = %q, want caller's trace", got)
	}

	out := http.Header{}
	Inject(ctx, out)
	if out.Get("traceparent") == "" {
		t.Error("Inject() wrote no traceparent")
	}
}

func TestTraceID_Empty(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID() = %q, want empty", got)
	}
}
