// Package tracing provides OpenTelemetry distributed tracing for Arbiter.
//
// # Overview
//
// A decision produces one trace: the HTTP route span (when served over the
// API), a governor.Record span covering classification, evaluation and the
// audit append, and one policy.Evaluate child span per applicable policy.
// Spans carry the request ID, the policy name and the resulting status so
// a slow or failing policy can be found from a single request.
//
// # Trace Context Propagation
//
// Incoming W3C Trace Context headers are honoured, so a caller's trace
// continues into the decision:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// # Sampling Strategies
//
//   - always: sample every trace
//   - never: sample nothing
//   - ratio: sample a fraction of root traces
//
// Every sampler is parent-based, so a sampled caller keeps the decision
// sampled.
//
// # Usage
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	gov, err := governor.New(reg, coord, auditLog,
//	    governor.WithTracer(tracer.Tracer()),
//	)
//
// When tracing is disabled New returns a tracer backed by the no-op
// provider, so callers never need a nil check.
package tracing
