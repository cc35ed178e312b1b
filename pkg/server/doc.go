// Package server exposes the governor over HTTP.
//
// Routes:
//
//	POST /v1/decisions     decide a ChangeRequest and record it
//	GET  /v1/audit         list audit entries (request_id, status,
//	                       dominant_policy, since, until, limit, offset)
//	GET  /v1/audit/verify  recompute the hash chain
//	GET  /v1/policies      registered policies in priority order
//	GET  /health           liveness plus audit store reachability
//	GET  /ready            readiness checks (audit_store, policies, extras)
//	GET  /metrics          Prometheus exposition, when a collector is wired
//
// A decision is only returned after its audit entry has been written. If
// the audit append fails the handler answers 503 and no decision is
// released.
//
// When server.auth is enabled the /v1 routes require an API key; /health,
// /ready and /metrics stay open. Each route gets a server span when a
// tracer is wired. Deps.TLSConfig, usually built by package
// security/tls, switches the listener to HTTPS.
//
// Every request passes through recovery, request-ID, access logging and
// body-size middleware, in that order:
//
//	srv, err := server.New(&cfg.Server, server.Deps{
//	    Decider:  gov,
//	    Audit:    auditLog,
//	    Metrics:  collector.Handler(),
//	    Recorder: collector,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// Start returns once ctx is cancelled and in-flight requests have drained
// or ShutdownTimeout has elapsed.
package server
