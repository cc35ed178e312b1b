// Package health runs readiness checks for the decision service.
//
// Components register a named CheckFunc; CheckReadiness runs every check
// concurrently under a per-check timeout and reports "ready" only when all
// of them pass:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("audit_store", func(ctx context.Context) error {
//	    _, err := auditLog.Count(ctx)
//	    return err
//	})
//	mux.Handle("GET /ready", checker.ReadinessHandler())
//
// A failing check turns the status to "degraded" and the handler answers
// 503 so load balancers stop routing decisions to an instance that cannot
// record them.
package health
