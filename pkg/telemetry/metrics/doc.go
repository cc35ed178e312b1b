// Package metrics exports Prometheus metrics for the governance engine.
//
// One Collector records policy evaluations and timeouts, resolved
// decisions, audit appends, chain verifications and HTTP API traffic. It
// is handed to each component as that component's Recorder:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	coord := coordinator.New(coordCfg, coordinator.WithRecorder(collector))
//	http.Handle("/metrics", collector.Handler())
//
// Metric names are prefixed with the configured namespace ("arbiter" by
// default). Labels are limited to policy names, statuses and route
// patterns, all of which are bounded.
package metrics
