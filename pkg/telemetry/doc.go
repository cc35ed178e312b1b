// Package telemetry groups Arbiter's observability packages.
//
//   - logging: structured slog setup and request/change ID context
//   - metrics: Prometheus collectors for decisions, verdicts, the audit
//     log and the HTTP API
//   - tracing: OpenTelemetry spans for decisions and policy evaluations
//   - health: liveness and readiness checks served by the API
//
// Each is configured from the telemetry section of the configuration
// (health has no configuration of its own) and wired in cmd/arbiter.
package telemetry
