// Package config loads and validates arbiter's YAML configuration.
//
// Values come from three layers, later ones winning: the defaults in
// defaults.go, the YAML file, then ARBITER_* environment variables named
// after the YAML path (ARBITER_AUDIT_BACKEND sets audit.backend,
// ARBITER_SERVER_TLS_ENABLED sets server.tls.enabled). Validate runs last
// and reports every problem at once:
//
//	configuration validation failed with 2 errors:
//	  - governance.worker_pool_size: worker pool size must be positive
//	  - server.auth.keys: at least one key is required when auth is enabled
//
// A file without some sections is fine; an empty path loads defaults plus
// the environment.
//
//	governance:
//	  policy_timeout_ms: 2000
//	policies:
//	  source: git
//	  git:
//	    repository: https://github.com/acme/rulebook.git
//	    branch: main
//	    path: policies
//	    auth:
//	      type: token
//	      token: ${secret:git-token}
//	audit:
//	  backend: sqlite
//	  store_path: data/audit.db
//	  verify_schedule: "0 * * * *"
//	server:
//	  listen_address: 127.0.0.1:8080
//	  auth:
//	    enabled: true
//	    keys:
//	      - name: ci
//	        key: ${secret:ci-api-key}
//	  tls:
//	    enabled: true
//	    cert_file: /etc/arbiter/tls/server.crt
//	    key_file: /etc/arbiter/tls/server.key
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
//
// ${secret:name} references are not expanded here; Config.SecretFields
// lists the fields that may hold them for package secrets to resolve.
package config
