/*
Package security groups the server's security layers. It has no code of
its own.

# Authentication

Package auth validates API keys sent as "Authorization: Bearer <key>" or
X-API-Key. Keys are held and looked up as SHA-256 digests.
Only the /v1 routes are protected; health, readiness and metrics stay
open for probes and scrapers.

# Secrets

Package secrets resolves ${secret:name} references in configuration
values once at startup. A file provider (one file per secret, mode 0600
or 0400) is consulted before the environment provider:

	manager, err := secrets.FromConfig(cfg.Secrets, logger)
	if err != nil {
		return err
	}
	if err := manager.Resolve(ctx, cfg.SecretFields()...); err != nil {
		return err
	}

# TLS

Package tls serves HTTPS with certificates that are reloaded when the
files change, and turns on mutual TLS when a client CA is configured.
*/
package security
