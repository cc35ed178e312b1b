/*
Package secrets resolves ${secret:name} references in configuration values.

Fields that carry credentials (API keys, the Postgres DSN, the Redis
password, the Git token) may hold a reference instead of the plaintext:

	server:
	  auth:
	    enabled: true
	    keys:
	      - name: ci
	        key: ${secret:ci-api-key}
	secrets:
	  dir: /run/secrets/arbiter

A reference is looked up in each provider in turn:

  - FileProvider reads <dir>/<name>. The file must be a regular file with
    mode 0600 or 0400; surrounding whitespace is trimmed.
  - EnvProvider reads the environment variable formed by the prefix and the
    upper-cased name with hyphens turned into underscores, so ci-api-key
    becomes ARBITER_SECRET_CI_API_KEY.

An unresolvable reference is an error; the reference text is never used as
a credential.
*/
package secrets
