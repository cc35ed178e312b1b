// Package auth authenticates API callers with static API keys.
//
// Keys come from the server.auth section of the configuration:
//
//	server:
//	  auth:
//	    enabled: true
//	    keys:
//	      - name: ci
//	        key: sk-ci-3f9a1c
//
// A caller presents its key as "Authorization: Bearer <key>" or in the
// X-API-Key header. Keys are held as SHA-256 digests, so the validator
// never keeps the plaintext after construction. The authenticated
// principal is stored in the request context and can be read with
// PrincipalFromContext.
package auth
