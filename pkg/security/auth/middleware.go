package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// APIKeyHeader is the alternative to a bearer Authorization header.
const APIKeyHeader = "X-API-Key"

// DenyFunc writes the response for a rejected request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

type contextKey struct{}

// Middleware rejects requests without a valid API key and stores the
// principal in the context of accepted ones.
func Middleware(v *APIKeyValidator, deny DenyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.Validate(ExtractAPIKey(r))
			if err != nil {
				logger.WarnContext(r.Context(), "request rejected",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				deny(w, r, err)
				return
			}
			logger.DebugContext(r.Context(), "request authenticated", "principal", p.Name)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, p)))
		})
	}
}

// ExtractAPIKey returns the key from a bearer Authorization header or the
// X-API-Key header, in that order.
func ExtractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get(APIKeyHeader)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
