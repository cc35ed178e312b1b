package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// RequestIDKey is the context key for transport request IDs.
	RequestIDKey contextKey = "request_id"

	// ChangeIDKey is the context key for the change request being decided.
	ChangeIDKey contextKey = "change_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithChangeID adds a change request ID to the context.
func WithChangeID(ctx context.Context, changeID string) context.Context {
	return context.WithValue(ctx, ChangeIDKey, changeID)
}

// GetChangeID retrieves the change request ID from the context.
func GetChangeID(ctx context.Context) string {
	if changeID, ok := ctx.Value(ChangeIDKey).(string); ok {
		return changeID
	}
	return ""
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), id))
	}
	if id := GetChangeID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(ChangeIDKey), id))
	}
	return attrs
}
