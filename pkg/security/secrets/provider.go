package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// SecretProvider retrieves secrets from a backend.
type SecretProvider interface {
	// GetSecret returns the value of name, or an error wrapping
	// ErrNotFound when the backend has no such secret.
	GetSecret(ctx context.Context, name string) (string, error)

	// Provider names the backend for logs.
	Provider() string
}
