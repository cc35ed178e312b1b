package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"mercator-hq/arbiter/pkg/config"
)

var (
	// ErrMissingKey is returned when a request carries no API key.
	ErrMissingKey = errors.New("missing API key")

	// ErrInvalidKey is returned when a key matches no configured key.
	ErrInvalidKey = errors.New("invalid API key")
)

// Principal is an authenticated caller.
type Principal struct {
	Name string
}

// APIKeyValidator validates API keys against a fixed set of keys.
type APIKeyValidator struct {
	keys map[[sha256.Size]byte]Principal
}

// NewAPIKeyValidator creates a validator for keys. Empty or duplicate keys
// are rejected.
func NewAPIKeyValidator(keys []config.APIKeyConfig) (*APIKeyValidator, error) {
	v := &APIKeyValidator{keys: make(map[[sha256.Size]byte]Principal, len(keys))}
	for _, k := range keys {
		if k.Key == "" {
			return nil, fmt.Errorf("API key %q is empty", k.Name)
		}
		sum := sha256.Sum256([]byte(k.Key))
		if _, dup := v.keys[sum]; dup {
			return nil, fmt.Errorf("API key %q duplicates an earlier key", k.Name)
		}
		v.keys[sum] = Principal{Name: k.Name}
	}
	return v, nil
}

// Validate returns the principal owning key.
func (v *APIKeyValidator) Validate(key string) (Principal, error) {
	if key == "" {
		return Principal{}, ErrMissingKey
	}
	p, ok := v.keys[sha256.Sum256([]byte(key))]
	if !ok {
		return Principal{}, ErrInvalidKey
	}
	return p, nil
}

// Len returns the number of configured keys.
func (v *APIKeyValidator) Len() int { return len(v.keys) }
