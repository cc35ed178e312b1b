package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"mercator-hq/arbiter/pkg/config"
)

// secretRefRegex matches ${secret:name} references.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets from providers in priority order.
type Manager struct {
	providers []SecretProvider
	logger    *slog.Logger
	resolved  map[string]string
}

// NewManager creates a manager that tries providers in order.
func NewManager(providers []SecretProvider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		providers: providers,
		logger:    logger.With("component", "secrets"),
		resolved:  make(map[string]string),
	}
}

// FromConfig builds the file (when Dir is set) and environment providers.
func FromConfig(cfg config.SecretsConfig, logger *slog.Logger) (*Manager, error) {
	var providers []SecretProvider
	if cfg.Dir != "" {
		fp, err := NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	providers = append(providers, NewEnvProvider(cfg.EnvPrefix))
	return NewManager(providers, logger), nil
}

// GetSecret returns the value from the first provider that has name. A
// Manager is meant for one-shot startup resolution and is not safe for
// concurrent use.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if v, ok := m.resolved[name]; ok {
		return v, nil
	}

	var errs []error
	for _, p := range m.providers {
		v, err := p.GetSecret(ctx, name)
		if err == nil {
			m.logger.Debug("secret resolved", "name", redactSecretName(name), "provider", p.Provider())
			m.resolved[name] = v
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("secret %q from %s: %w", name, p.Provider(), err)
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf("secret %q: %w", name, errors.Join(errs...))
}

// ResolveReferences replaces every ${secret:name} in input.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var errs []error
	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefRegex.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})
	if len(errs) > 0 {
		return "", fmt.Errorf("failed to resolve secret references: %w", errors.Join(errs...))
	}
	return output, nil
}

// Resolve rewrites each field in place. Fields without references are left
// untouched; on error no field is modified.
func (m *Manager) Resolve(ctx context.Context, fields ...*string) error {
	out := make([]string, len(fields))
	for i, f := range fields {
		if !HasReference(*f) {
			out[i] = *f
			continue
		}
		v, err := m.ResolveReferences(ctx, *f)
		if err != nil {
			return err
		}
		out[i] = v
	}
	for i, f := range fields {
		*f = out[i]
	}
	return nil
}

// HasReference reports whether s contains a ${secret:name} reference.
func HasReference(s string) bool {
	return secretRefRegex.MatchString(s)
}

// redactSecretName keeps the first and last two characters of a name.
func redactSecretName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
