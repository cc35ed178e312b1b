// Package source loads rulebook documents from the embedded default, the
// local filesystem or a Git repository.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/rulebook"
)

// Source produces a rulebook document.
type Source interface {
	// Load reads and parses the rulebook. Every call re-reads the source.
	Load(ctx context.Context) (*rulebook.Document, error)

	// Describe names the source for logs and the policy listing.
	Describe() string
}

// New creates the source selected by cfg.Source.
func New(cfg *config.PoliciesConfig, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Source {
	case "builtin", "":
		return Builtin{}, nil
	case "file":
		return NewFileSource(cfg.FilePath, logger), nil
	case "git":
		return NewGitSource(&cfg.Git, logger)
	default:
		return nil, fmt.Errorf("unknown policy source %q", cfg.Source)
	}
}

// LoadRulebook loads from src and compiles the result.
func LoadRulebook(ctx context.Context, src Source, opts ...rulebook.Option) (*rulebook.Rulebook, error) {
	doc, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	rb, err := rulebook.Compile(doc, opts...)
	if err != nil {
		return nil, fmt.Errorf("rulebook from %s: %w", src.Describe(), err)
	}
	return rb, nil
}

// Builtin serves the embedded default rulebook.
type Builtin struct{}

// Load implements Source.
func (Builtin) Load(context.Context) (*rulebook.Document, error) {
	return rulebook.DefaultDocument()
}

// Describe implements Source.
func (Builtin) Describe() string { return rulebook.BuiltinOrigin }
