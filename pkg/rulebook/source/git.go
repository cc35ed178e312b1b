package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/rulebook"
)

// GitSource loads a rulebook from a path inside a Git repository. The
// repository is cloned on the first Load and pulled on later ones.
type GitSource struct {
	cfg       *config.GitPolicyConfig
	localPath string
	auth      AuthProvider
	logger    *slog.Logger

	mu       sync.Mutex
	repo     *gogit.Repository
	revision string
}

// NewGitSource validates cfg and creates a Git rulebook source.
func NewGitSource(cfg *config.GitPolicyConfig, logger *slog.Logger) (*GitSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}

	auth, err := NewAuthProvider(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	localPath := cfg.Clone.LocalPath
	if localPath == "" {
		localPath = filepath.Join(os.TempDir(), "arbiter-rulebook")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GitSource{
		cfg:       cfg,
		localPath: localPath,
		auth:      auth,
		logger:    logger.With("component", "rulebook.source", "repository", cfg.Repository),
	}, nil
}

// Describe implements Source.
func (s *GitSource) Describe() string {
	return fmt.Sprintf("git:%s@%s/%s", s.cfg.Repository, s.cfg.Branch, s.cfg.Path)
}

// Revision returns the commit SHA of the last successful Load.
func (s *GitSource) Revision() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Load implements Source.
func (s *GitSource) Load(ctx context.Context) (*rulebook.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultPolicyGitTimeout
	}
	syncCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.sync(syncCtx); err != nil {
		return nil, err
	}

	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	doc, err := NewFileSource(filepath.Join(s.localPath, s.cfg.Path), s.logger).Load(ctx)
	if err != nil {
		return nil, err
	}

	s.revision = head.Hash().String()
	s.logger.Info("loaded rulebook from git", "commit", s.revision, "policy_count", len(doc.Policies))
	return doc, nil
}

// sync clones the repository or pulls the latest branch head. Callers
// hold s.mu.
func (s *GitSource) sync(ctx context.Context) error {
	auth, err := s.auth.GetAuth()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	if s.repo == nil {
		cloned, err := s.open(ctx, auth)
		if err != nil || cloned {
			return err
		}
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull repository: %w", err)
	}
	return nil
}

// open reuses an existing checkout or clones a fresh one. cloned reports
// whether a clone happened, in which case the checkout is already current.
func (s *GitSource) open(ctx context.Context, auth transport.AuthMethod) (cloned bool, err error) {
	start := time.Now()

	if s.cfg.Clone.CleanOnStart {
		if err := os.RemoveAll(s.localPath); err != nil {
			return false, fmt.Errorf("failed to clean existing repository: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(s.localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.localPath)
		if err != nil {
			return false, fmt.Errorf("failed to open existing repo: %w", err)
		}
		s.repo = repo
		return false, nil
	}

	if err := os.MkdirAll(s.localPath, 0o755); err != nil {
		return false, fmt.Errorf("failed to create repository directory: %w", err)
	}

	repo, err := gogit.PlainCloneContext(ctx, s.localPath, false, &gogit.CloneOptions{
		URL:           s.cfg.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  s.cfg.Clone.Depth > 0,
		Depth:         s.cfg.Clone.Depth,
		Auth:          auth,
	})
	if err != nil {
		return false, fmt.Errorf("failed to clone repository: %w", err)
	}

	s.repo = repo
	s.logger.Info("cloned rulebook repository",
		"branch", s.cfg.Branch,
		"local_path", s.localPath,
		"duration", time.Since(start),
	)
	return true, nil
}
