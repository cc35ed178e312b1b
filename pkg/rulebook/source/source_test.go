package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/rulebook"
)

const alphaYAML = `version: "1"
policies:
  - name: alpha
    priority: 1
    mandatory: true
    rules:
      - name: secrets
        when: '"secrets" in tags'
        effect: block
        rationale: secrets in change
`

const betaYAML = `version: "1"
policies:
  - name: beta
    priority: 2
    applies_when: '"beta" in tags'
    rules:
      - name: needs-review
        when: 'true'
        effect: conditional
        rationale: beta needs review
        conditions: [get a review]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func policyNames(doc *rulebook.Document) []string {
	names := make([]string, len(doc.Policies))
	for i, p := range doc.Policies {
		names[i] = p.Name
	}
	return names
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yml"), betaYAML)
	writeFile(t, filepath.Join(dir, "a.yaml"), alphaYAML)
	writeFile(t, filepath.Join(dir, "README.md"), "not a rulebook")
	writeFile(t, filepath.Join(dir, ".hidden", "x.yaml"), "garbage: [")
	writeFile(t, filepath.Join(dir, ".skip.yaml"), "garbage: [")

	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr string
	}{
		{name: "directory merged in path order", path: dir, want: []string{"alpha", "beta"}},
		{name: "single file", path: filepath.Join(dir, "b.yml"), want: []string{"beta"}},
		{name: "missing path", path: filepath.Join(dir, "nope"), wantErr: "failed to stat"},
		{name: "empty directory", path: t.TempDir(), wantErr: "no rulebook files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewFileSource(tt.path, nil).Load(context.Background())
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			got := policyNames(doc)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("policies = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileSource_MalformedFileFailsLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), alphaYAML)
	writeFile(t, filepath.Join(dir, "b.yaml"), "policies: [")

	_, err := NewFileSource(dir, nil).Load(context.Background())
	if err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
	if !strings.Contains(err.Error(), "b.yaml") {
		t.Errorf("error %q does not name the failing file", err)
	}
}

func TestLoadRulebook(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), alphaYAML)
	writeFile(t, filepath.Join(dir, "dup.yaml"), strings.ReplaceAll(alphaYAML, "name: alpha", "name: other"))

	_, err := LoadRulebook(context.Background(), NewFileSource(dir, nil))
	if err == nil {
		t.Fatal("LoadRulebook() error = nil, want duplicate priority lint error")
	}

	rb, err := LoadRulebook(context.Background(), Builtin{})
	if err != nil {
		t.Fatalf("LoadRulebook(builtin) error = %v", err)
	}
	if rb.Len() != 8 {
		t.Errorf("builtin Len() = %d, want 8", rb.Len())
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.PoliciesConfig
		want    string
		wantErr bool
	}{
		{name: "default is builtin", cfg: config.PoliciesConfig{}, want: rulebook.BuiltinOrigin},
		{name: "file", cfg: config.PoliciesConfig{Source: "file", FilePath: "/etc/rules"}, want: "file:/etc/rules"},
		{
			name: "git",
			cfg: config.PoliciesConfig{Source: "git", Git: config.GitPolicyConfig{
				Repository: "https://example.com/rules.git", Branch: "main", Path: "policies",
			}},
			want: "git:https://example.com/rules.git@main/policies",
		},
		{name: "git without repository", cfg: config.PoliciesConfig{Source: "git"}, wantErr: true},
		{name: "unknown", cfg: config.PoliciesConfig{Source: "s3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(&tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && src.Describe() != tt.want {
				t.Errorf("Describe() = %q, want %q", src.Describe(), tt.want)
			}
		})
	}
}

// createRulebookRepo initializes a repository with a committed rulebook
// under rules/.
func createRulebookRepo(t *testing.T, dir string) *gogit.Repository {
	t.Helper()

	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	writeFile(t, filepath.Join(dir, "rules", "alpha.yaml"), alphaYAML)

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	if _, err := wt.Add("rules/alpha.yaml"); err != nil {
		t.Fatalf("failed to add file: %v", err)
	}
	_, err = wt.Commit("add rulebook", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	return repo
}

func TestGitSource_Load(t *testing.T) {
	origin := t.TempDir()
	repo := createRulebookRepo(t, origin)
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}

	src, err := NewGitSource(&config.GitPolicyConfig{
		Repository: origin,
		Branch:     "master", // go-git init creates "master"
		Path:       "rules",
		Clone:      config.GitCloneConfig{LocalPath: filepath.Join(t.TempDir(), "clone")},
		Timeout:    10 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewGitSource() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		doc, err := src.Load(context.Background())
		if err != nil {
			t.Fatalf("Load() #%d error = %v", i+1, err)
		}
		if got := policyNames(doc); len(got) != 1 || got[0] != "alpha" {
			t.Errorf("Load() #%d policies = %v, want [alpha]", i+1, got)
		}
		if src.Revision() != head.Hash().String() {
			t.Errorf("Revision() = %q, want %q", src.Revision(), head.Hash())
		}
	}
}

func TestGitSource_MissingBranch(t *testing.T) {
	origin := t.TempDir()
	createRulebookRepo(t, origin)

	src, err := NewGitSource(&config.GitPolicyConfig{
		Repository: origin,
		Branch:     "does-not-exist",
		Path:       "rules",
		Clone:      config.GitCloneConfig{LocalPath: filepath.Join(t.TempDir(), "clone")},
	}, nil)
	if err != nil {
		t.Fatalf("NewGitSource() error = %v", err)
	}
	if _, err := src.Load(context.Background()); err == nil {
		t.Fatal("Load() error = nil, want clone failure")
	}
	if src.Revision() != "" {
		t.Errorf("Revision() = %q after failed load, want empty", src.Revision())
	}
}
