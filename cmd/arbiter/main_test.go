package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/governance"
)

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "arbiter.yaml")
	writeFile(t, cfg, `
audit:
  backend: jsonl
  store_path: `+filepath.Join(dir, "audit.jsonl")+`
telemetry:
  logging:
    level: error
`)
	return &env{dir: dir, config: cfg}
}

// run executes the command tree with args and returns stdout.
func (e *env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.config}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *env) request(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	writeFile(t, path, body)
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const (
	docsRequest   = `{"id":"docs-1","description":"fix typo","tags":["docs"]}`
	freezeRequest = `{"id":"rel-1","description":"ship 2.0","tags":["release","freeze"],"attributes":{"version":"2.0.0"}}`
)

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Arbiter " + Version, "Git Commit:", "Go Version:"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		args     []string
		stdin    bool
		wantCode int
		wantSub  []string
	}{
		{
			name:    "text summary",
			body:    docsRequest,
			wantSub: []string{"Request:    docs-1", "Decision:   APPROVED", "Dominant:   guardrails", "Audit:      #1", "PRIORITY"},
		},
		{
			name:    "from stdin",
			body:    docsRequest,
			stdin:   true,
			wantSub: []string{"Decision:   APPROVED"},
		},
		{
			name:    "blocked without exit code",
			body:    freezeRequest,
			wantSub: []string{"Decision:   BLOCKED", "Dominant:   release-gate", "release freeze in effect"},
		},
		{
			name:     "blocked with exit code",
			body:     freezeRequest,
			args:     []string{"--exit-code"},
			wantCode: cli.ExitBlocked,
			wantSub:  []string{"Decision:   BLOCKED"},
		},
		{
			name:    "approved with exit code",
			body:    docsRequest,
			args:    []string{"--exit-code"},
			wantSub: []string{"Decision:   APPROVED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			args := append([]string{"decide"}, tt.args...)
			stdin := ""
			if tt.stdin {
				args = append(args, "-f", "-")
				stdin = tt.body
			} else {
				args = append(args, "-f", e.request(t, "req.json", tt.body))
			}

			out, err := e.run(t, stdin, args...)
			if got := cli.ExitCode(err); got != tt.wantCode {
				t.Fatalf("exit code = %d (%v), want %d", got, err, tt.wantCode)
			}
			for _, want := range tt.wantSub {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestDecide_JSON(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "decide", "-o", "json", "-f", e.request(t, "req.json", freezeRequest))
	if err != nil {
		t.Fatal(err)
	}

	var v decisionView
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if v.RequestID != "rel-1" || v.FinalStatus != governance.FinalBlocked || v.AuditSequence != 1 || len(v.AuditHash) != 64 {
		t.Errorf("decision = %+v", v)
	}
}

func TestDecide_Errors(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing file flag", args: []string{"decide"}},
		{name: "file not found", args: []string{"decide", "-f", filepath.Join(e.dir, "nope.json")}},
		{name: "malformed request", args: []string{"decide", "-f", e.request(t, "bad.json", `{"tags":`)}},
		{name: "unknown output format", args: []string{"decide", "-o", "xml", "-f", e.request(t, "ok.json", docsRequest)}},
		{name: "bad log level", args: []string{"--log-level", "loud", "decide", "-f", e.request(t, "ok2.json", docsRequest)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.run(t, "", tt.args...); err == nil {
				t.Error("error = nil, want failure")
			}
		})
	}
}

func TestAuditCommands(t *testing.T) {
	e := newEnv(t)
	for i, body := range []string{docsRequest, freezeRequest, docsRequest} {
		if _, err := e.run(t, "", "decide", "-f", e.request(t, "req.json", body)); err != nil {
			t.Fatalf("decide #%d: %v", i+1, err)
		}
	}

	t.Run("list csv", func(t *testing.T) {
		out, err := e.run(t, "", "audit", "list", "-o", "csv")
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 4 || !strings.HasPrefix(lines[0], "SEQ,DECIDED,REQUEST") {
			t.Errorf("csv output:\n%s", out)
		}
	})

	t.Run("list filtered json", func(t *testing.T) {
		out, err := e.run(t, "", "audit", "list", "--status", "BLOCKED", "-o", "json")
		if err != nil {
			t.Fatal(err)
		}
		var entries []*governance.AuditEntry
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Decision.RequestID != "rel-1" || entries[0].Sequence != 2 {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("list rejects bad status", func(t *testing.T) {
		if _, err := e.run(t, "", "audit", "list", "--status", "MAYBE"); err == nil {
			t.Error("error = nil")
		}
	})

	t.Run("list rejects bad since", func(t *testing.T) {
		if _, err := e.run(t, "", "audit", "list", "--since", "yesterday"); err == nil {
			t.Error("error = nil")
		}
	})

	t.Run("verify", func(t *testing.T) {
		out, err := e.run(t, "", "audit", "verify")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "✓ Audit chain valid (3 entries") {
			t.Errorf("verify output: %s", out)
		}
	})

	t.Run("export csv to file", func(t *testing.T) {
		path := filepath.Join(e.dir, "export.csv")
		if _, err := e.run(t, "", "audit", "export", "--format", "csv", "--out", path, "--progress"); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 4 || !strings.HasPrefix(lines[0], "sequence,") {
			t.Errorf("export:\n%s", data)
		}
	})

	t.Run("export json to stdout", func(t *testing.T) {
		out, err := e.run(t, "", "audit", "export")
		if err != nil {
			t.Fatal(err)
		}
		var entries []json.RawMessage
		if err := json.Unmarshal([]byte(out), &entries); err != nil || len(entries) != 3 {
			t.Errorf("export json = %d entries, %v", len(entries), err)
		}
	})

	t.Run("export rejects unknown format", func(t *testing.T) {
		if _, err := e.run(t, "", "audit", "export", "--format", "xml"); err == nil {
			t.Error("error = nil")
		}
	})
}

func TestPolicyList(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "", "policy", "list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"PRIORITY", "guardrails", "release-gate", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("policy list missing %q:\n%s", want, out)
		}
	}

	out, err = e.run(t, "", "policy", "list", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var rows []policyRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 8 || rows[0].Name != governance.PolicyGuardrails || rows[7].Priority != 8 || rows[0].Rules == 0 {
		t.Errorf("rows = %+v", rows)
	}
}

const lintGood = `version: "1"
policies:
  - name: alpha
    priority: 1
    mandatory: true
    description: blocks secrets
    rules:
      - name: secrets
        when: '"secrets" in tags'
        effect: block
        rationale: secrets in change
`

func TestPolicyLint(t *testing.T) {
	e := newEnv(t)

	dup := strings.ReplaceAll(lintGood, "name: alpha", "name: beta")
	dupDir := filepath.Join(e.dir, "dup")
	if err := os.MkdirAll(dupDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dupDir, "a.yaml"), lintGood)
	writeFile(t, filepath.Join(dupDir, "b.yaml"), dup)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantSub  string
	}{
		{name: "configured builtin", args: []string{"policy", "lint"}, wantSub: "builtin:default.yaml: 8 policies valid"},
		{name: "good file", args: []string{"policy", "lint", "--file", e.request(t, "good.yaml", lintGood)}, wantSub: "1 policies valid"},
		{name: "duplicate priority", args: []string{"policy", "lint", "--file", dupDir}, wantCode: cli.ExitFailure, wantSub: "priority"},
		{name: "bad expression", args: []string{"policy", "lint", "--file", e.request(t, "expr.yaml", strings.ReplaceAll(lintGood, `'"secrets" in tags'`, `'tags +'`))}, wantCode: cli.ExitFailure},
		{name: "malformed yaml", args: []string{"policy", "lint", "--file", e.request(t, "broken.yaml", "policies: [")}, wantCode: cli.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.run(t, "", tt.args...)
			if got := cli.ExitCode(err); got != tt.wantCode {
				t.Fatalf("exit code = %d (%v), want %d\n%s", got, err, tt.wantCode, out)
			}
			if tt.wantSub != "" && !strings.Contains(out, tt.wantSub) {
				t.Errorf("output missing %q:\n%s", tt.wantSub, out)
			}
		})
	}
}

func TestServe_DryRun(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "serve", "--dry-run")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"8 policies", "Audit chain verified (0 entries)", "Configuration valid"} {
		if !strings.Contains(out, want) {
			t.Errorf("serve output missing %q:\n%s", want, out)
		}
	}
}
