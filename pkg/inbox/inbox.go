// Package inbox decides change requests dropped into a directory.
//
// Each *.json file in the watched directory is parsed as a ChangeRequest,
// decided, and answered with a sibling file named <name>.decision.json.
// Files are picked up when they appear or change, after a debounce quiet
// period, and once at startup for requests that have no current answer.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/governance"
)

// DecisionSuffix is appended to a request's base name to form its answer.
const DecisionSuffix = ".decision.json"

// Recorder decides a request and returns its audit entry.
type Recorder interface {
	Record(ctx context.Context, req *governance.ChangeRequest) (*governance.AuditEntry, error)
}

// Result is the content of a .decision.json file.
type Result struct {
	governance.Decision
	AuditSequence uint64 `json:"auditSequence"`
	AuditHash     string `json:"auditHash"`
}

// Watcher watches an inbox directory.
type Watcher struct {
	dir      string
	recorder Recorder
	logger   *slog.Logger
	debounce *Debouncer

	mu      sync.Mutex
	running bool
}

// New creates an inbox watcher over cfg.Dir, creating the directory if it
// does not exist.
func New(cfg *config.InboxConfig, recorder Recorder, logger *slog.Logger) (*Watcher, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, errors.New("inbox directory cannot be empty")
	}
	if recorder == nil {
		return nil, errors.New("recorder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create inbox %q: %w", cfg.Dir, err)
	}

	interval := cfg.Debounce
	if interval <= 0 {
		interval = config.DefaultInboxDebounce
	}

	return &Watcher{
		dir:      cfg.Dir,
		recorder: recorder,
		logger:   logger.With("component", "inbox", "dir", cfg.Dir),
		debounce: NewDebouncer(interval),
	}, nil
}

// Run watches the inbox until ctx is cancelled. Pending requests are
// processed before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("inbox watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.dir, err)
	}
	defer w.debounce.Stop()

	// Watching starts before the backlog scan so nothing written in
	// between is missed.
	if err := w.scan(ctx); err != nil {
		return err
	}
	w.logger.Info("inbox watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsRequestFile(event.Name) {
				continue
			}
			w.logger.Debug("inbox event", "path", event.Name, "op", event.Op.String())

			path := event.Name
			w.debounce.Trigger(path, func() {
				if err := w.Process(ctx, path); err != nil {
					w.logger.Error("failed to process request", "path", path, "error", err)
				}
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("inbox watcher error", "error", err)
		}
	}
}

// scan processes requests whose answer is missing or older than the
// request itself.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !IsRequestFile(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if answered(path) {
			continue
		}
		if err := w.Process(ctx, path); err != nil {
			w.logger.Error("failed to process request", "path", path, "error", err)
		}
	}
	return nil
}

// Process decides the request at path and writes its answer file.
func (w *Watcher) Process(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read request: %w", err)
	}

	req, err := governance.ParseChangeRequest(data)
	if err != nil {
		return err
	}

	start := time.Now()
	entry, err := w.recorder.Record(ctx, req)
	if err != nil {
		return err
	}

	out := DecisionPath(path)
	if err := writeResult(out, &Result{
		Decision:      entry.Decision,
		AuditSequence: entry.Sequence,
		AuditHash:     entry.Hash,
	}); err != nil {
		return err
	}

	w.logger.Info("request decided",
		"path", path,
		"request_id", entry.Decision.RequestID,
		"final_status", entry.Decision.FinalStatus,
		"dominant_policy", entry.Decision.DominantPolicy,
		"duration", time.Since(start),
	)
	return nil
}

// IsRequestFile reports whether name looks like a change request rather
// than an answer or a hidden temp file.
func IsRequestFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") &&
		!strings.HasSuffix(base, DecisionSuffix) &&
		!strings.HasPrefix(base, ".")
}

// DecisionPath returns the answer file for a request file.
func DecisionPath(path string) string {
	return strings.TrimSuffix(path, ".json") + DecisionSuffix
}

func answered(path string) bool {
	req, err := os.Stat(path)
	if err != nil {
		return false
	}
	dec, err := os.Stat(DecisionPath(path))
	if err != nil {
		return false
	}
	return !dec.ModTime().Before(req.ModTime())
}

// writeResult writes through a hidden temp file and renames it so readers
// never see a partial answer.
func writeResult(path string, r *Result) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write decision: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write decision: %w", err)
	}
	return nil
}
