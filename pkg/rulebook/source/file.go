package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mercator-hq/arbiter/pkg/rulebook"
)

// MaxFileSize bounds a single rulebook file.
const MaxFileSize = 1 << 20

// FileSource loads a rulebook from a YAML file or from every .yaml/.yml
// file under a directory, merged in lexical path order.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a new file-based rulebook source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger.With("component", "rulebook.source"),
	}
}

// Describe implements Source.
func (s *FileSource) Describe() string { return "file:" + s.path }

// Load implements Source. Unlike a best-effort loader, any unreadable or
// malformed file fails the whole load.
func (s *FileSource) Load(ctx context.Context) (*rulebook.Document, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %q: %w", s.path, err)
	}

	files := []string{s.path}
	if info.IsDir() {
		files, err = listRulebookFiles(s.path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no rulebook files (*.yaml, *.yml) in %q", s.path)
		}
	}

	docs := make([]*rulebook.Document, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.loadFile(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	merged := rulebook.Merge(docs...)
	s.logger.Info("loaded rulebook from source",
		"path", s.path,
		"file_count", len(files),
		"policy_count", len(merged.Policies),
	)
	return merged, nil
}

func (s *FileSource) loadFile(path string) (*rulebook.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("rulebook %q is not a regular file", path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("rulebook %q is %d bytes, exceeds maximum %d", path, info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}
	doc, err := rulebook.Parse(data, path)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("loaded rulebook file", "path", path, "policy_count", len(doc.Policies))
	return doc, nil
}

// listRulebookFiles returns YAML files under dir, skipping hidden entries.
func listRulebookFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %q: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
