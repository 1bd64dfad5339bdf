package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CorpusFiles resolves corpus document names to files inside one folder.
type CorpusFiles struct {
	Dir string // absolute path of the corpus folder
}

// NewCorpusFiles roots a CorpusFiles at dir.
func NewCorpusFiles(dir string) (*CorpusFiles, error) {
	if dir == "" {
		return nil, fmt.Errorf("corpus folder not set")
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for %s: %w", dir, err)
	}
	return &CorpusFiles{Dir: absPath}, nil
}

// Resolve maps a document name to its path, refusing names that would escape
// the corpus folder.
func (cf *CorpusFiles) Resolve(document string) (string, error) {
	if !isSupportedFile(document) {
		return "", fmt.Errorf("unsupported document %q", document)
	}
	cleanPath := filepath.Join(cf.Dir, filepath.Base(document))
	if filepath.Base(document) != document || !strings.HasPrefix(cleanPath, cf.Dir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid document name %q, attempts to escape corpus folder", document)
	}
	return cleanPath, nil
}

// List returns the names of the supported documents directly inside the
// folder, sorted.
func (cf *CorpusFiles) List() ([]string, error) {
	entries, err := os.ReadDir(cf.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus folder %s: %w", cf.Dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && isSupportedFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isSupportedFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
