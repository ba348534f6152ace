// Package registry locates GGUF model files for the in-process engine.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"analysisd/internal/common/fsutil"
)

// Model is a model file found on disk.
type Model struct {
	// ID is the file name including extension, e.g. "llama-3.2-3b-q4_k_m.gguf".
	ID        string
	Path      string
	SizeBytes int64
}

// LoadDir scans dir for *.gguf files, sorted by ID.
func LoadDir(dir string) ([]Model, error) {
	base, err := fsutil.ExpandPath(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := Model{ID: name, Path: filepath.Join(abs, name)}
		if fi, err := e.Info(); err == nil {
			m.SizeBytes = fi.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve turns a configured model location into a single file. A file path
// is returned as is. For a directory, prefer names the model whose ID (with or
// without extension) matches; otherwise the first model in the directory wins.
func Resolve(path, prefer string) (Model, error) {
	p, err := fsutil.ExpandPath(path)
	if err != nil {
		return Model{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return Model{}, fmt.Errorf("model path: %w", err)
	}
	if !fi.IsDir() {
		return Model{ID: filepath.Base(p), Path: p, SizeBytes: fi.Size()}, nil
	}
	models, err := LoadDir(p)
	if err != nil {
		return Model{}, err
	}
	if len(models) == 0 {
		return Model{}, fmt.Errorf("no .gguf models in %s", p)
	}
	if prefer != "" {
		for _, m := range models {
			if m.ID == prefer || strings.TrimSuffix(m.ID, filepath.Ext(m.ID)) == prefer {
				return m, nil
			}
		}
		return Model{}, fmt.Errorf("model %q not found in %s", prefer, p)
	}
	return models[0], nil
}
