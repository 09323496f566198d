// Package userconfig merges configuration patches into the device's user
// configuration file.
package userconfig

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"devicepair/internal/domain"
	"devicepair/internal/infra/fsutil"
)

// Store is a YAML backed domain.UserConfigStore.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store for path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the current user configuration, empty when the file is absent.
func (s *Store) Load(_ context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Merge deep-merges patch into the file and returns the merged document.
// Nested maps are merged key by key; any other value replaces the old one.
func (s *Store) Merge(_ context.Context, patch map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return nil, err
	}
	merged := DeepMerge(current, patch)

	err = fsutil.WriteFileAtomic(s.path, 0o600, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(merged); err != nil {
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("write user config: %w", err)
	}
	return merged, nil
}

func (s *Store) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user config: %w", err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse user config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// DeepMerge returns base with patch applied. Neither input is modified.
func DeepMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, pv := range patch {
		pm, pIsMap := pv.(map[string]any)
		bm, bIsMap := out[k].(map[string]any)
		if pIsMap && bIsMap {
			out[k] = DeepMerge(bm, pm)
			continue
		}
		if pIsMap {
			out[k] = DeepMerge(nil, pm)
			continue
		}
		out[k] = pv
	}
	return out
}

var _ domain.UserConfigStore = (*Store)(nil)
