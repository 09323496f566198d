// Package settings persists the setup wizard's own selections.
package settings

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

// Store keeps domain.WizardSettings in a YAML file.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store backed by path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns zero settings when the file does not exist yet.
func (s *Store) Load(_ context.Context) (domain.WizardSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ws domain.WizardSettings
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return ws, nil
	}
	if err != nil {
		return ws, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return ws, fmt.Errorf("parse settings: %w", err)
	}
	return ws, nil
}

// Save writes ws atomically.
func (s *Store) Save(_ context.Context, ws domain.WizardSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fsutil.WriteFileAtomic(s.path, 0o600, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(ws); err != nil {
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Delete removes the settings file.
func (s *Store) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fsutil.RemoveIfExists(s.path)
}

var _ domain.SettingsStore = (*Store)(nil)
