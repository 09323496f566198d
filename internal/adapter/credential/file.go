// Package credential persists device identity credentials.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
	"devicepair/internal/infra/fsutil"
)

// FileStore keeps credentials in a single JSON file. When a key is set the
// tokens are stored encrypted with the "enc:" prefix.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  string
}

// NewFileStore creates a FileStore at path. key may be empty.
func NewFileStore(path, key string) *FileStore {
	return &FileStore{path: path, key: key}
}

// Path returns the identity file location.
func (s *FileStore) Path() string { return s.path }

// Save implements domain.CredentialStore.
func (s *FileStore) Save(_ context.Context, creds *domain.DeviceCredentials) error {
	if creds == nil {
		return domain.NewDomainError("FileStore.Save", domain.ErrInvalidInput, "nil credentials")
	}
	rec := *creds
	if s.key != "" {
		var err error
		if rec.AccessToken, err = s.seal(rec.AccessToken); err != nil {
			return err
		}
		if rec.RefreshToken, err = s.seal(rec.RefreshToken); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := fsutil.WriteFileAtomic(s.path, 0o600, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	})
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Load implements domain.CredentialStore.
func (s *FileStore) Load(_ context.Context) (*domain.DeviceCredentials, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if os.IsNotExist(err) {
		return nil, domain.ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	var creds domain.DeviceCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	if creds.AccessToken, err = s.open(creds.AccessToken); err != nil {
		return nil, err
	}
	if creds.RefreshToken, err = s.open(creds.RefreshToken); err != nil {
		return nil, err
	}
	if creds.UUID == "" {
		return nil, domain.ErrCredentialsNotFound
	}
	return &creds, nil
}

// Delete implements domain.CredentialStore.
func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fsutil.RemoveIfExists(s.path); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

func (s *FileStore) seal(v string) (string, error) {
	if v == "" {
		return v, nil
	}
	enc, err := config.EncryptValue(v, s.key)
	if err != nil {
		return "", domain.NewSubSystemError("credential", "FileStore.Save", domain.ErrEncryption, err.Error())
	}
	return config.EncryptedPrefix + enc, nil
}

func (s *FileStore) open(v string) (string, error) {
	if !config.IsEncrypted(v) {
		return v, nil
	}
	if s.key == "" {
		return "", domain.NewSubSystemError("credential", "FileStore.Load", domain.ErrDecryption, "identity is encrypted but no key is configured")
	}
	plain, err := config.DecryptValue(strings.TrimPrefix(v, config.EncryptedPrefix), s.key)
	if err != nil {
		return "", domain.NewSubSystemError("credential", "FileStore.Load", domain.ErrDecryption, err.Error())
	}
	return plain, nil
}

var _ domain.CredentialStore = (*FileStore)(nil)
