package credential

import (
	"fmt"
	"io"

	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
)

// Store is a CredentialStore that owns resources.
type Store interface {
	domain.CredentialStore
	io.Closer
}

type nopCloser struct{ *FileStore }

func (nopCloser) Close() error { return nil }

// Open returns the store selected by cfg.Driver.
func Open(cfg config.CredentialsConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return nopCloser{NewFileStore(cfg.Path, cfg.Key)}, nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown credentials driver %q", cfg.Driver)
	}
}
