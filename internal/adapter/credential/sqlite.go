package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"devicepair/internal/domain"
)

// SQLiteStore keeps the device identity in a single-row SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate credential db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS identity (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			uuid          TEXT NOT NULL,
			access_token  TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save implements domain.CredentialStore. The single row is replaced in one
// statement.
func (s *SQLiteStore) Save(ctx context.Context, creds *domain.DeviceCredentials) error {
	if creds == nil {
		return domain.NewDomainError("SQLiteStore.Save", domain.ErrInvalidInput, "nil credentials")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identity (id, uuid, access_token, refresh_token, expires_at, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			uuid = excluded.uuid,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		creds.UUID, creds.AccessToken, creds.RefreshToken,
		creds.ExpiresAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Load implements domain.CredentialStore.
func (s *SQLiteStore) Load(ctx context.Context) (*domain.DeviceCredentials, error) {
	var creds domain.DeviceCredentials
	var expiresAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT uuid, access_token, refresh_token, expires_at FROM identity WHERE id = 1",
	).Scan(&creds.UUID, &creds.AccessToken, &creds.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if creds.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &creds, nil
}

// Delete implements domain.CredentialStore.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM identity"); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

var _ domain.CredentialStore = (*SQLiteStore)(nil)
