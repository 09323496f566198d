package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicepair/internal/domain"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "setup_settings.yaml"))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.WizardSettings{}, got)

	want := domain.WizardSettings{
		SelectedBackend: domain.BackendPersonal,
		SelectedSTT:     domain.STTVosk,
		SelectedTTS:     domain.TTSPico,
		PairingURL:      "http://10.0.0.5:6712",
	}
	require.NoError(t, s.Save(ctx, want))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, domain.BackendPersonal, got.BackendType())

	require.NoError(t, s.Delete(ctx))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.WizardSettings{}, got)
}

func TestStoreReadsHandWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup_settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selected_backend: offline\npairing_url: \"\"\n"), 0o600))

	got, err := New(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.BackendOffline, got.SelectedBackend)
}

func TestStoreParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup_settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selected_backend: [unterminated"), 0o600))
	_, err := New(path).Load(context.Background())
	assert.Error(t, err)
}
