package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devicepair.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 5*time.Second, cfg.Pairing.PollInterval)
	assert.Equal(t, 20*time.Hour, cfg.Pairing.CodeTTL)
	assert.Equal(t, 6, cfg.Pairing.ReminderEvery)
	assert.Equal(t, 10*time.Second, cfg.Pairing.IssueBackoff)
	assert.Equal(t, 30, cfg.Pairing.IssueMaxFailures)
	assert.Equal(t, "auto", cfg.Setup.Mode)
	assert.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Credentials.Driver)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
pairing:
  poll_interval: 2s
  reminder_every: 3
backend:
  url: "http://192.168.1.20:6712"
credentials:
  driver: sqlite
  path: /tmp/identity.db
setup:
  mode: voice
logger:
  level: debug
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Pairing.PollInterval)
	assert.Equal(t, 3, cfg.Pairing.ReminderEvery)
	assert.Equal(t, "http://192.168.1.20:6712", cfg.Backend.URL)
	assert.Equal(t, "sqlite", cfg.Credentials.Driver)
	assert.Equal(t, "voice", cfg.Setup.Mode)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30, cfg.Pairing.IssueMaxFailures)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "pairing: [unclosed", 0o600)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n", 0o666)
	require.NoError(t, os.Chmod(path, 0o666))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEVICEPAIR_BACKEND_URL", "http://10.0.0.5:6712")
	t.Setenv("DEVICEPAIR_PAIRING_POLL_INTERVAL", "1s")
	t.Setenv("DEVICEPAIR_SETUP_MODE", "GUI")
	t.Setenv("DEVICEPAIR_GATEWAY_ENABLED", "true")
	t.Setenv("DEVICEPAIR_GATEWAY_TOKENS", "a, b")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "http://10.0.0.5:6712", cfg.Backend.URL)
	assert.Equal(t, time.Second, cfg.Pairing.PollInterval)
	assert.Equal(t, "gui", cfg.Setup.Mode)
	assert.True(t, cfg.Gateway.Enabled)
	require.Len(t, cfg.Gateway.Auth.Tokens, 2)
	assert.Equal(t, "b", cfg.Gateway.Auth.Tokens[1].Token)
	assert.NoError(t, Validate(cfg))
}

func TestEnvOverrideBadDurationIgnored(t *testing.T) {
	t.Setenv("DEVICEPAIR_PAIRING_POLL_INTERVAL", "soon")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, 5*time.Second, cfg.Pairing.PollInterval)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Pairing.PollInterval = 0
	cfg.Pairing.IssueMaxFailures = 0
	cfg.Credentials.Driver = "redis"
	cfg.Setup.Mode = "gui"
	cfg.Reporting.Schedule = "every tuesday"

	err := Validate(cfg)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	joined := strings.Join(ve.Errors, "\n")
	assert.Contains(t, joined, "pairing.poll_interval")
	assert.Contains(t, joined, "pairing.issue_max_failures")
	assert.Contains(t, joined, "credentials.driver")
	assert.Contains(t, joined, "requires gateway.enabled")
	assert.Contains(t, joined, "reporting.schedule")
}

func TestValidateBackendURL(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.URL = "api.mycroft.ai"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an absolute URL")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("refresh-token", "passphrase")
	require.NoError(t, err)
	assert.NotContains(t, enc, "refresh-token")

	dec, err := DecryptValue(enc, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", dec)

	_, err = DecryptValue(enc, "wrong")
	assert.Error(t, err)
}

func TestDecryptValueMalformed(t *testing.T) {
	for _, in := range []string{"no-separator", "zz:00", "00:zz", "00:00"} {
		_, err := DecryptValue(in, "p")
		assert.Error(t, err, in)
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	enc, err := EncryptValue("disk-key", "master")
	require.NoError(t, err)
	path := writeConfig(t, "credentials:\n  key: \""+EncryptedPrefix+enc+"\"\n", 0o600)
	t.Setenv("DEVICEPAIR_CONFIG_KEY", "master")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "disk-key", cfg.Credentials.Key)
}

func TestLoadWithWrongConfigKey(t *testing.T) {
	enc, err := EncryptValue("disk-key", "master")
	require.NoError(t, err)
	path := writeConfig(t, "credentials:\n  key: \""+EncryptedPrefix+enc+"\"\n", 0o600)
	t.Setenv("DEVICEPAIR_CONFIG_KEY", "other")

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt secrets")
}
