package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
)

type staticCreds struct{ creds *domain.DeviceCredentials }

func (s staticCreds) Save(context.Context, *domain.DeviceCredentials) error { return nil }
func (s staticCreds) Delete(context.Context) error                        { return nil }
func (s staticCreds) Load(context.Context) (*domain.DeviceCredentials, error) {
	if s.creds == nil {
		return nil, domain.ErrCredentialsNotFound
	}
	return s.creds, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, srv *httptest.Server, breaker bool, creds domain.CredentialStore) *Client {
	t.Helper()
	cfg := config.BackendConfig{
		URL:     srv.URL,
		Version: "v1",
		Timeout: 2 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			Enabled:     breaker,
			MaxFailures: 2,
			Timeout:     time.Minute,
		},
	}
	return New(cfg, DeviceInfo{CoreVersion: "0.1.0", Platform: "linux"}, creds, testLogger())
}

func TestIssueCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/device/code", r.URL.Path)
		assert.Equal(t, "state-1", r.URL.Query().Get("state"))
		_, _ = w.Write([]byte(`{"code":"ABC123","token":"tok","expiration":72000}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, true, nil)
	code, err := c.IssueCode(context.Background(), "state-1")
	require.NoError(t, err)
	assert.Equal(t, &domain.PairingCode{Code: "ABC123", Token: "tok"}, code)
}

func TestIssueCodeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, false, nil)
	_, err := c.IssueCode(context.Background(), "s")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Contains(t, err.Error(), "502")
}

func TestIssueCodeEmptyCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, false, nil).IssueCode(context.Background(), "s")
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestActivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/device/activate", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "state-1", body["state"])
		assert.Equal(t, "tok", body["token"])
		assert.Equal(t, "0.1.0", body["coreVersion"])
		assert.Equal(t, "linux", body["platform"])
		_, _ = w.Write([]byte(`{"uuid":"dev-1","accessToken":"a","refreshToken":"r","expiration":3600}`))
	}))
	defer srv.Close()

	before := time.Now()
	creds, err := newTestClient(t, srv, true, nil).Activate(context.Background(), "state-1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", creds.UUID)
	assert.Equal(t, "a", creds.AccessToken)
	assert.Equal(t, "r", creds.RefreshToken)
	assert.WithinDuration(t, before.Add(time.Hour), creds.ExpiresAt, 5*time.Second)
}

func TestActivatePendingDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, true, nil)
	for i := 0; i < 5; i++ {
		_, err := c.Activate(context.Background(), "s", "t")
		require.ErrorIs(t, err, domain.ErrActivationPending)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, true, nil)
	for i := 0; i < 2; i++ {
		_, err := c.IssueCode(context.Background(), "s")
		require.Error(t, err)
	}
	_, err := c.IssueCode(context.Background(), "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(2), calls.Load())
}

func TestReportDeviceAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/device/dev-1", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	creds := staticCreds{creds: &domain.DeviceCredentials{UUID: "dev-1", AccessToken: "access"}}
	require.NoError(t, newTestClient(t, srv, true, creds).ReportDeviceAttributes(context.Background()))
}

func TestReportDeviceAttributesUnpaired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	err := newTestClient(t, srv, true, staticCreds{}).ReportDeviceAttributes(context.Background())
	assert.ErrorIs(t, err, domain.ErrCredentialsNotFound)
}

func TestSetBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"X","token":"t"}`))
	}))
	defer srv.Close()

	c := New(config.BackendConfig{URL: "http://127.0.0.1:1"}, DeviceInfo{}, nil, testLogger())
	c.SetBaseURL(srv.URL + "/")
	assert.Equal(t, srv.URL, c.BaseURL())
	_, err := c.IssueCode(context.Background(), "s")
	require.NoError(t, err)

	c.SetBaseURL("backend.local:6712")
	assert.Equal(t, "https://backend.local:6712", c.BaseURL())
}

func TestMapHTTPError(t *testing.T) {
	assert.ErrorIs(t, mapHTTPError("/device/code", http.StatusTooManyRequests, nil), domain.ErrRateLimit)
	assert.ErrorIs(t, mapHTTPError("/device/x", http.StatusUnauthorized, nil), domain.ErrAuthInvalid)
	assert.ErrorIs(t, mapHTTPError("/device/activate", http.StatusUnauthorized, nil), domain.ErrActivationPending)
	assert.ErrorIs(t, mapHTTPError("/device/code", http.StatusInternalServerError, nil), domain.ErrProviderError)
}
