package netcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"devicepair/internal/infra/config"
)

func newChecker(url string) *Checker {
	return New(config.ConnectivityConfig{CheckURL: url, Timeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConnected(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"no content", http.StatusNoContent, true},
		{"not found still online", http.StatusNotFound, true},
		{"server error", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			assert.Equal(t, tt.want, newChecker(srv.URL).Connected(context.Background()))
		})
	}
}

func TestConnectedUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	assert.False(t, newChecker(url).Connected(context.Background()))
}

func TestConnectedDisabled(t *testing.T) {
	assert.True(t, newChecker("").Connected(context.Background()))
}
