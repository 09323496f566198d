// Package netcheck reports whether the device can reach the internet.
package netcheck

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"devicepair/internal/infra/config"
)

// Checker probes a well-known URL. Any reply below 500 counts as online.
type Checker struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// New creates a Checker from cfg.
func New(cfg config.ConnectivityConfig, logger *slog.Logger) *Checker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		url:    cfg.CheckURL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Connected implements setup.Connectivity. An empty check URL disables the
// probe.
func (c *Checker) Connected(ctx context.Context) bool {
	if c.url == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.logger.Warn("connectivity check misconfigured", "url", c.url, "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("connectivity check failed", "error", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
