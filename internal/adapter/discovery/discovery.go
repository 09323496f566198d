// Package discovery finds personal backends on the local network and
// announces them to the setup wizard.
package discovery

import (
	"context"
	"log/slog"

	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
)

// Backend is a personal backend found on the network.
type Backend struct {
	Name string
	URL  string
}

// Scanner browses the network once.
type Scanner interface {
	Scan(ctx context.Context) ([]Backend, error)
}

// NoopScanner finds nothing. It is used when mDNS is disabled or not
// compiled in.
type NoopScanner struct{}

// Scan implements Scanner.
func (NoopScanner) Scan(context.Context) ([]Backend, error) { return nil, nil }

// New returns the scanner selected by cfg.
func New(cfg config.DiscoveryConfig, logger *slog.Logger) Scanner {
	if !cfg.MDNS {
		return NoopScanner{}
	}
	return newMDNSScanner(cfg, logger)
}

// Announce scans once and publishes every result as backend.discovered.
// It returns the number of backends announced.
func Announce(ctx context.Context, scanner Scanner, bus domain.EventBus, logger *slog.Logger) int {
	found, err := scanner.Scan(ctx)
	if err != nil {
		logger.Warn("backend discovery failed", "error", err)
		return 0
	}
	seen := make(map[string]bool, len(found))
	n := 0
	for _, b := range found {
		if b.URL == "" || seen[b.URL] {
			continue
		}
		seen[b.URL] = true
		bus.Publish(ctx, domain.NewEvent(domain.EventBackendFound, "", domain.BackendFoundPayload{Name: b.Name, URL: b.URL}))
		n++
	}
	if n > 0 {
		logger.Info("personal backends discovered", "count", n)
	}
	return n
}
