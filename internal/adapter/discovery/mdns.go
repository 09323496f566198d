//go:build mdns

package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"devicepair/internal/infra/config"
)

const (
	mdnsDomain         = "local."
	defaultScanTimeout = 3 * time.Second
)

// MDNSScanner browses DNS-SD for personal backends.
type MDNSScanner struct {
	service string
	timeout time.Duration
	logger  *slog.Logger
}

func newMDNSScanner(cfg config.DiscoveryConfig, logger *slog.Logger) Scanner {
	return NewMDNSScanner(cfg, logger)
}

// NewMDNSScanner creates an MDNSScanner.
func NewMDNSScanner(cfg config.DiscoveryConfig, logger *slog.Logger) *MDNSScanner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	return &MDNSScanner{service: cfg.Service, timeout: timeout, logger: logger}
}

// Scan implements Scanner.
func (s *MDNSScanner) Scan(ctx context.Context) ([]Backend, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var mu sync.Mutex
	var found []Backend
	var wg sync.WaitGroup

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			b, ok := entryToBackend(entry)
			if !ok {
				continue
			}
			mu.Lock()
			found = append(found, b)
			mu.Unlock()
			s.logger.Debug("mdns discovered backend", "name", b.Name, "url", b.URL)
		}
	}()

	if err := resolver.Browse(scanCtx, s.service, mdnsDomain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return append([]Backend(nil), found...), nil
}

// entryToBackend prefers an explicit url TXT record over the resolved
// address.
func entryToBackend(entry *zeroconf.ServiceEntry) (Backend, bool) {
	b := Backend{Name: entry.ServiceRecord.Instance}
	for _, t := range entry.Text {
		if k, v, ok := strings.Cut(t, "="); ok && k == "url" {
			b.URL = strings.TrimRight(v, "/")
		}
	}
	if b.URL != "" {
		return b, true
	}
	switch {
	case len(entry.AddrIPv4) > 0:
		b.URL = fmt.Sprintf("http://%s:%d", entry.AddrIPv4[0], entry.Port)
	case len(entry.AddrIPv6) > 0:
		b.URL = fmt.Sprintf("http://[%s]:%d", entry.AddrIPv6[0], entry.Port)
	default:
		return b, false
	}
	return b, true
}
