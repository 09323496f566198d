//go:build !mdns

package discovery

import (
	"log/slog"

	"devicepair/internal/infra/config"
)

func newMDNSScanner(_ config.DiscoveryConfig, logger *slog.Logger) Scanner {
	logger.Warn("mdns discovery requested but not compiled in; rebuild with -tags mdns")
	return NoopScanner{}
}
