//go:build mdns

package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
)

func TestEntryToBackend(t *testing.T) {
	entry := zeroconf.NewServiceEntry("kitchen", "_ovos-backend._tcp", mdnsDomain)
	entry.Port = 6712
	entry.AddrIPv4 = []net.IP{net.IPv4(192, 168, 1, 10)}

	b, ok := entryToBackend(entry)
	assert.True(t, ok)
	assert.Equal(t, Backend{Name: "kitchen", URL: "http://192.168.1.10:6712"}, b)

	entry.Text = []string{"version=1", "url=https://backend.lan/"}
	b, ok = entryToBackend(entry)
	assert.True(t, ok)
	assert.Equal(t, "https://backend.lan", b.URL)

	_, ok = entryToBackend(zeroconf.NewServiceEntry("empty", "_ovos-backend._tcp", mdnsDomain))
	assert.False(t, ok)
}
