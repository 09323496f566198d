package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicepair/internal/adapter/settings"
	"devicepair/internal/domain"
	"devicepair/internal/usecase/eventbus"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"devicepair"}, args...)
	t.Cleanup(func() { os.Args = old })
}

func TestFlagValue(t *testing.T) {
	withArgs(t, "surface", "--addr", "10.0.0.2:8090", "--token=secret")
	assert.Equal(t, "10.0.0.2:8090", flagValue("addr"))
	assert.Equal(t, "secret", flagValue("token"))
	assert.Empty(t, flagValue("config"))
}

func TestConfigPath(t *testing.T) {
	withArgs(t, "status")
	t.Setenv("DEVICEPAIR_CONFIG", "")
	assert.Equal(t, "devicepair.yaml", configPath())

	t.Setenv("DEVICEPAIR_CONFIG", "/etc/devicepair.yaml")
	assert.Equal(t, "/etc/devicepair.yaml", configPath())

	withArgs(t, "status", "--config", "local.yaml")
	assert.Equal(t, "local.yaml", configPath())
}

func TestDialAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8090", dialAddr(":8090"))
	assert.Equal(t, "127.0.0.1:8090", dialAddr("0.0.0.0:8090"))
	assert.Equal(t, "192.168.1.4:8090", dialAddr("192.168.1.4:8090"))
	assert.Equal(t, "not-an-addr", dialAddr("not-an-addr"))
}

func TestRouteUtterance(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New(logger)
	defer bus.Close()

	intents := make(chan domain.Event, 4)
	bus.Subscribe(domain.EventPairingIntent, func(_ context.Context, ev domain.Event) { intents <- ev })

	captured := func(string) bool { return true }
	idle := func(string) bool { return false }

	routeUtterance(context.Background(), "pair my device", captured, bus, logger)
	routeUtterance(context.Background(), "what time is it", idle, bus, logger)
	routeUtterance(context.Background(), "Please pair my device", idle, bus, logger)

	select {
	case ev := <-intents:
		assert.Equal(t, "voice", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected a pairing intent")
	}
	select {
	case ev := <-intents:
		t.Fatalf("unexpected second intent: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStatusAndUnpair(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	st, err := loadStatus(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, st.Paired)
	var out bytes.Buffer
	printStatus(&out, st)
	assert.Contains(t, out.String(), "Paired:    no")
	assert.Contains(t, out.String(), "Backend:   not selected")

	savePaired(t, cfg, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, settings.New(cfg.Setup.SettingsPath).Save(ctx, domain.WizardSettings{
		SelectedBackend: domain.BackendSelene,
		SelectedSTT:     domain.STTVosk,
		PairingURL:      domain.SeleneHost,
	}))

	st, err = loadStatus(ctx, cfg)
	require.NoError(t, err)
	out.Reset()
	printStatus(&out, st)
	assert.Contains(t, out.String(), "Paired:    yes")
	assert.Contains(t, out.String(), "UUID:      dev-1")
	assert.Contains(t, out.String(), "Expires:   2027-01-01T00:00:00Z")
	assert.Contains(t, out.String(), "Backend:   selene (home.mycroft.ai)")
	assert.Contains(t, out.String(), "STT:       vosk")
	assert.Contains(t, out.String(), "TTS:       -")

	require.NoError(t, unpair(ctx, cfg))
	st, err = loadStatus(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, st.Paired)
	assert.Empty(t, st.Settings.SelectedBackend)

	// Nothing left to delete.
	require.NoError(t, unpair(ctx, cfg))
}
