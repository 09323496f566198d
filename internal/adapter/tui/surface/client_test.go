package surface

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicepair/internal/adapter/gateway"
	"devicepair/internal/domain"
	"devicepair/internal/usecase/eventbus"
)

func startGateway(t *testing.T) (*eventbus.Bus, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)

	srv := gateway.NewServer(bus, gateway.OpenAuth{}, "127.0.0.1:0", gateway.Options{}, logger)
	require.NoError(t, gateway.RegisterHandlers(srv, gateway.HandlerDeps{
		Bus:    bus,
		State:  func() domain.SetupState { return domain.StateSelectingBackend },
		Logger: logger,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Start(ctx) }()
	require.Eventually(t, func() bool { return srv.BoundAddr() != "" }, 3*time.Second, 5*time.Millisecond)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return bus, srv.BoundAddr()
}

func TestClientCommandAndEvents(t *testing.T) {
	bus, addr := startGateway(t)
	got := make(chan domain.Event, 1)
	bus.Subscribe(domain.EventTTSConfirmed, func(_ context.Context, ev domain.Event) { got <- ev })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Command(ctx, domain.EventTTSConfirmed, domain.EnginePayload{Engine: "pico"}))
	select {
	case ev := <-got:
		var p domain.EnginePayload
		require.NoError(t, ev.Decode(&p))
		assert.Equal(t, "pico", p.Engine)
	case <-ctx.Done():
		t.Fatal("command not published")
	}

	// The command itself comes back as a forwarded event.
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == domain.EventTTSConfirmed {
				return
			}
		case <-ctx.Done():
			t.Fatal("event not forwarded")
		}
	}
}

func TestClientCallErrorsAndState(t *testing.T) {
	_, addr := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "")
	require.NoError(t, err)
	defer c.Close()

	err = c.Command(ctx, domain.EventSTTConfirmed, domain.EnginePayload{Engine: "whisper"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input")

	msg := fetchState(c)()
	assert.Equal(t, stateMsg{state: domain.StateSelectingBackend}, msg)
}

func TestClientClosedEventsChannel(t *testing.T) {
	_, addr := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Equal(t, disconnectedMsg{}, waitForEvent(c.Events())())
	_, err = c.Call(ctx, gateway.MethodSetupState, nil)
	assert.Error(t, err)
}
