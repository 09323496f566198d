package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
	"devicepair/internal/usecase/eventbus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuth() Authenticator {
	return NewStaticTokenAuth([]config.TokenConfig{{Token: "test-token", Name: "tester"}})
}

type memCreds struct{ creds *domain.DeviceCredentials }

func (m *memCreds) Save(_ context.Context, c *domain.DeviceCredentials) error { m.creds = c; return nil }
func (m *memCreds) Delete(context.Context) error                            { m.creds = nil; return nil }
func (m *memCreds) Load(context.Context) (*domain.DeviceCredentials, error) {
	if m.creds == nil {
		return nil, domain.ErrCredentialsNotFound
	}
	return m.creds, nil
}

// startTestServer starts a gateway on a random port. setup runs before Start
// so HTTP routes can be registered.
func startTestServer(t *testing.T, bus domain.EventBus, setup func(*Server)) *Server {
	t.Helper()
	srv := NewServer(bus, newTestAuth(), "127.0.0.1:0", Options{}, testLogger())
	if setup != nil {
		setup(srv)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = srv.Start(ctx) }()
	require.Eventually(t, func() bool { return srv.BoundAddr() != "" }, 3*time.Second, 5*time.Millisecond)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func newBus(t *testing.T) *eventbus.Bus {
	bus := eventbus.New(testLogger())
	t.Cleanup(bus.Close)
	return bus
}

func dialWS(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, ws *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var f Frame
		require.NoError(t, wsjson.Read(ctx, ws, &f))
		if match(f) {
			return f
		}
	}
}

func responseTo(id uint64) func(Frame) bool {
	return func(f Frame) bool { return f.Type == FrameTypeResponse && f.ID == id }
}

func eventOf(t domain.EventType) func(Frame) bool {
	return func(f Frame) bool {
		if f.Type != FrameTypeEvent {
			return false
		}
		var ev domain.Event
		return json.Unmarshal(f.Payload, &ev) == nil && ev.Type == t
	}
}

func call(t *testing.T, ws *websocket.Conn, id uint64, method string, params any) Frame {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(context.Background(), ws, Frame{Type: FrameTypeRequest, ID: id, Method: method, Payload: raw}))
	return readUntil(t, ws, responseTo(id))
}

func TestServerAuthReject(t *testing.T) {
	srv := startTestServer(t, newBus(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=bad-token", nil)
	assert.Error(t, err)
}

func TestServerRPCRoundtrip(t *testing.T) {
	srv := startTestServer(t, newBus(t), func(s *Server) {
		s.RegisterHandler("echo", func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
			return payload, nil
		})
	})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 1, "echo", map[string]string{"msg": "hello"})
	assert.Empty(t, resp.Error)
	assert.JSONEq(t, `{"msg":"hello"}`, string(resp.Payload))
}

func TestServerUnknownMethod(t *testing.T) {
	srv := startTestServer(t, newBus(t), nil)
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 2, "nonexistent", nil)
	assert.Contains(t, resp.Error, domain.ErrRPCMethodNotFound.Error())
}

func TestServerForwardsRedactedEvents(t *testing.T) {
	bus := newBus(t)
	srv := startTestServer(t, bus, nil)
	ws := dialWS(t, srv.BoundAddr(), "test-token")
	require.Eventually(t, func() bool {
		n := 0
		srv.clients.Range(func(_, _ any) bool { n++; return true })
		return n == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(context.Background(), domain.NewEvent(domain.EventDevicePaired, "", domain.CredentialsPayload{
		Credentials: &domain.DeviceCredentials{UUID: "dev-1", AccessToken: "secret-a", RefreshToken: "secret-r"},
	}))

	f := readUntil(t, ws, eventOf(domain.EventDevicePaired))
	assert.NotContains(t, string(f.Payload), "secret-a")
	assert.NotContains(t, string(f.Payload), "secret-r")
	assert.Contains(t, string(f.Payload), "dev-1")
}

func TestCommandPublishesEvent(t *testing.T) {
	bus := newBus(t)
	got := make(chan domain.Event, 1)
	bus.Subscribe(domain.EventBackendSelected, func(_ context.Context, ev domain.Event) { got <- ev })

	srv := startTestServer(t, bus, func(s *Server) {
		require.NoError(t, RegisterHandlers(s, HandlerDeps{
			Bus:    bus,
			State:  func() domain.SetupState { return domain.StateSelectingBackend },
			Logger: testLogger(),
		}))
	})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 3, MethodCommand, CommandParams{
		Type:    string(domain.EventBackendSelected),
		Payload: json.RawMessage(`{"backend":"selene"}`),
	})
	require.Empty(t, resp.Error)

	select {
	case ev := <-got:
		var p domain.BackendPayload
		require.NoError(t, ev.Decode(&p))
		assert.Equal(t, domain.BackendSelene, p.Backend)
		assert.Equal(t, "gateway:tester", ev.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("command was not published")
	}
}

func TestCommandRejectsInvalidPayload(t *testing.T) {
	bus := newBus(t)
	srv := startTestServer(t, bus, func(s *Server) {
		require.NoError(t, RegisterHandlers(s, HandlerDeps{
			Bus:    bus,
			State:  func() domain.SetupState { return domain.StateInactive },
			Logger: testLogger(),
		}))
	})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 4, MethodCommand, CommandParams{
		Type:    string(domain.EventBackendSelected),
		Payload: json.RawMessage(`{"backend":"cloud"}`),
	})
	assert.Contains(t, resp.Error, domain.ErrInvalidInput.Error())

	resp = call(t, ws, 5, MethodCommand, CommandParams{Type: "pairing.succeeded"})
	assert.Contains(t, resp.Error, domain.ErrUnknownCommand.Error())
}

func TestStatusRoute(t *testing.T) {
	bus := newBus(t)
	creds := &memCreds{creds: &domain.DeviceCredentials{UUID: "dev-9", AccessToken: "a"}}
	srv := startTestServer(t, bus, func(s *Server) {
		require.NoError(t, RegisterHandlers(s, HandlerDeps{
			Bus:           bus,
			State:         func() domain.SetupState { return domain.StatePairing },
			Creds:         creds,
			PairingActive: func() bool { return true },
			Settings: func() domain.WizardSettings {
				return domain.WizardSettings{PairingURL: "https://home.mycroft.ai"}
			},
			Logger: testLogger(),
		}))
	})

	resp, err := http.Get("http://" + srv.BoundAddr() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	var body struct {
		State   domain.SetupState `json:"state"`
		Pairing PairingStatus     `json:"pairing"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, domain.StatePairing, body.State)
	assert.True(t, body.Pairing.Paired)
	assert.True(t, body.Pairing.Active)
	assert.Equal(t, "dev-9", body.Pairing.UUID)
	assert.Equal(t, string(domain.BackendSelene), body.Pairing.Backend)
}

func TestUtteranceRPC(t *testing.T) {
	bus := newBus(t)
	var (
		mu    sync.Mutex
		heard []string
	)
	srv := startTestServer(t, bus, func(s *Server) {
		require.NoError(t, RegisterHandlers(s, HandlerDeps{
			Bus:   bus,
			State: func() domain.SetupState { return domain.StateSelectingBackend },
			Converse: func(text string) bool {
				mu.Lock()
				heard = append(heard, text)
				mu.Unlock()
				return strings.Contains(text, "offline")
			},
			Logger: testLogger(),
		}))
	})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 6, MethodUtterance, UtteranceParams{Text: "go offline"})
	require.Empty(t, resp.Error)
	assert.JSONEq(t, `{"captured":true}`, string(resp.Payload))

	resp = call(t, ws, 7, MethodUtterance, UtteranceParams{})
	assert.NotEmpty(t, resp.Error)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"go offline"}, heard)
}

func TestPairingStatusReportsRunningCycle(t *testing.T) {
	bus := newBus(t)
	expires := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	active := true
	srv := startTestServer(t, bus, func(s *Server) {
		require.NoError(t, RegisterHandlers(s, HandlerDeps{
			Bus:           bus,
			State:         func() domain.SetupState { return domain.StatePairing },
			PairingActive: func() bool { return active },
			PairingCycle: func() PairingCycle {
				return PairingCycle{Code: "ABC123", ExpiresAt: expires, IssueFailures: 2}
			},
			Logger: testLogger(),
		}))
	})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 8, MethodPairingStatus, nil)
	require.Empty(t, resp.Error)
	var st PairingStatus
	require.NoError(t, json.Unmarshal(resp.Payload, &st))
	assert.True(t, st.Active)
	assert.False(t, st.Paired)
	assert.Equal(t, "ABC123", st.Code)
	assert.Equal(t, 2, st.IssueFailures)
	require.NotNil(t, st.ExpiresAt)
	assert.True(t, expires.Equal(*st.ExpiresAt))
}

func TestPairingStatusIdleOmitsCycle(t *testing.T) {
	bus := newBus(t)
	srv := startTestServer(t, bus, func(s *Server) {
		require.NoError(t, RegisterHandlers(s, HandlerDeps{
			Bus:           bus,
			State:         func() domain.SetupState { return domain.StateInactive },
			PairingActive: func() bool { return false },
			PairingCycle: func() PairingCycle {
				t.Error("cycle must not be read while idle")
				return PairingCycle{}
			},
			Logger: testLogger(),
		}))
	})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 9, MethodPairingStatus, nil)
	require.Empty(t, resp.Error)
	assert.NotContains(t, string(resp.Payload), "code")
	assert.NotContains(t, string(resp.Payload), "expires_at")
}

func TestCancelStepRPC(t *testing.T) {
	bus := newBus(t)
	var (
		mu        sync.Mutex
		cancelled int
	)
	srv := startTestServer(t, bus, func(s *Server) {
		require.NoError(t, RegisterHandlers(s, HandlerDeps{
			Bus:   bus,
			State: func() domain.SetupState { return domain.StateSelectingSTT },
			CancelStep: func() {
				mu.Lock()
				cancelled++
				mu.Unlock()
			},
			Logger: testLogger(),
		}))
	})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := call(t, ws, 10, MethodCancelStep, nil)
	require.Empty(t, resp.Error)
	assert.JSONEq(t, `{"cancelled":true}`, string(resp.Payload))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, cancelled)
}

func TestStatusRouteNextReport(t *testing.T) {
	bus := newBus(t)
	next := time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC)
	srv := startTestServer(t, bus, func(s *Server) {
		require.NoError(t, RegisterHandlers(s, HandlerDeps{
			Bus:        bus,
			State:      func() domain.SetupState { return domain.StateInactive },
			NextReport: func() *time.Time { return &next },
			Logger:     testLogger(),
		}))
	})

	resp, err := http.Get("http://" + srv.BoundAddr() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		NextReport *time.Time `json:"next_report"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.NextReport)
	assert.True(t, next.Equal(*body.NextReport))
}
