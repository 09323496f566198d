package surface

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicepair/internal/adapter/tui/components/wizard"
	"devicepair/internal/domain"
	"devicepair/internal/usecase/setup"
)

type sentCommand struct {
	Type    domain.EventType
	Payload any
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentCommand
	err  error
}

func (f *fakeGateway) Command(_ context.Context, t domain.EventType, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCommand{Type: t, Payload: payload})
	return f.err
}

func (f *fakeGateway) Call(context.Context, string, any) (json.RawMessage, error) {
	return json.RawMessage(`{"state":"inactive"}`), nil
}

func (f *fakeGateway) last(t *testing.T) sentCommand {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func pageEvent(page string, data map[string]any) tea.Msg {
	return eventMsg{event: domain.NewEvent(domain.EventGUIPage, "", domain.GUIPagePayload{Page: page, Data: data})}
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = step(t, m, cmd())
	return m
}

func newTestModel() (Model, *fakeGateway) {
	gw := &fakeGateway{}
	m := New(gw, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), gw
}

func TestBackendSelection(t *testing.T) {
	m, gw := newTestModel()
	m, _ = step(t, m, pageEvent(setup.PageBackendSelect, nil))
	assert.Equal(t, setup.PageBackendSelect, m.Page())
	assert.Contains(t, m.View(), "Choose a backend")
	assert.Contains(t, m.View(), "Step 1/4")

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyDown})
	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	run(t, m, cmd)

	got := gw.last(t)
	assert.Equal(t, domain.EventBackendSelected, got.Type)
	assert.Equal(t, domain.BackendPayload{Backend: domain.BackendPersonal}, got.Payload)
}

func TestConfirmAndReturn(t *testing.T) {
	m, gw := newTestModel()
	m, _ = step(t, m, pageEvent(setup.PageNoBackend, nil))

	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	run(t, m, cmd)
	assert.Equal(t, sentCommand{Type: domain.EventBackendConfirmed, Payload: domain.BackendPayload{Backend: domain.BackendOffline}}, gw.last(t))

	_, cmd = step(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	run(t, m, cmd)
	assert.Equal(t, domain.EventBackendReturnToMenu, gw.last(t).Type)
}

func TestEngineSelection(t *testing.T) {
	m, gw := newTestModel()
	m, _ = step(t, m, pageEvent(setup.PageBackendLocalSTT, nil))
	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	run(t, m, cmd)
	assert.Equal(t, sentCommand{Type: domain.EventSTTConfirmed, Payload: domain.EnginePayload{Engine: "google"}}, gw.last(t))

	m, _ = step(t, m, pageEvent(setup.PageBackendLocalTTS, nil))
	assert.Contains(t, m.View(), "Step 3/4")
	for i := 0; i < 3; i++ {
		m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyDown})
	}
	_, cmd = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	run(t, m, cmd)
	assert.Equal(t, sentCommand{Type: domain.EventTTSConfirmed, Payload: domain.EnginePayload{Engine: "pico"}}, gw.last(t))
}

func TestHostAddressPrefilledFromDiscovery(t *testing.T) {
	m, gw := newTestModel()
	m, _ = step(t, m, pageEvent(setup.PageBackendPersonalHost, map[string]any{
		"hosts": []domain.BackendFoundPayload{{Name: "kitchen", URL: "http://10.0.0.5:6712"}},
	}))
	assert.Contains(t, m.View(), "kitchen (http://10.0.0.5:6712)")

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	submit := cmd()
	require.IsType(t, wizard.FieldSubmitMsg{}, submit)
	_, cmd = step(t, m, submit)
	run(t, m, cmd)
	assert.Equal(t, sentCommand{
		Type:    domain.EventBackendHostAddress,
		Payload: domain.HostAddressPayload{URL: "http://10.0.0.5:6712"},
	}, gw.last(t))
}

func TestHostAddressRequired(t *testing.T) {
	m, gw := newTestModel()
	m, _ = step(t, m, pageEvent(setup.PageBackendPersonalHost, nil))
	m, cmd := step(t, m, wizard.FieldSubmitMsg{Value: ""})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "Enter the address of your backend")
	assert.Empty(t, gw.sent)
}

func TestPairingPageShowsCode(t *testing.T) {
	m, _ := newTestModel()
	m, _ = step(t, m, pageEvent(setup.PagePairing, map[string]any{
		"code": "ABC123", "backendurl": "home.mycroft.ai", "txtcolor": "#FF0000",
	}))
	view := m.View()
	assert.Contains(t, view, "ABC123")
	assert.Contains(t, view, "home.mycroft.ai")
	assert.Contains(t, view, "Step 4/4")
}

func TestCommandErrorIsShown(t *testing.T) {
	m, gw := newTestModel()
	gw.err = errors.New("CommandValidator.Validate: bad: invalid input")
	m, _ = step(t, m, pageEvent(setup.PageBackendSelect, nil))
	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)
	assert.Contains(t, m.View(), "Invalid Selection")

	// A new page clears the error.
	m, _ = step(t, m, pageEvent(setup.PageBackendLocalSTT, nil))
	assert.NotContains(t, m.View(), "Invalid Selection")
}

func TestStateReleaseAndDisconnect(t *testing.T) {
	m, gw := newTestModel()
	m, _ = step(t, m, stateMsg{state: domain.StateInactive})
	assert.Contains(t, m.View(), "inactive")

	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	run(t, m, cmd)
	assert.Equal(t, domain.EventPairingIntent, gw.last(t).Type)

	m, _ = step(t, m, pageEvent(setup.PageLoadingSkills, nil))
	m, _ = step(t, m, eventMsg{event: domain.NewEvent(domain.EventSetupStateChanged, "", domain.SetupStatePayload{State: domain.StatePairing})})
	assert.Contains(t, m.View(), "pairing")
	m, _ = step(t, m, eventMsg{event: domain.Event{Type: domain.EventGUIRelease}})
	assert.Contains(t, m.View(), "Setup finished")

	m, _ = step(t, m, disconnectedMsg{})
	assert.Contains(t, m.View(), "Lost connection")
}
