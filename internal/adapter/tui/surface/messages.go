// Package surface is a terminal front end for the setup wizard. It renders
// the pages the wizard publishes and sends the user's choices back through
// the gateway.
package surface

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"devicepair/internal/adapter/gateway"
	"devicepair/internal/domain"
)

// Gateway is the part of Client the model uses.
type Gateway interface {
	Command(ctx context.Context, t domain.EventType, payload any) error
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

const requestTimeout = 5 * time.Second

// eventMsg carries one bus event forwarded by the gateway.
type eventMsg struct {
	event domain.Event
}

// disconnectedMsg is sent once the event stream ends.
type disconnectedMsg struct{}

// commandResultMsg reports the outcome of a command.
type commandResultMsg struct {
	err error
}

// stateMsg carries the wizard state fetched at startup.
type stateMsg struct {
	state domain.SetupState
	err   error
}

func waitForEvent(events <-chan domain.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return disconnectedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func sendCommand(gw Gateway, t domain.EventType, payload any) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return commandResultMsg{err: gw.Command(ctx, t, payload)}
	}
}

func fetchState(gw Gateway) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		raw, err := gw.Call(ctx, gateway.MethodSetupState, nil)
		if err != nil {
			return stateMsg{err: err}
		}
		var p domain.SetupStatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return stateMsg{err: err}
		}
		return stateMsg{state: p.State}
	}
}
