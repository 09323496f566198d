package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Pairing coordinator outcomes.
	EventPairingStarted   EventType = "pairing.started"
	EventPairingCodeIssue EventType = "pairing.code_issued"
	EventPairingSucceeded EventType = "pairing.succeeded"
	EventPairingFailed    EventType = "pairing.failed"
	EventPairingEnded     EventType = "pairing.ended"

	// Device identity notifications.
	EventDevicePaired    EventType = "device.paired"
	EventDeviceNotPaired EventType = "device.not_paired"

	// Setup wizard state.
	EventSetupStateQuery   EventType = "setup.state_query"
	EventSetupState        EventType = "setup.state"
	EventSetupStateChanged EventType = "setup.state_changed"

	// Inbound wizard commands from a graphical surface.
	EventBackendSelected     EventType = "backend.selected"
	EventBackendConfirmed    EventType = "backend.confirmed"
	EventBackendHostAddress  EventType = "backend.host_address"
	EventBackendReturnToMenu EventType = "backend.return_to_selection"
	EventSTTConfirmed        EventType = "stt.confirmed"
	EventTTSConfirmed        EventType = "tts.confirmed"
	EventWifiSetupCompleted  EventType = "wifi.setup_completed"
	EventWifiSetupSkipped    EventType = "wifi.setup_skipped"

	// Runtime signals.
	EventSystemReady   EventType = "system.ready"
	EventSpeechStop    EventType = "speech.stop"
	EventPairingIntent EventType = "pairing.intent"

	// Outbound side effects for collaborators.
	EventConfigPatch    EventType = "configuration.patch"
	EventGUIPage        EventType = "gui.page"
	EventGUIRelease     EventType = "gui.release"
	EventBackendFound   EventType = "backend.discovered"
	EventAttributesSent EventType = "device.attributes_reported"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a JSON-encoded payload. A nil payload
// produces an event without a body.
func NewEvent(t EventType, sessionID string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		// Payload types in this package always marshal.
		ev.Payload, _ = json.Marshal(payload)
	}
	return ev
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return NewDomainError("Event.Decode", ErrInvalidInput, "empty payload for "+string(e.Type))
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return NewDomainError("Event.Decode", ErrInvalidInput, err.Error())
	}
	return nil
}

// Event payloads.
type (
	PairingCodePayload struct {
		Code string `json:"code"`
	}
	QuietPayload struct {
		Quiet bool `json:"quiet"`
	}
	PairingEndedPayload struct {
		Reason string `json:"reason"`
	}
	CredentialsPayload struct {
		Credentials *DeviceCredentials `json:"credentials"`
	}
	SetupStatePayload struct {
		State SetupState `json:"state"`
	}
	BackendPayload struct {
		Backend BackendType `json:"backend"`
	}
	HostAddressPayload struct {
		URL string `json:"url"`
	}
	EnginePayload struct {
		Engine string `json:"engine"`
	}
	GUIPagePayload struct {
		Page string         `json:"page"`
		Data map[string]any `json:"data,omitempty"`
	}
	ConfigPatchPayload struct {
		Patch map[string]any `json:"patch"`
	}
	BackendFoundPayload struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
)

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// Once registers a handler that fires for the first matching event only.
	Once(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
