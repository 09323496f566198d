package gateway

import (
	"encoding/json"
	"time"
)

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the envelope exchanged with surfaces. Requests carry a method and
// params; responses echo the request ID; events wrap a bus event.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RPC method names.
const (
	MethodCommand       = "command"
	MethodSetupState    = "setup.state"
	MethodPairingStatus = "pairing.status"
	MethodUtterance     = "utterance"
	MethodCancelStep    = "setup.cancel_step"
)

// CommandParams is the payload of a "command" request: a bus event type and
// its body.
type CommandParams struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UtteranceParams is the payload of an "utterance" request.
type UtteranceParams struct {
	Text string `json:"text"`
}

// PairingStatus is the result of "pairing.status". Code, ExpiresAt and
// IssueFailures describe the running cycle and are empty when none runs.
type PairingStatus struct {
	Paired        bool       `json:"paired"`
	UUID          string     `json:"uuid,omitempty"`
	Backend       string     `json:"backend"`
	Active        bool       `json:"active"`
	Code          string     `json:"code,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IssueFailures int        `json:"issue_failures,omitempty"`
}

// PairingCycle is the view of the running pairing cycle the gateway reports.
type PairingCycle struct {
	Code          string
	ExpiresAt     time.Time
	IssueFailures int
}
