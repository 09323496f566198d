package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kaptinlin/jsonschema"

	"devicepair/internal/domain"
)

// HandlerDeps holds what the RPC handlers need. Optional fields may be nil.
type HandlerDeps struct {
	Bus      domain.EventBus
	State    func() domain.SetupState
	Settings func() domain.WizardSettings
	Creds    domain.CredentialStore
	// PairingActive reports whether a pairing cycle runs. Optional.
	PairingActive func() bool
	// PairingCycle describes the running cycle. Optional.
	PairingCycle func() PairingCycle
	// CancelStep stops the active wizard step's sub-task. Optional.
	CancelStep func()
	// NextReport returns the next attribute report time. Optional.
	NextReport func() *time.Time
	// Converse offers a typed utterance to the wizard. Optional.
	Converse func(text string) bool
	// Metrics serves /metrics. Optional.
	Metrics http.Handler
	Logger  *slog.Logger
}

// commandSchemas lists the inbound commands a surface may publish and the
// JSON schema of each payload.
var commandSchemas = map[domain.EventType]string{
	domain.EventBackendSelected: `{
		"type": "object",
		"required": ["backend"],
		"properties": {"backend": {"enum": ["offline", "personal", "selene"]}}
	}`,
	domain.EventBackendConfirmed: `{
		"type": "object",
		"required": ["backend"],
		"properties": {"backend": {"enum": ["offline", "personal", "selene"]}}
	}`,
	domain.EventBackendHostAddress: `{
		"type": "object",
		"required": ["url"],
		"properties": {"url": {"type": "string", "minLength": 1, "maxLength": 2048}}
	}`,
	domain.EventSTTConfirmed: `{
		"type": "object",
		"required": ["engine"],
		"properties": {"engine": {"enum": ["google", "vosk"]}}
	}`,
	domain.EventTTSConfirmed: `{
		"type": "object",
		"required": ["engine"],
		"properties": {"engine": {"enum": ["mimic", "mimic2", "pico", "larynx"]}}
	}`,
	domain.EventDeviceNotPaired: `{
		"type": "object",
		"properties": {"quiet": {"type": "boolean"}}
	}`,
	domain.EventBackendReturnToMenu: `{"type": "object"}`,
	domain.EventWifiSetupCompleted:  `{"type": "object"}`,
	domain.EventWifiSetupSkipped:    `{"type": "object"}`,
	domain.EventPairingIntent:       `{"type": "object"}`,
	domain.EventSystemReady:         `{"type": "object"}`,
}

// CommandValidator checks inbound command payloads.
type CommandValidator struct {
	schemas map[domain.EventType]*jsonschema.Schema
}

// NewCommandValidator compiles the command schemas.
func NewCommandValidator() (*CommandValidator, error) {
	v := &CommandValidator{schemas: make(map[domain.EventType]*jsonschema.Schema, len(commandSchemas))}
	for t, raw := range commandSchemas {
		compiled, err := jsonschema.NewCompiler().Compile([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", t, err)
		}
		v.schemas[t] = compiled
	}
	return v, nil
}

// Validate returns the normalized payload for a command. An empty payload is
// treated as {}.
func (v *CommandValidator) Validate(t domain.EventType, payload json.RawMessage) (json.RawMessage, error) {
	schema, ok := v.schemas[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCommand, t)
	}
	if len(bytes.TrimSpace(payload)) == 0 || string(bytes.TrimSpace(payload)) == "null" {
		payload = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, domain.NewDomainError("CommandValidator.Validate", domain.ErrInvalidInput, "invalid JSON: "+err.Error())
	}
	if result := schema.Validate(doc); !result.IsValid() {
		return nil, domain.NewDomainError("CommandValidator.Validate", domain.ErrInvalidInput, fmt.Sprintf("%s", result.Error()))
	}
	return payload, nil
}

// RegisterHandlers installs the RPC methods and HTTP routes.
func RegisterHandlers(s *Server, deps HandlerDeps) error {
	validator, err := NewCommandValidator()
	if err != nil {
		return err
	}

	s.RegisterHandler(MethodCommand, commandHandler(deps, validator))
	s.RegisterHandler(MethodSetupState, func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(domain.SetupStatePayload{State: deps.State()})
	})
	s.RegisterHandler(MethodPairingStatus, func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(pairingStatus(ctx, deps))
	})
	if deps.Converse != nil {
		s.RegisterHandler(MethodUtterance, func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
			var p UtteranceParams
			if err := json.Unmarshal(payload, &p); err != nil || p.Text == "" {
				return nil, domain.NewDomainError("utterance", domain.ErrInvalidInput, "text is required")
			}
			return json.Marshal(map[string]bool{"captured": deps.Converse(p.Text)})
		})
	}

	if deps.CancelStep != nil {
		s.RegisterHandler(MethodCancelStep, func(_ context.Context, client *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
			deps.CancelStep()
			deps.Logger.Debug("wizard step cancelled", "client", client.Name)
			return json.RawMessage(`{"cancelled":true}`), nil
		})
	}

	s.RegisterHTTPRoute("/status", statusHandler(deps))
	if deps.Metrics != nil {
		s.RegisterHTTPRoute("/metrics", deps.Metrics)
	}
	return nil
}

func commandHandler(deps HandlerDeps, validator *CommandValidator) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p CommandParams
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, domain.NewDomainError("command", domain.ErrInvalidInput, err.Error())
		}
		body, err := validator.Validate(domain.EventType(p.Type), p.Payload)
		if err != nil {
			return nil, err
		}
		deps.Bus.Publish(ctx, domain.Event{
			Type:      domain.EventType(p.Type),
			Timestamp: time.Now(),
			SessionID: "gateway:" + client.Name,
			Payload:   body,
		})
		deps.Logger.Debug("gateway command published", "type", p.Type, "client", client.Name)
		return json.RawMessage(`{"accepted":true}`), nil
	}
}

func pairingStatus(ctx context.Context, deps HandlerDeps) PairingStatus {
	var st PairingStatus
	if deps.Settings != nil {
		st.Backend = string(deps.Settings().BackendType())
	}
	if deps.PairingActive != nil {
		st.Active = deps.PairingActive()
	}
	if st.Active && deps.PairingCycle != nil {
		cycle := deps.PairingCycle()
		st.Code = cycle.Code
		st.IssueFailures = cycle.IssueFailures
		if !cycle.ExpiresAt.IsZero() {
			expires := cycle.ExpiresAt
			st.ExpiresAt = &expires
		}
	}
	if deps.Creds == nil {
		return st
	}
	creds, err := deps.Creds.Load(ctx)
	if err != nil {
		return st
	}
	st.Paired = creds.Valid()
	st.UUID = creds.UUID
	return st
}

// statusHandler serves GET /status for health checks and the CLI.
func statusHandler(deps HandlerDeps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := struct {
			State      domain.SetupState `json:"state"`
			Pairing    PairingStatus     `json:"pairing"`
			NextReport *time.Time        `json:"next_report,omitempty"`
		}{
			State:   deps.State(),
			Pairing: pairingStatus(r.Context(), deps),
		}
		if deps.NextReport != nil {
			resp.NextReport = deps.NextReport()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}
