package domain

import (
	"context"
	"strings"
	"time"
)

// DeviceCredentials is the identity a device receives on activation.
type DeviceCredentials struct {
	UUID         string    `json:"uuid"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the credentials carry a usable identity.
func (c *DeviceCredentials) Valid() bool {
	return c != nil && c.UUID != "" && c.AccessToken != ""
}

// PairingCode is the result of a successful code issuance. Code is shown to
// the user; Token is the opaque value used for activation polling.
type PairingCode struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

// BackendType is the identity backend chosen during setup.
type BackendType string

const (
	BackendOffline  BackendType = "offline"
	BackendPersonal BackendType = "personal"
	BackendSelene   BackendType = "selene"
)

// SeleneHost is the pairing host of the hosted backend.
const SeleneHost = "home.mycroft.ai"

// Valid reports whether b is one of the known backend types.
func (b BackendType) Valid() bool {
	switch b {
	case BackendOffline, BackendPersonal, BackendSelene:
		return true
	}
	return false
}

// BackendTypeFromPairingURL derives the backend kind from a stored pairing
// URL: empty means offline, the hosted pairing host means selene, anything
// else is a personal backend. The scheme is ignored.
func BackendTypeFromPairingURL(pairingURL string) BackendType {
	if i := strings.LastIndex(pairingURL, "://"); i >= 0 {
		pairingURL = pairingURL[i+3:]
	}
	switch strings.TrimSuffix(pairingURL, "/") {
	case "":
		return BackendOffline
	case SeleneHost:
		return BackendSelene
	default:
		return BackendPersonal
	}
}

// SetupState is the single process-wide state of the setup wizard.
type SetupState string

const (
	StateFirstBoot        SetupState = "first_boot"
	StateLoading          SetupState = "loading"
	StateInactive         SetupState = "inactive"
	StateSelectingWifi    SetupState = "selecting_wifi"
	StateSelectingBackend SetupState = "selecting_backend"
	StateSelectingSTT     SetupState = "selecting_stt"
	StateSelectingTTS     SetupState = "selecting_tts"
	StatePairing          SetupState = "pairing"
)

// SetupStates lists every wizard state.
var SetupStates = []SetupState{
	StateFirstBoot, StateLoading, StateInactive, StateSelectingWifi,
	StateSelectingBackend, StateSelectingSTT, StateSelectingTTS, StatePairing,
}

// CapturesInput reports whether free-form utterances belong to the wizard
// while in this state.
func (s SetupState) CapturesInput() bool {
	return s != StateInactive && s != StateFirstBoot
}

// PairingMode is the interaction modality of the setup wizard.
type PairingMode string

const (
	ModeVoice  PairingMode = "voice"
	ModeGUI    PairingMode = "gui"
	ModeHybrid PairingMode = "hybrid"
)

// UsesVoiceInput reports whether the mode collects spoken answers.
func (m PairingMode) UsesVoiceInput() bool { return m == ModeVoice || m == ModeHybrid }

// UsesDisplay reports whether the mode renders graphical pages.
func (m PairingMode) UsesDisplay() bool { return m == ModeGUI || m == ModeHybrid }

// BackendClient is the remote identity backend used during pairing.
type BackendClient interface {
	// IssueCode requests a pairing code for the given state UUID.
	IssueCode(ctx context.Context, stateUUID string) (*PairingCode, error)
	// Activate attempts activation. It returns ErrActivationPending while the
	// user has not entered the code yet.
	Activate(ctx context.Context, stateUUID, token string) (*DeviceCredentials, error)
	// ReportDeviceAttributes sends device metadata. Errors are informational.
	ReportDeviceAttributes(ctx context.Context) error
	// SetBaseURL retargets the client to another backend.
	SetBaseURL(url string)
}

// CredentialStore persists device identity credentials.
type CredentialStore interface {
	// Save writes creds atomically. Repeated saves of the same value are safe.
	Save(ctx context.Context, creds *DeviceCredentials) error
	// Load returns ErrCredentialsNotFound when the device is not paired.
	Load(ctx context.Context) (*DeviceCredentials, error)
	Delete(ctx context.Context) error
}
