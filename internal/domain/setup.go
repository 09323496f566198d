package domain

import (
	"context"
	"strings"
)

// BackendSelection is the backend chosen for one pairing cycle. URL is only
// meaningful for BackendPersonal.
type BackendSelection struct {
	Type BackendType `json:"type"`
	URL  string      `json:"url,omitempty"`
}

// STTEngine is a speech-to-text engine offered by the setup wizard.
type STTEngine string

const (
	STTGoogle STTEngine = "google"
	STTVosk   STTEngine = "vosk"
)

// ParseSTTEngine maps a spoken or selected answer to an engine. Anything
// mentioning google or online selects the server engine.
func ParseSTTEngine(answer string) (STTEngine, bool) {
	a := strings.ToLower(answer)
	switch {
	case strings.Contains(a, "google"), strings.Contains(a, "online"):
		return STTGoogle, true
	case strings.Contains(a, "vosk"), strings.Contains(a, "offline"):
		return STTVosk, true
	}
	return "", false
}

// TTSEngine is a text-to-speech engine offered by the setup wizard.
type TTSEngine string

const (
	TTSMimic  TTSEngine = "mimic"
	TTSMimic2 TTSEngine = "mimic2"
	TTSPico   TTSEngine = "pico"
	TTSLarynx TTSEngine = "larynx"
)

// ParseTTSEngine maps a voice description to an engine. The four spoken
// options are online male, offline male, offline female and online female.
func ParseTTSEngine(answer string) (TTSEngine, bool) {
	a := strings.ToLower(strings.TrimSpace(answer))
	switch a {
	case "online male", string(TTSMimic2):
		return TTSMimic2, true
	case "offline male", string(TTSMimic):
		return TTSMimic, true
	case "online female", string(TTSLarynx):
		return TTSLarynx, true
	case "offline female", string(TTSPico):
		return TTSPico, true
	}
	return "", false
}

// WizardSettings is the persisted outcome of the setup wizard.
type WizardSettings struct {
	SelectedBackend BackendType `yaml:"selected_backend,omitempty" json:"selected_backend,omitempty"`
	SelectedSTT     STTEngine   `yaml:"selected_stt,omitempty" json:"selected_stt,omitempty"`
	SelectedTTS     TTSEngine   `yaml:"selected_tts,omitempty" json:"selected_tts,omitempty"`
	PairingURL      string      `yaml:"pairing_url,omitempty" json:"pairing_url,omitempty"`
	Color           string      `yaml:"color,omitempty" json:"color,omitempty"`
}

// BackendType derives the backend kind from the stored pairing URL.
func (s WizardSettings) BackendType() BackendType {
	return BackendTypeFromPairingURL(s.PairingURL)
}

// SettingsStore persists WizardSettings. Load returns zero settings when
// nothing was stored yet.
type SettingsStore interface {
	Load(ctx context.Context) (WizardSettings, error)
	Save(ctx context.Context, s WizardSettings) error
	Delete(ctx context.Context) error
}

// UserConfigStore merges patches into the user configuration and returns the
// merged result.
type UserConfigStore interface {
	Merge(ctx context.Context, patch map[string]any) (map[string]any, error)
}

// Voice is the spoken interaction surface.
type Voice interface {
	// Speak renders a named dialog with data and blocks until it was spoken.
	Speak(ctx context.Context, dialog string, data map[string]string) error
	// Ask speaks a dialog and waits for one answer. An empty answer means
	// nothing was recognized.
	Ask(ctx context.Context, dialog string, data map[string]string) (string, error)
	// Stop interrupts playback and recording.
	Stop()
}

// Display renders named pages on a graphical surface.
type Display interface {
	Show(ctx context.Context, page string, data map[string]any)
	Release(ctx context.Context)
}
