package setup

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"devicepair/internal/domain"
)

// ConfigPatch is a user configuration change. The set is closed: backend,
// stt and tts patches are the only implementations.
type ConfigPatch interface {
	userConfigPatch()
}

// BackendConfigPatch points the device at a backend or disables it.
type BackendConfigPatch struct {
	STT      *sttSection      `yaml:"stt,omitempty"`
	Server   serverSection    `yaml:"server"`
	Listener *listenerSection `yaml:"listener,omitempty"`
}

// STTConfigPatch selects the speech-to-text plugin and its fallback.
type STTConfigPatch struct {
	STT sttSection `yaml:"stt"`
}

// TTSConfigPatch selects the text-to-speech plugin.
type TTSConfigPatch struct {
	TTS ttsSection `yaml:"tts"`
}

func (BackendConfigPatch) userConfigPatch() {}
func (STTConfigPatch) userConfigPatch()     {}
func (TTSConfigPatch) userConfigPatch()     {}

type serverSection struct {
	URL      string `yaml:"url,omitempty"`
	Version  string `yaml:"version,omitempty"`
	Disabled bool   `yaml:"disabled"`
}

type listenerSection struct {
	WakeWordUpload struct {
		URL string `yaml:"url"`
	} `yaml:"wake_word_upload"`
}

// pluginParams maps a plugin module name to its settings.
type pluginParams map[string]map[string]any

type sttSection struct {
	Module string `yaml:"module"`
	// Fallback is nil to leave the fallback untouched and "" to clear it.
	Fallback *string      `yaml:"fallback_module,omitempty"`
	Plugins  pluginParams `yaml:",inline"`
}

type ttsSection struct {
	Module  string       `yaml:"module"`
	Plugins pluginParams `yaml:",inline"`
}

// patchTree renders p as the nested document the user configuration store
// merges.
func patchTree(p ConfigPatch) (map[string]any, error) {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode config patch: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode config patch: %w", err)
	}
	return tree, nil
}

// BackendPatch returns the server configuration for sel.
func BackendPatch(sel domain.BackendSelection) (BackendConfigPatch, error) {
	switch sel.Type {
	case domain.BackendSelene:
		return serverPatch(seleneAPIURL, seleneUploadURL), nil
	case domain.BackendPersonal:
		if sel.URL == "" {
			return BackendConfigPatch{}, domain.NewDomainError("BackendPatch", domain.ErrInvalidInput, "personal backend requires a url")
		}
		return serverPatch(sel.URL, sel.URL+"/precise/upload"), nil
	case domain.BackendOffline:
		return BackendConfigPatch{Server: serverSection{Disabled: true}}, nil
	}
	return BackendConfigPatch{}, domain.NewDomainError("BackendPatch", domain.ErrInvalidInput, fmt.Sprintf("unknown backend %q", sel.Type))
}

func serverPatch(url, uploadURL string) BackendConfigPatch {
	listener := &listenerSection{}
	listener.WakeWordUpload.URL = uploadURL
	return BackendConfigPatch{
		STT:      &sttSection{Module: "ovos-stt-plugin-selene"},
		Server:   serverSection{URL: url, Version: backendAPIVersion},
		Listener: listener,
	}
}

// STTPatch returns the stt configuration for engine.
func STTPatch(engine domain.STTEngine) (STTConfigPatch, error) {
	switch engine {
	case domain.STTGoogle:
		fallback := "ovos-stt-plugin-vosk"
		return STTConfigPatch{STT: sttSection{
			Module:   "ovos-stt-plugin-server",
			Fallback: &fallback,
			Plugins: pluginParams{
				"ovos-stt-plugin-vosk":   {},
				"ovos-stt-plugin-server": {"url": serverSTTURL},
			},
		}}, nil
	case domain.STTVosk:
		// No fallback so vosk is not loaded twice.
		none := ""
		return STTConfigPatch{STT: sttSection{
			Module:   "ovos-stt-plugin-vosk-streaming",
			Fallback: &none,
			Plugins: pluginParams{
				"ovos-stt-plugin-vosk":           {},
				"ovos-stt-plugin-vosk-streaming": {},
			},
		}}, nil
	}
	return STTConfigPatch{}, domain.NewDomainError("STTPatch", domain.ErrInvalidInput, fmt.Sprintf("unknown stt engine %q", engine))
}

// TTSPatch returns the tts configuration for engine.
func TTSPatch(engine domain.TTSEngine) (TTSConfigPatch, error) {
	var module string
	var params map[string]any
	switch engine {
	case domain.TTSMimic:
		module, params = "ovos-tts-plugin-mimic", map[string]any{"voice": "ap"}
	case domain.TTSMimic2:
		module, params = "ovos-tts-plugin-mimic2", map[string]any{"voice": "kusal"}
	case domain.TTSPico:
		module, params = "ovos-tts-plugin-pico", map[string]any{}
	case domain.TTSLarynx:
		module, params = "neon-tts-plugin-larynx-server", map[string]any{
			"host":    larynxHost,
			"voice":   "mary_ann",
			"vocoder": "hifi_gan/vctk_small",
		}
	default:
		return TTSConfigPatch{}, domain.NewDomainError("TTSPatch", domain.ErrInvalidInput, fmt.Sprintf("unknown tts engine %q", engine))
	}
	return TTSConfigPatch{TTS: ttsSection{Module: module, Plugins: pluginParams{module: params}}}, nil
}
