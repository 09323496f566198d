package surface

import (
	"github.com/charmbracelet/bubbles/list"

	"devicepair/internal/adapter/tui/components/wizard"
	"devicepair/internal/domain"
	"devicepair/internal/usecase/setup"
)

// choice is a selectable list row.
type choice struct {
	title string
	desc  string
	id    string
}

func (c choice) Title() string       { return c.title }
func (c choice) Description() string { return c.desc }
func (c choice) FilterValue() string { return c.title }

var backendChoices = []choice{
	{"Mycroft hosted backend", "Pair with home.mycroft.ai", string(domain.BackendSelene)},
	{"Personal backend", "A backend you run on your own network", string(domain.BackendPersonal)},
	{"No backend", "Run fully offline with a local identity", string(domain.BackendOffline)},
}

var sttChoices = []choice{
	{"Online with Google", "Best accuracy, audio leaves the device", string(domain.STTGoogle)},
	{"Offline with Vosk", "Private, lower accuracy", string(domain.STTVosk)},
}

var ttsChoices = []choice{
	{"Online male", "Mimic 2", string(domain.TTSMimic2)},
	{"Offline male", "Mimic", string(domain.TTSMimic)},
	{"Online female", "Larynx", string(domain.TTSLarynx)},
	{"Offline female", "Pico", string(domain.TTSPico)},
}

// confirmPages map a backend description page to the backend it confirms.
var confirmPages = map[string]domain.BackendType{
	setup.PageBackendMycroft: domain.BackendSelene,
	setup.PageBackendLocal:   domain.BackendPersonal,
	setup.PageNoBackend:      domain.BackendOffline,
}

// returnablePages offer Esc to go back to the backend menu.
var returnablePages = map[string]bool{
	setup.PageBackendMycroft:      true,
	setup.PageBackendLocal:        true,
	setup.PageNoBackend:           true,
	setup.PageBackendPersonalHost: true,
	setup.PageBackendLocalSTT:     true,
	setup.PageBackendLocalTTS:     true,
	setup.PagePairingStart:        true,
	setup.PagePairing:             true,
}

var steps = []wizard.Step{
	{Name: "Backend"},
	{Name: "Speech Recognition"},
	{Name: "Voice"},
	{Name: "Pairing"},
}

// stepOf returns the indicator step for page, or -1 when the page is not
// part of the wizard flow.
func stepOf(page string) int {
	switch page {
	case setup.PageBackendSelect, setup.PageBackendMycroft, setup.PageBackendLocal,
		setup.PageNoBackend, setup.PageBackendPersonalHost:
		return 0
	case setup.PageBackendLocalSTT:
		return 1
	case setup.PageBackendLocalTTS:
		return 2
	case setup.PagePairingStart, setup.PagePairing, setup.PageStatus:
		return 3
	}
	return -1
}

func newChoiceList(choices []choice, width, height int) list.Model {
	items := make([]list.Item, len(choices))
	for i, c := range choices {
		items[i] = c
	}
	l := list.New(items, list.NewDefaultDelegate(), max(width-4, 40), max(height-12, 10))
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return l
}

// discoveredHosts extracts the backends listed on the host page.
func discoveredHosts(data map[string]any) []domain.BackendFoundPayload {
	raw, _ := data["hosts"].([]any)
	hosts := make([]domain.BackendFoundPayload, 0, len(raw))
	for _, h := range raw {
		m, ok := h.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		u, _ := m["url"].(string)
		if u != "" {
			hosts = append(hosts, domain.BackendFoundPayload{Name: name, URL: u})
		}
	}
	return hosts
}
