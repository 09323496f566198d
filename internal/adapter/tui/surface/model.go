package surface

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"devicepair/internal/adapter/tui/components"
	"devicepair/internal/adapter/tui/components/wizard"
	"devicepair/internal/adapter/tui/theme"
	"devicepair/internal/adapter/tui/uxerror"
	"devicepair/internal/domain"
	"devicepair/internal/usecase/setup"
)

// Model is the root Bubble Tea model of the surface.
type Model struct {
	gw     Gateway
	events <-chan domain.Event

	page     string
	data     map[string]any
	state    domain.SetupState
	released bool

	list    list.Model
	field   wizard.FormFieldModel
	steps   wizard.StepIndicatorModel
	spinner spinner.Model

	connected bool
	errMsg    string
	width     int
	height    int
}

// New creates the model. events is usually Client.Events().
func New(gw Gateway, events <-chan domain.Event) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	return Model{
		gw:        gw,
		events:    events,
		steps:     wizard.NewStepIndicator(steps),
		spinner:   s,
		connected: true,
	}
}

// Page returns the page currently shown.
func (m Model) Page() string { return m.page }

// Init starts the spinner, the event pump and the initial state fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), fetchState(m.gw))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.steps.SetWidth(m.width - 4)
		if m.list.Items() != nil {
			m.list.SetSize(max(m.width-4, 40), max(m.height-12, 10))
		}
		return m, nil

	case eventMsg:
		m = m.handleEvent(msg.event)
		return m, waitForEvent(m.events)

	case disconnectedMsg:
		m.connected = false
		return m, nil

	case stateMsg:
		if msg.err != nil {
			m.errMsg = uxerror.Humanize(msg.err).Render()
			return m, nil
		}
		m.state = msg.state
		return m, nil

	case commandResultMsg:
		if msg.err != nil {
			m.errMsg = uxerror.Humanize(msg.err).Render()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if returnablePages[m.page] {
				m.errMsg = ""
				return m, sendCommand(m.gw, domain.EventBackendReturnToMenu, nil)
			}
			return m, nil
		}
		if m.page != setup.PageBackendPersonalHost {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "p":
				if m.page == "" || m.state == domain.StateInactive {
					return m, sendCommand(m.gw, domain.EventPairingIntent, nil)
				}
			}
		}
	}

	return m.updatePage(msg)
}

func (m Model) handleEvent(ev domain.Event) Model {
	switch ev.Type {
	case domain.EventGUIPage:
		var p domain.GUIPagePayload
		if err := ev.Decode(&p); err != nil {
			return m
		}
		return m.enterPage(p.Page, p.Data)
	case domain.EventGUIRelease:
		m.released = true
		m.page = ""
		m.data = nil
	case domain.EventSetupStateChanged, domain.EventSetupState:
		var p domain.SetupStatePayload
		if err := ev.Decode(&p); err == nil {
			m.state = p.State
		}
	}
	return m
}

func (m Model) enterPage(page string, data map[string]any) Model {
	m.page, m.data = page, data
	m.released = false
	m.errMsg = ""
	if step := stepOf(page); step >= 0 {
		m.steps.SetCurrent(step)
	}

	switch page {
	case setup.PageBackendSelect:
		m.list = newChoiceList(backendChoices, m.width, m.height)
	case setup.PageBackendLocalSTT:
		m.list = newChoiceList(sttChoices, m.width, m.height)
	case setup.PageBackendLocalTTS:
		m.list = newChoiceList(ttsChoices, m.width, m.height)
	case setup.PageBackendPersonalHost:
		m.field = wizard.NewTextField("Personal backend address:", "http://192.168.1.10:6712")
		if hosts := discoveredHosts(data); len(hosts) > 0 {
			var names []string
			for _, h := range hosts {
				names = append(names, fmt.Sprintf("%s (%s)", h.Name, h.URL))
			}
			m.field.Description = "Found on your network: " + strings.Join(names, ", ")
			m.field.SetValue(hosts[0].URL)
		}
	}
	return m
}

func (m Model) updatePage(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.page {
	case setup.PageBackendSelect:
		return m.updateList(msg, func(id string) tea.Cmd {
			return sendCommand(m.gw, domain.EventBackendSelected, domain.BackendPayload{Backend: domain.BackendType(id)})
		})
	case setup.PageBackendLocalSTT:
		return m.updateList(msg, func(id string) tea.Cmd {
			return sendCommand(m.gw, domain.EventSTTConfirmed, domain.EnginePayload{Engine: id})
		})
	case setup.PageBackendLocalTTS:
		return m.updateList(msg, func(id string) tea.Cmd {
			return sendCommand(m.gw, domain.EventTTSConfirmed, domain.EnginePayload{Engine: id})
		})
	case setup.PageBackendPersonalHost:
		return m.updateHost(msg)
	}

	if backend, ok := confirmPages[m.page]; ok {
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
			return m, sendCommand(m.gw, domain.EventBackendConfirmed, domain.BackendPayload{Backend: backend})
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.Msg, selected func(id string) tea.Cmd) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		if item, ok := m.list.SelectedItem().(choice); ok {
			m.errMsg = ""
			return m, selected(item.id)
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateHost(msg tea.Msg) (tea.Model, tea.Cmd) {
	if submit, ok := msg.(wizard.FieldSubmitMsg); ok {
		if submit.Value == "" {
			m.field.SetError("Enter the address of your backend")
			return m, nil
		}
		m.field.ClearError()
		return m, sendCommand(m.gw, domain.EventBackendHostAddress, domain.HostAddressPayload{URL: submit.Value})
	}
	var cmd tea.Cmd
	m.field, cmd = m.field.Update(msg)
	return m, cmd
}

// View renders the current page.
func (m Model) View() string {
	parts := []string{theme.Title.Render("Device Setup")}
	if stepOf(m.page) >= 0 {
		parts = append(parts, m.steps.View())
	}
	parts = append(parts, "", m.viewPage())
	if m.errMsg != "" {
		parts = append(parts, "", m.errMsg)
	}
	if !m.connected {
		parts = append(parts, "", theme.TextWarning.Render(theme.SymbolWarning+" Lost connection to the setup service"))
	}

	sb := components.NewStatusBar()
	sb.Hints = m.hints()
	sb.Connected = m.connected
	sb.State = string(m.state)
	sb.SetWidth(max(m.width, 40))
	parts = append(parts, "", sb.View())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) viewPage() string {
	switch m.page {
	case "":
		if m.released {
			return theme.TextSuccess.Render(theme.SymbolSuccess + " Setup finished. The device is ready.")
		}
		return theme.TextMuted.Render("Waiting for the setup wizard" + "\n\nPress p to start pairing")
	case setup.PageLoadingScreen:
		return m.spinner.View() + " Starting up"
	case setup.PageLoadingSkills:
		return m.spinner.View() + " Loading skills"
	case setup.PageOfflineMode:
		return theme.TextInfo.Render("Running offline. No backend will be contacted.")
	case setup.PageBackendSelect:
		return lipgloss.JoinVertical(lipgloss.Left, theme.Bold.Render("Choose a backend:"), "", m.list.View())
	case setup.PageBackendMycroft:
		return confirmView("Mycroft hosted backend",
			"Your device is paired with an account on home.mycroft.ai. Speech is processed online.")
	case setup.PageBackendLocal:
		return confirmView("Personal backend",
			"Your device talks to a backend you host. You will enter its address next.")
	case setup.PageNoBackend:
		return confirmView("No backend",
			"Nothing leaves the device. You will pick local speech engines next.")
	case setup.PageBackendPersonalHost:
		return m.field.View()
	case setup.PageBackendLocalSTT:
		return lipgloss.JoinVertical(lipgloss.Left, theme.Bold.Render("Choose speech recognition:"), "", m.list.View())
	case setup.PageBackendLocalTTS:
		return lipgloss.JoinVertical(lipgloss.Left, theme.Bold.Render("Choose a voice:"), "", m.list.View())
	case setup.PagePairingStart:
		return m.spinner.View() + " Requesting a pairing code"
	case setup.PagePairing:
		code, _ := m.data["code"].(string)
		color, _ := m.data["txtcolor"].(string)
		backend, _ := m.data["backendurl"].(string)
		return lipgloss.JoinVertical(lipgloss.Left,
			theme.Bold.Render("Pair this device"),
			"",
			"Go to "+theme.TextInfo.Render(backend)+" and enter:",
			"",
			theme.PairingCode(code, color),
			"",
			m.spinner.View()+theme.TextMuted.Render(" Waiting for activation"),
		)
	case setup.PageStatus:
		label, _ := m.data["label"].(string)
		color, _ := m.data["bgColor"].(string)
		return theme.Banner(label, color, m.width)
	}
	return theme.TextMuted.Render(m.page)
}

func confirmView(title, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		theme.Bold.Render(title),
		"",
		theme.Panel.Render(body),
		"",
		theme.TextInfo.Render("Press Enter to confirm"),
	)
}

func (m Model) hints() []components.KeyHint {
	var hints []components.KeyHint
	switch m.page {
	case setup.PageBackendPersonalHost:
		hints = append(hints, components.KeyHint{Key: "Enter", Desc: "Connect"})
	case setup.PageBackendSelect, setup.PageBackendLocalSTT, setup.PageBackendLocalTTS:
		hints = append(hints, components.KeyHint{Key: "Enter", Desc: "Select"})
	case setup.PageBackendMycroft, setup.PageBackendLocal, setup.PageNoBackend:
		hints = append(hints, components.KeyHint{Key: "Enter", Desc: "Confirm"})
	}
	if returnablePages[m.page] {
		hints = append(hints, components.KeyHint{Key: "Esc", Desc: "Backends"})
	}
	if m.page == "" {
		hints = append(hints, components.KeyHint{Key: "p", Desc: "Pair"})
	}
	return append(hints, components.KeyHint{Key: "Ctrl+C", Desc: "Quit"})
}
