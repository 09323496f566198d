package setup

import (
	"context"
	"errors"
	"strings"

	"devicepair/internal/domain"
	"devicepair/internal/usecase/pairing"
)

const seleneAPIEndpoint = "https://api.mycroft.ai"

func (w *Wizard) onNotPaired(ctx context.Context, ev domain.Event) {
	quiet := true
	var p domain.QuietPayload
	if err := ev.Decode(&p); err == nil {
		quiet = p.Quiet
	}

	w.flow.Lock()
	defer w.flow.Unlock()

	// The first ready signal after this point releases the setup screen.
	w.mu.Lock()
	if w.readyUnsub == nil && !w.closed {
		w.readyUnsub = w.bus.Once(domain.EventSystemReady, w.onSystemReady)
	}
	w.mu.Unlock()

	if !quiet {
		w.say(ctx, "pairing.not.paired", nil)
	}
	w.handlePairing(ctx, false)
}

func (w *Wizard) onSystemReady(ctx context.Context, _ domain.Event) {
	w.mu.Lock()
	w.ready = true
	w.readyUnsub = nil
	state := w.state
	w.mu.Unlock()

	switch state {
	case domain.StateLoading, domain.StateFirstBoot, domain.StateInactive:
		w.display.Release(ctx)
		w.setState(domain.StateInactive)
	default:
		w.logger.Debug("system ready during setup, keeping wizard open", "state", string(state))
	}
}

func (w *Wizard) onStateQuery(ctx context.Context, ev domain.Event) {
	w.bus.Publish(ctx, domain.NewEvent(domain.EventSetupState, ev.SessionID, domain.SetupStatePayload{State: w.State()}))
}

func (w *Wizard) onWifiCompleted(ctx context.Context, _ domain.Event) {
	w.flow.Lock()
	defer w.flow.Unlock()

	w.show(ctx, PageLoadingScreen, nil)
	if w.Settings().SelectedBackend == "" || !w.isPaired(ctx) {
		w.setState(domain.StateSelectingBackend)
		w.publish(ctx, domain.EventDeviceNotPaired, domain.QuietPayload{Quiet: false})
		return
	}
	w.setState(domain.StateInactive)
}

func (w *Wizard) onWifiSkipped(ctx context.Context, _ domain.Event) {
	w.flow.Lock()
	defer w.flow.Unlock()

	w.logger.Info("offline mode selected, setup resumes on restart")
	w.show(ctx, PageOfflineMode, nil)
	w.setState(domain.StateInactive)
}

// backendMenu is the backend selection step.
func (w *Wizard) backendMenu(ctx context.Context) {
	w.mu.Lock()
	w.awaitHost = false
	w.mu.Unlock()

	w.enterStep(ctx, domain.StateSelectingBackend, PageBackendSelect, nil, func(ctx context.Context) {
		w.say(ctx, "backend_intro", nil)
		if w.cfg.Mode.UsesDisplay() {
			w.say(ctx, "select_option_gui", nil)
		}
		if w.cfg.Mode.UsesVoiceInput() {
			w.say(ctx, "select_backend", nil)
			w.say(ctx, "backend", nil)
			w.runVoice(ctx, "backend", w.cfg.VoiceRetryPause, w.backendVoiceAttempt)
		}
	}, w.backendMenu)
}

func (w *Wizard) onBackendSelected(ctx context.Context, ev domain.Event) {
	var p domain.BackendPayload
	if err := ev.Decode(&p); err != nil || !p.Backend.Valid() {
		w.logger.Warn("ignoring backend selection", "backend", string(p.Backend), "error", err)
		return
	}

	w.flow.Lock()
	defer w.flow.Unlock()
	if !w.inState(domain.StateSelectingBackend) {
		return
	}
	w.backendConfirmation(ctx, p.Backend)
}

// backendConfirmation asks the user to confirm sel before it is applied.
func (w *Wizard) backendConfirmation(ctx context.Context, sel domain.BackendType) {
	var page, intro, guiHint string
	switch sel {
	case domain.BackendSelene:
		page, intro, guiHint = PageBackendMycroft, "selene_intro", "selene_confirm_gui"
	case domain.BackendPersonal:
		page, intro, guiHint = PageBackendLocal, "local_backend_intro", "local_backend_confirm_gui"
	default:
		page, intro, guiHint = PageNoBackend, "no_backend_intro", "no_backend_confirm_gui"
	}
	if !w.cfg.Mode.UsesDisplay() {
		page = ""
	}

	w.enterStep(ctx, "", page, nil, func(ctx context.Context) {
		w.say(ctx, intro, nil)
		if w.cfg.Mode.UsesDisplay() {
			w.say(ctx, guiHint, nil)
		}
		if w.cfg.Mode.UsesVoiceInput() {
			w.runVoice(ctx, "backend_confirmation", w.cfg.ConfirmPause, func(ctx context.Context) (bool, error) {
				return w.confirmBackendAttempt(ctx, sel)
			})
		}
	}, func(ctx context.Context) { w.backendConfirmation(ctx, sel) })
}

func (w *Wizard) onBackendConfirmed(ctx context.Context, ev domain.Event) {
	var p domain.BackendPayload
	if err := ev.Decode(&p); err != nil || !p.Backend.Valid() {
		w.logger.Warn("ignoring backend confirmation", "backend", string(p.Backend), "error", err)
		return
	}

	w.flow.Lock()
	defer w.flow.Unlock()
	if !w.inState(domain.StateSelectingBackend) {
		return
	}
	w.stopStep()
	w.stopSpeech(ctx)
	w.logger.Info("backend confirmed", "backend", string(p.Backend))

	switch p.Backend {
	case domain.BackendPersonal:
		w.hostPrompt(ctx)
	case domain.BackendSelene:
		w.selectSelene(ctx)
	default:
		w.selectOffline(ctx)
	}
}

func (w *Wizard) hostPrompt(ctx context.Context) {
	w.mu.Lock()
	w.awaitHost = true
	hosts := append([]domain.BackendFoundPayload(nil), w.hosts...)
	w.mu.Unlock()

	w.show(ctx, PageBackendPersonalHost, hostPageData(hosts))
	w.say(ctx, "local_backend_url_prompt", nil)
}

func hostPageData(hosts []domain.BackendFoundPayload) map[string]any {
	if len(hosts) == 0 {
		return nil
	}
	return map[string]any{"hosts": hosts}
}

func (w *Wizard) selectSelene(ctx context.Context) {
	w.updateSettings(ctx, func(s *domain.WizardSettings) {
		s.PairingURL = domain.SeleneHost
		s.SelectedBackend = domain.BackendSelene
	})
	w.pairing.SetAPIURL(seleneAPIEndpoint)
	if err := w.manager.ApplyBackend(ctx, domain.BackendSelection{Type: domain.BackendSelene}); err != nil {
		w.logger.Error("could not apply backend configuration", "backend", "selene", "error", err)
	}
	w.setState(domain.StatePairing)
	w.kickoffPairing()
}

func (w *Wizard) selectOffline(ctx context.Context) {
	w.updateSettings(ctx, func(s *domain.WizardSettings) {
		s.PairingURL = ""
		s.SelectedBackend = domain.BackendOffline
	})
	if err := w.manager.ApplyBackend(ctx, domain.BackendSelection{Type: domain.BackendOffline}); err != nil {
		w.logger.Error("could not apply backend configuration", "backend", "offline", "error", err)
	}
	w.sttMenu(ctx)
}

func (w *Wizard) onHostAddress(ctx context.Context, ev domain.Event) {
	var p domain.HostAddressPayload
	if err := ev.Decode(&p); err != nil {
		w.logger.Warn("ignoring host address", "error", err)
		return
	}
	host := strings.TrimSpace(p.URL)
	if host == "" {
		w.logger.Warn("ignoring empty host address")
		return
	}

	w.flow.Lock()
	defer w.flow.Unlock()
	w.mu.Lock()
	awaiting := w.awaitHost && w.state == domain.StateSelectingBackend
	w.mu.Unlock()
	if !awaiting {
		w.logger.Debug("host address outside the host prompt", "state", string(w.State()))
		return
	}

	w.updateSettings(ctx, func(s *domain.WizardSettings) {
		s.PairingURL = host
		s.SelectedBackend = domain.BackendPersonal
	})
	w.pairing.SetAPIURL(host)
	if err := w.manager.ApplyBackend(ctx, domain.BackendSelection{Type: domain.BackendPersonal, URL: host}); err != nil {
		w.logger.Error("could not apply backend configuration", "backend", "personal", "error", err)
	}
	w.setState(domain.StatePairing)
	w.kickoffPairing()
}

func (w *Wizard) onBackendFound(ctx context.Context, ev domain.Event) {
	var p domain.BackendFoundPayload
	if err := ev.Decode(&p); err != nil || p.URL == "" {
		return
	}
	w.mu.Lock()
	for _, h := range w.hosts {
		if h.URL == p.URL {
			w.mu.Unlock()
			return
		}
	}
	w.hosts = append(w.hosts, p)
	hosts := append([]domain.BackendFoundPayload(nil), w.hosts...)
	refresh := w.awaitHost && w.state == domain.StateSelectingBackend
	w.mu.Unlock()

	w.logger.Info("personal backend discovered", "name", p.Name, "url", p.URL)
	if refresh {
		w.show(ctx, PageBackendPersonalHost, hostPageData(hosts))
	}
}

// onReturn goes back one step.
func (w *Wizard) onReturn(ctx context.Context, _ domain.Event) {
	w.flow.Lock()
	defer w.flow.Unlock()

	switch w.State() {
	case domain.StateSelectingTTS:
		w.sttMenu(ctx)
	case domain.StateSelectingSTT, domain.StateSelectingBackend:
		w.backendMenu(ctx)
	case domain.StatePairing:
		w.pairing.End(pairing.EndCancelled)
		w.backendMenu(ctx)
	default:
		w.logger.Debug("return outside the wizard", "state", string(w.State()))
	}
}

// sttMenu is the speech-to-text selection step.
func (w *Wizard) sttMenu(ctx context.Context) {
	w.enterStep(ctx, domain.StateSelectingSTT, PageBackendLocalSTT, nil, func(ctx context.Context) {
		w.say(ctx, "stt_intro", nil)
		if w.cfg.Mode.UsesDisplay() {
			w.say(ctx, "select_option_gui", nil)
		}
		if w.cfg.Mode.UsesVoiceInput() {
			w.runVoice(ctx, "stt", w.cfg.VoiceRetryPause, w.sttVoiceAttempt)
		}
	}, w.sttMenu)
}

func (w *Wizard) onSTTConfirmed(ctx context.Context, ev domain.Event) {
	var p domain.EnginePayload
	if err := ev.Decode(&p); err != nil {
		w.logger.Warn("ignoring stt confirmation", "error", err)
		return
	}
	engine, ok := domain.ParseSTTEngine(p.Engine)
	if !ok {
		w.logger.Warn("ignoring unknown stt engine", "engine", p.Engine)
		return
	}

	w.flow.Lock()
	defer w.flow.Unlock()
	if !w.inState(domain.StateSelectingSTT) {
		return
	}
	w.updateSettings(ctx, func(s *domain.WizardSettings) { s.SelectedSTT = engine })
	if err := w.manager.ApplySTT(ctx, engine); err != nil {
		w.logger.Error("could not apply stt configuration", "engine", string(engine), "error", err)
	}
	w.ttsMenu(ctx)
}

// ttsMenu is the text-to-speech selection step.
func (w *Wizard) ttsMenu(ctx context.Context) {
	w.enterStep(ctx, domain.StateSelectingTTS, PageBackendLocalTTS, nil, func(ctx context.Context) {
		w.say(ctx, "tts_intro", nil)
		if w.cfg.Mode.UsesDisplay() {
			w.say(ctx, "select_option_gui", nil)
		}
		if w.cfg.Mode.UsesVoiceInput() {
			w.runVoice(ctx, "tts", w.cfg.VoiceRetryPause, w.ttsVoiceAttempt)
		}
	}, w.ttsMenu)
}

func (w *Wizard) onTTSConfirmed(ctx context.Context, ev domain.Event) {
	var p domain.EnginePayload
	if err := ev.Decode(&p); err != nil {
		w.logger.Warn("ignoring tts confirmation", "error", err)
		return
	}
	engine, ok := domain.ParseTTSEngine(p.Engine)
	if !ok {
		w.logger.Warn("ignoring unknown tts engine", "engine", p.Engine)
		return
	}

	w.flow.Lock()
	defer w.flow.Unlock()
	if !w.inState(domain.StateSelectingTTS) {
		return
	}
	w.updateSettings(ctx, func(s *domain.WizardSettings) { s.SelectedTTS = engine })
	if err := w.manager.ApplyTTS(ctx, engine); err != nil {
		w.logger.Error("could not apply tts configuration", "engine", string(engine), "error", err)
	}
	w.stopStep()
	w.stopSpeech(ctx)
	w.show(ctx, PageLoadingSkills, nil)
	w.setState(domain.StateInactive)
}

func (w *Wizard) inState(want domain.SetupState) bool {
	got := w.State()
	if got != want {
		w.logger.Debug("command ignored in this state", "state", string(got), "want", string(want))
		return false
	}
	return true
}

// kickoffPairing starts a pairing cycle in the background. Start blocks
// while the code is issued. Callers hold the flow lock.
func (w *Wizard) kickoffPairing() {
	p := w.pairing
	w.async(func(ctx context.Context) {
		if err := p.Start(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("pairing did not start", "error", err)
		}
	})
}
