// Package setup drives the interruptible first-run wizard: wifi hand-off,
// backend selection, speech engine selection and the pairing screens.
package setup

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"devicepair/internal/domain"
	"devicepair/internal/infra/metrics"
	"devicepair/internal/usecase/pairing"
)

// Pairing is the part of the pairing coordinator the wizard drives.
type Pairing interface {
	Start(ctx context.Context) error
	Active() bool
	SetAPIURL(url string)
	End(reason pairing.EndReason)
}

// Connectivity reports whether the device has network access.
type Connectivity interface {
	Connected(ctx context.Context) bool
}

// Config tunes the wizard.
type Config struct {
	Mode             domain.PairingMode
	VoiceRetryPause  time.Duration
	VoiceMaxAttempts int
	ConfirmPause     time.Duration
	DisplayLinger    time.Duration
}

// DefaultConfig returns the standard wizard timings in voice mode.
func DefaultConfig() Config {
	return Config{
		Mode:             domain.ModeVoice,
		VoiceRetryPause:  2 * time.Second,
		VoiceMaxAttempts: 5,
		ConfirmPause:     3 * time.Second,
		DisplayLinger:    5 * time.Second,
	}
}

// ResolveMode picks the interaction mode. "auto" selects the graphical mode
// when a display surface is available. Display modes fall back to voice
// without one.
func ResolveMode(configured string, displayAvailable bool) domain.PairingMode {
	switch mode := domain.PairingMode(strings.ToLower(configured)); mode {
	case domain.ModeVoice:
		return mode
	case domain.ModeGUI, domain.ModeHybrid:
		if displayAvailable {
			return mode
		}
		return domain.ModeVoice
	}
	if displayAvailable {
		return domain.ModeGUI
	}
	return domain.ModeVoice
}

// Deps holds the wizard collaborators.
type Deps struct {
	Pairing  Pairing
	Manager  *Manager
	Settings domain.SettingsStore
	Creds    domain.CredentialStore
	Network  Connectivity   // optional, nil = always connected
	Voice    domain.Voice   // required when the mode uses voice input
	Display  domain.Display // optional, nil = pages published on Bus
	Bus      domain.EventBus
	Logger   *slog.Logger
}

// stepTask is the cancellable sub-task owned by the active wizard step.
type stepTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Wizard is the setup state machine. Inbound commands are serialized by the
// flow lock; pairing callbacks never take it.
type Wizard struct {
	flow sync.Mutex

	mu          sync.Mutex
	state       domain.SetupState
	settings    domain.WizardSettings
	step        *stepTask
	resume      func(ctx context.Context)
	gaveUp      bool
	awaitHost   bool
	hosts       []domain.BackendFoundPayload
	ready       bool
	readyUnsub  func()
	closed      bool
	settingsMu  sync.Mutex
	unsubscribe []func()

	cfg      Config
	pairing  Pairing
	manager  *Manager
	store    domain.SettingsStore
	creds    domain.CredentialStore
	network  Connectivity
	voice    domain.Voice
	display  domain.Display
	bus      domain.EventBus
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc
	steps  sync.WaitGroup
	bg     sync.WaitGroup
}

// New creates a wizard in the Loading state.
func New(deps Deps, cfg Config) (*Wizard, error) {
	if deps.Pairing == nil || deps.Manager == nil || deps.Settings == nil || deps.Creds == nil || deps.Bus == nil {
		return nil, domain.NewDomainError("setup.New", domain.ErrInvalidInput, "pairing, manager, settings, credentials and bus are required")
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeVoice
	}
	if cfg.Mode.UsesVoiceInput() && deps.Voice == nil {
		return nil, domain.NewDomainError("setup.New", domain.ErrInvalidInput, "mode "+string(cfg.Mode)+" needs a voice surface")
	}
	if cfg.VoiceMaxAttempts <= 0 {
		cfg.VoiceMaxAttempts = DefaultConfig().VoiceMaxAttempts
	}
	display := deps.Display
	if display == nil {
		display = NewBusDisplay(deps.Bus)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Wizard{
		state:   domain.StateLoading,
		cfg:     cfg,
		pairing: deps.Pairing,
		manager: deps.Manager,
		store:   deps.Settings,
		creds:   deps.Creds,
		network: deps.Network,
		voice:   deps.Voice,
		display: display,
		bus:     deps.Bus,
		logger:  logger,
		sleep:   sleepCtx,
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w, nil
}

// Initialize subscribes to wizard commands and resolves the Loading state
// from connectivity and pairing status.
func (w *Wizard) Initialize(ctx context.Context) error {
	settings, err := w.store.Load(ctx)
	if err != nil {
		return domain.WrapOp("Wizard.Initialize", err)
	}
	w.mu.Lock()
	w.settings = settings
	w.mu.Unlock()

	w.subscribe(domain.EventDeviceNotPaired, w.onNotPaired)
	w.subscribe(domain.EventSetupStateQuery, w.onStateQuery)
	w.subscribe(domain.EventPairingIntent, func(ctx context.Context, _ domain.Event) { w.HandlePairingIntent(ctx) })
	w.subscribe(domain.EventBackendSelected, w.onBackendSelected)
	w.subscribe(domain.EventBackendConfirmed, w.onBackendConfirmed)
	w.subscribe(domain.EventBackendHostAddress, w.onHostAddress)
	w.subscribe(domain.EventBackendReturnToMenu, w.onReturn)
	w.subscribe(domain.EventSTTConfirmed, w.onSTTConfirmed)
	w.subscribe(domain.EventTTSConfirmed, w.onTTSConfirmed)
	w.subscribe(domain.EventBackendFound, w.onBackendFound)

	w.logger.Info("setup wizard starting", "mode", string(w.cfg.Mode))

	switch {
	case w.network != nil && !w.network.Connected(ctx):
		w.setState(domain.StateSelectingWifi)
		w.track(w.bus.Once(domain.EventWifiSetupCompleted, w.onWifiCompleted))
		w.track(w.bus.Once(domain.EventWifiSetupSkipped, w.onWifiSkipped))
	case settings.SelectedBackend == "":
		w.setState(domain.StateFirstBoot)
		w.publish(ctx, domain.EventDeviceNotPaired, domain.QuietPayload{Quiet: true})
	case !w.isPaired(ctx):
		w.setState(domain.StateSelectingBackend)
		w.publish(ctx, domain.EventDeviceNotPaired, domain.QuietPayload{Quiet: true})
	default:
		w.setState(domain.StateInactive)
		w.show(ctx, PageLoadingSkills, nil)
		w.manager.ReportDeviceAttributes(ctx)
	}
	return nil
}

// State returns the current setup state.
func (w *Wizard) State() domain.SetupState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Settings returns a copy of the persisted wizard settings.
func (w *Wizard) Settings() domain.WizardSettings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

// Mode returns the interaction mode.
func (w *Wizard) Mode() domain.PairingMode { return w.cfg.Mode }

// Converse reports whether the wizard captures a free-form utterance. Input
// is captured in every state except Inactive and FirstBoot. A captured
// utterance restarts a voice step that gave up waiting for an answer.
func (w *Wizard) Converse(utterance string) bool {
	w.mu.Lock()
	captures := w.state.CapturesInput()
	resume := w.resume
	if !w.gaveUp {
		resume = nil
	}
	w.gaveUp = false
	w.mu.Unlock()

	if captures && resume != nil {
		w.logger.Debug("resuming voice step", "utterance", utterance)
		w.async(func(ctx context.Context) {
			w.flow.Lock()
			defer w.flow.Unlock()
			resume(ctx)
		})
	}
	return captures
}

// CancelStep stops the sub-task of the active step without changing state.
// A voice loop that is already past its cancellation check finishes its
// current attempt but never re-prompts.
func (w *Wizard) CancelStep() {
	w.stopStep()
}

// Close unsubscribes from the bus, cancels the active step and waits for
// wizard goroutines to return.
func (w *Wizard) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	unsubs := w.unsubscribe
	w.unsubscribe = nil
	if w.readyUnsub != nil {
		unsubs = append(unsubs, w.readyUnsub)
		w.readyUnsub = nil
	}
	w.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	w.cancel()
	w.stopStep()
	w.steps.Wait()
	w.bg.Wait()
}

// HandlePairingIntent is the explicit "pair my device" request.
func (w *Wizard) HandlePairingIntent(ctx context.Context) {
	w.flow.Lock()
	defer w.flow.Unlock()
	w.handlePairing(ctx, true)
}

// handlePairing re-enters the wizard at backend selection unless the device
// is already paired or a pairing cycle is running.
func (w *Wizard) handlePairing(ctx context.Context, intent bool) {
	if w.Settings().SelectedBackend != "" && w.isPaired(ctx) {
		if intent {
			w.say(ctx, "already.paired", nil)
		}
		w.setState(domain.StateInactive)
		w.show(ctx, PageStatus, successStatus())
		return
	}
	if w.pairing.Active() {
		w.logger.Debug("pairing already in progress")
		return
	}
	w.backendMenu(ctx)
}

// isPaired reports whether stored credentials identify the device to its
// backend. The placeholder identity of a personal backend does not count
// until that backend activated the device.
func (w *Wizard) isPaired(ctx context.Context) bool {
	creds, err := w.creds.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCredentialsNotFound) {
			w.logger.Warn("could not read credentials", "error", err)
		}
		return false
	}
	if !creds.Valid() {
		return false
	}
	if creds.AccessToken == dummyAccessToken {
		return w.Settings().SelectedBackend == domain.BackendOffline
	}
	return true
}

// enterStep cancels the previous step task and waits for it, stops speech,
// moves to state and shows page. run, when set, becomes the new step task.
// reenter, when set, is how Converse restarts the step after its voice loop
// gave up.
func (w *Wizard) enterStep(ctx context.Context, state domain.SetupState, page string, data map[string]any, run, reenter func(ctx context.Context)) {
	w.stopStep()
	w.stopSpeech(ctx)
	w.mu.Lock()
	w.gaveUp = false
	w.resume = reenter
	w.mu.Unlock()
	if state != "" {
		w.setState(state)
	}
	if page != "" {
		w.show(ctx, page, data)
	}
	if run == nil {
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	stepCtx, cancel := context.WithCancel(w.ctx)
	t := &stepTask{cancel: cancel, done: make(chan struct{})}
	w.step = t
	w.steps.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.steps.Done()
		defer close(t.done)
		defer cancel()
		run(stepCtx)
		w.mu.Lock()
		if w.step == t {
			w.step = nil
		}
		w.mu.Unlock()
	}()
}

func (w *Wizard) stopStep() {
	w.mu.Lock()
	t := w.step
	w.step = nil
	w.mu.Unlock()
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (w *Wizard) stopSpeech(ctx context.Context) {
	if w.voice != nil {
		w.voice.Stop()
	}
	w.publish(ctx, domain.EventSpeechStop, nil)
}

func (w *Wizard) setState(s domain.SetupState) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	switch s {
	case domain.StateSelectingBackend, domain.StateSelectingSTT, domain.StateSelectingTTS:
	default:
		w.awaitHost = false
		w.resume = nil
		w.gaveUp = false
	}
	w.mu.Unlock()

	if prev == s {
		return
	}
	metrics.SetSetupState(string(s), allStates)
	w.logger.Debug("setup state changed", "from", string(prev), "state", string(s))
	w.publish(context.Background(), domain.EventSetupStateChanged, domain.SetupStatePayload{State: s})
}

var allStates = func() []string {
	out := make([]string, len(domain.SetupStates))
	for i, s := range domain.SetupStates {
		out[i] = string(s)
	}
	return out
}()

func (w *Wizard) updateSettings(ctx context.Context, fn func(*domain.WizardSettings)) {
	w.settingsMu.Lock()
	defer w.settingsMu.Unlock()

	w.mu.Lock()
	fn(&w.settings)
	s := w.settings
	w.mu.Unlock()

	if err := w.store.Save(ctx, s); err != nil {
		w.logger.Error("could not save wizard settings", "error", err)
	}
}

func (w *Wizard) show(ctx context.Context, page string, data map[string]any) {
	w.display.Show(ctx, page, data)
}

// say speaks a dialog when a voice surface is attached. Failures are logged.
func (w *Wizard) say(ctx context.Context, dialog string, data map[string]string) {
	if w.voice == nil {
		return
	}
	if err := w.voice.Speak(ctx, dialog, data); err != nil && ctx.Err() == nil {
		w.logger.Warn("speak failed", "dialog", dialog, "error", err)
	}
}

func (w *Wizard) publish(ctx context.Context, t domain.EventType, payload any) {
	w.bus.Publish(ctx, domain.NewEvent(t, "", payload))
}

func (w *Wizard) subscribe(t domain.EventType, h domain.EventHandler) {
	w.track(w.bus.Subscribe(t, h))
}

func (w *Wizard) track(unsub func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		unsub()
		return
	}
	w.unsubscribe = append(w.unsubscribe, unsub)
}

// async runs fn on a tracked goroutine bound to the wizard lifetime.
func (w *Wizard) async(fn func(ctx context.Context)) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.bg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.bg.Done()
		fn(w.ctx)
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
