package setup

import (
	"context"

	"devicepair/internal/domain"
	"devicepair/internal/usecase/pairing"
)

// PairingCallbacks returns the callbacks to install on the pairing
// coordinator. Callbacks that re-enter the wizard flow do so on their own
// goroutine so the coordinator can be stopped from inside a wizard command.
func (w *Wizard) PairingCallbacks() pairing.Callbacks {
	return pairing.Callbacks{
		Start:    w.onPairingStart,
		Code:     w.onPairingCode,
		Reminder: w.announceCode,
		Success:  w.onPairingSuccess,
		Error:    w.onPairingError,
		Restart:  w.onPairingRestart,
		End:      w.onPairingEnd,
	}
}

// SetPairing replaces the pairing coordinator, for runtimes that build the
// wizard first.
func (w *Wizard) SetPairing(p Pairing) {
	w.flow.Lock()
	defer w.flow.Unlock()
	w.pairing = p
}

func (w *Wizard) onPairingStart() {
	ctx := w.ctx
	w.setState(domain.StatePairing)
	w.show(ctx, PagePairingStart, nil)
	if w.Settings().BackendType() == domain.BackendSelene {
		w.say(ctx, "pairing.intro", nil)
	}
}

func (w *Wizard) onPairingCode(code string) {
	settings := w.Settings()
	color := settings.Color
	if color == "" {
		color = defaultCodeColor
	}
	backendURL := settings.PairingURL
	if backendURL == "" {
		backendURL = domain.SeleneHost
	}
	w.show(w.ctx, PagePairing, map[string]any{
		"code":       code,
		"backendurl": backendURL,
		"txtcolor":   color,
	})
	w.announceCode(code)
}

func (w *Wizard) announceCode(code string) {
	w.say(w.ctx, "pairing.code", map[string]string{"code": SpellNATO(code)})
}

func (w *Wizard) onPairingSuccess(_ *domain.DeviceCredentials) {
	ctx := w.ctx
	w.show(ctx, PageStatus, successStatus())

	w.mu.Lock()
	ready := w.ready
	w.mu.Unlock()
	if ready {
		w.say(ctx, "pairing.paired", nil)
	}

	// Let the status page linger.
	if err := w.sleep(ctx, w.cfg.DisplayLinger); err != nil {
		return
	}
	w.show(ctx, PageLoadingSkills, nil)
	w.manager.ReportDeviceAttributes(ctx)
	w.setState(domain.StateInactive)
}

func (w *Wizard) onPairingError(quiet bool) {
	ctx := w.ctx
	if !quiet {
		w.say(ctx, "unexpected.error.restarting", nil)
	}
	w.show(ctx, PageStatus, failureStatus())
	_ = w.sleep(ctx, w.cfg.DisplayLinger)
}

func (w *Wizard) onPairingRestart() {
	w.async(func(ctx context.Context) {
		w.flow.Lock()
		defer w.flow.Unlock()
		w.handlePairing(ctx, false)
	})
}

func (w *Wizard) onPairingEnd(reason pairing.EndReason) {
	ctx := w.ctx
	w.logger.Info("pairing ended", "reason", string(reason))
	if reason != pairing.EndConnectionError {
		w.setState(domain.StateInactive)
		return
	}

	w.say(ctx, "unexpected.error.restarting", nil)
	w.show(ctx, PageStatus, failureStatus())
	w.async(func(ctx context.Context) {
		if err := w.sleep(ctx, w.cfg.DisplayLinger); err != nil {
			return
		}
		w.flow.Lock()
		defer w.flow.Unlock()
		w.backendMenu(ctx)
	})
}
