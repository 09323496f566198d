package setup

import (
	"context"
	"strings"
	"time"

	"devicepair/internal/domain"
)

var (
	sttOptions = []string{"online with google", "offline with vosk"}
	ttsOptions = []string{"online male", "offline male", "offline female", "online female"}
)

// runVoice repeats attempt until it reports that it emitted a command, the
// step is cancelled or the attempt budget is spent. Cancellation is checked
// before every attempt and every pause, so a cancelled step never prompts
// again.
func (w *Wizard) runVoice(ctx context.Context, step string, pause time.Duration, attempt func(ctx context.Context) (bool, error)) {
	for i := 0; i < w.cfg.VoiceMaxAttempts; i++ {
		if ctx.Err() != nil {
			return
		}
		done, err := attempt(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.Warn("voice prompt failed", "step", step, "error", err)
		}
		if done {
			return
		}
		if err := w.sleep(ctx, pause); err != nil {
			return
		}
	}

	w.logger.Warn("no usable answer, waiting for input", "step", step, "error", domain.ErrRecognitionUnmatched)
	w.mu.Lock()
	w.gaveUp = true
	w.mu.Unlock()
}

// emit publishes a wizard command unless the step was cancelled.
func (w *Wizard) emit(ctx context.Context, t domain.EventType, payload any) bool {
	if ctx.Err() != nil {
		return false
	}
	w.publish(ctx, t, payload)
	return true
}

func (w *Wizard) backendVoiceAttempt(ctx context.Context) (bool, error) {
	answer, err := w.voice.Ask(ctx, "choose_backend", nil)
	if err != nil {
		return false, err
	}
	if answer == "" {
		return false, nil
	}
	w.logger.Debug("backend answer", "answer", answer)
	sel, ok := parseBackendAnswer(answer)
	if !ok {
		w.say(ctx, "no_understand_backend", nil)
		return false, nil
	}
	return w.emit(ctx, domain.EventBackendSelected, domain.BackendPayload{Backend: sel}), nil
}

func (w *Wizard) confirmBackendAttempt(ctx context.Context, sel domain.BackendType) (bool, error) {
	name := "offline"
	dialog := "selected_no_backend"
	switch sel {
	case domain.BackendSelene:
		name, dialog = "mycroft", "selected_mycroft_backend"
	case domain.BackendPersonal:
		name = "personal"
	}
	w.say(ctx, dialog, nil)

	answer, err := w.voice.Ask(ctx, "confirm_backend", map[string]string{"backend": name})
	if err != nil {
		return false, err
	}
	switch parseYesNo(answer) {
	case "yes":
		return w.emit(ctx, domain.EventBackendConfirmed, domain.BackendPayload{Backend: sel}), nil
	case "no":
		return w.emit(ctx, domain.EventBackendReturnToMenu, nil), nil
	}
	return false, nil
}

func (w *Wizard) sttVoiceAttempt(ctx context.Context) (bool, error) {
	w.say(ctx, "select_mycroft_stt", nil)
	answer, err := w.askSelection(ctx, sttOptions)
	if err != nil {
		return false, err
	}
	engine, ok := domain.ParseSTTEngine(answer)
	if !ok || !w.confirm(ctx, "confirm_stt", map[string]string{"stt": answer}) {
		w.say(ctx, "choice-failed", nil)
		return false, nil
	}
	return w.emit(ctx, domain.EventSTTConfirmed, domain.EnginePayload{Engine: string(engine)}), nil
}

func (w *Wizard) ttsVoiceAttempt(ctx context.Context) (bool, error) {
	w.say(ctx, "select_mycroft_tts", nil)
	answer, err := w.askSelection(ctx, ttsOptions)
	if err != nil {
		return false, err
	}
	engine, ok := domain.ParseTTSEngine(answer)
	if !ok || !w.confirm(ctx, "confirm_tts", map[string]string{"tts": answer}) {
		w.say(ctx, "choice-failed", nil)
		return false, nil
	}
	return w.emit(ctx, domain.EventTTSConfirmed, domain.EnginePayload{Engine: string(engine)}), nil
}

// askSelection reads the options out and returns the one the answer
// matches best, or "" when nothing matches.
func (w *Wizard) askSelection(ctx context.Context, options []string) (string, error) {
	answer, err := w.voice.Ask(ctx, "select_option", map[string]string{"options": strings.Join(options, ", ")})
	if err != nil {
		return "", err
	}
	return matchOption(answer, options), nil
}

func (w *Wizard) confirm(ctx context.Context, dialog string, data map[string]string) bool {
	answer, err := w.voice.Ask(ctx, dialog, data)
	if err != nil {
		return false
	}
	return parseYesNo(answer) == "yes"
}

// matchOption picks the option sharing the most words with answer. A bare
// option number ("1", "2") also selects.
func matchOption(answer string, options []string) string {
	words := strings.Fields(strings.ToLower(answer))
	if len(words) == 0 {
		return ""
	}
	if len(words) == 1 {
		if n := int(words[0][0] - '0'); len(words[0]) == 1 && n >= 1 && n <= len(options) {
			return options[n-1]
		}
	}

	best, bestScore := "", 0
	tied := false
	for _, opt := range options {
		score := 0
		for _, ow := range strings.Fields(opt) {
			for _, aw := range words {
				if aw == ow {
					score++
					break
				}
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = opt, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return best
}

// parseBackendAnswer maps a spoken backend choice. "local" selects the
// offline setup since a personal backend needs a typed address.
func parseBackendAnswer(answer string) (domain.BackendType, bool) {
	a := strings.ToLower(answer)
	switch {
	case strings.Contains(a, "offline"), strings.Contains(a, "no backend"), strings.Contains(a, "local"):
		return domain.BackendOffline, true
	case strings.Contains(a, "selene"), strings.Contains(a, "mycroft"):
		return domain.BackendSelene, true
	}
	return "", false
}

func parseYesNo(answer string) string {
	for _, word := range strings.Fields(strings.ToLower(answer)) {
		switch strings.Trim(word, ".,!?") {
		case "yes", "yeah", "yep", "sure", "correct", "confirm", "ok", "okay":
			return "yes"
		case "no", "nope", "nah", "cancel", "back":
			return "no"
		}
	}
	return ""
}
