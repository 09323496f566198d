// Package wizard provides the step indicator and input field of the setup
// surface.
package wizard

import (
	"fmt"
	"strings"

	"devicepair/internal/adapter/tui/theme"
)

// Step is one entry of the indicator.
type Step struct {
	Name string
}

// StepIndicatorModel shows "Step 2/4: Speech Recognition" above a progress
// bar.
type StepIndicatorModel struct {
	Steps   []Step
	Current int
	width   int
}

// NewStepIndicator creates a step indicator.
func NewStepIndicator(steps []Step) StepIndicatorModel {
	return StepIndicatorModel{Steps: steps}
}

// SetWidth sets the rendering width.
func (m *StepIndicatorModel) SetWidth(w int) {
	m.width = w
}

// SetCurrent sets the active step. Out of range values are ignored.
func (m *StepIndicatorModel) SetCurrent(i int) {
	if i >= 0 && i < len(m.Steps) {
		m.Current = i
	}
}

// View renders the indicator, or nothing on very narrow terminals.
func (m StepIndicatorModel) View() string {
	if len(m.Steps) == 0 || m.width < 20 {
		return ""
	}

	header := theme.StepActive.Render(
		fmt.Sprintf("Step %d/%d: %s", m.Current+1, len(m.Steps), m.Steps[m.Current].Name),
	)

	barWidth := m.width - 10
	if barWidth < 10 {
		barWidth = 10
	}
	pct := float64(m.Current+1) / float64(len(m.Steps))
	filled := int(pct * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}

	bar := theme.ProgressFull.Render(strings.Repeat("█", filled)) +
		theme.ProgressEmpty.Render(strings.Repeat("░", barWidth-filled))
	return header + "\n" + bar + theme.TextMuted.Render(fmt.Sprintf(" %d%%", int(pct*100)))
}
