// Package components holds reusable pieces of the terminal setup surface.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"devicepair/internal/adapter/tui/theme"
)

// KeyHint is a keybinding shown in the status bar.
type KeyHint struct {
	Key  string
	Desc string
}

// StatusBarModel renders key hints on the left and the connection and wizard
// state on the right.
type StatusBarModel struct {
	Hints     []KeyHint
	Connected bool
	State     string
	width     int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the bar as a single line.
func (m StatusBarModel) View() string {
	hints := make([]string, 0, len(m.Hints))
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	conn := theme.TextError.Render(theme.SymbolError + " offline")
	if m.Connected {
		conn = theme.TextSuccess.Render(theme.SymbolSuccess + " connected")
	}
	right := conn
	if m.State != "" {
		right = theme.TextMuted.Render(m.State) + "  " + conn
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
