// Package theme holds the styles of the terminal setup surface. Colors are
// adaptive so the surface reads on light and dark terminals; lipgloss drops
// them when NO_COLOR is set.
package theme

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#40dbb0"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}

	ColorBorder = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
	ColorBgAlt  = lipgloss.AdaptiveColor{Light: "#f5f5f5", Dark: "#2d2d2d"}
	ColorFgDim  = lipgloss.AdaptiveColor{Light: "#9e9e9e", Dark: "#757575"}
)

// Symbols, switched to ASCII by InitSymbols on terminals without UTF-8.
var (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolBullet  = "•"
	SymbolSpeaker = "♪"
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextAccent  = lipgloss.NewStyle().Foreground(ColorAccent)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
)

var (
	Title = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Padding(0, 0, 1, 0)

	StepActive = lipgloss.NewStyle().
			Foreground(ColorInfo).
			Bold(true)

	ProgressFull = lipgloss.NewStyle().
			Foreground(ColorInfo)

	ProgressEmpty = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StatusBar = lipgloss.NewStyle().
			Foreground(ColorFgDim).
			Background(ColorBgAlt).
			Padding(0, 1)

	StatusKey = lipgloss.NewStyle().
			Foreground(ColorInfo).
			Bold(true)

	InputPrompt = lipgloss.NewStyle().
			Foreground(ColorInfo).
			Bold(true)

	InputPlaceholder = lipgloss.NewStyle().
				Foreground(ColorFgDim)

	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)
)

// PairingCode renders the code in the color the wizard asked for. An empty
// or invalid color falls back to the accent color.
func PairingCode(code, color string) string {
	var fg lipgloss.TerminalColor = ColorAccent
	if len(color) == 7 && color[0] == '#' {
		fg = lipgloss.Color(color)
	}
	return lipgloss.NewStyle().
		Foreground(fg).
		Bold(true).
		Border(lipgloss.DoubleBorder()).
		BorderForeground(fg).
		Padding(1, 4).
		Render(code)
}

// Banner renders a full-width colored status band.
func Banner(text, color string, width int) string {
	var bg lipgloss.TerminalColor = ColorSuccess
	if len(color) == 7 && color[0] == '#' {
		bg = lipgloss.Color(color)
	}
	return lipgloss.NewStyle().
		Background(bg).
		Foreground(lipgloss.Color("#ffffff")).
		Bold(true).
		Align(lipgloss.Center).
		Width(Clamp(width, 20, MaxContentWidth)).
		Padding(1, 0).
		Render(text)
}

// MaxContentWidth caps the width of rendered pages.
const MaxContentWidth = 100

// Clamp returns v clamped to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
