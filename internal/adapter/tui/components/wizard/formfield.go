package wizard

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"devicepair/internal/adapter/tui/theme"
)

// FieldSubmitMsg is sent when Enter is pressed in a field.
type FieldSubmitMsg struct {
	Value string
}

// FormFieldModel is a labelled single line text input.
type FormFieldModel struct {
	Input       textinput.Model
	Label       string
	Description string
	ErrMsg      string
}

// NewTextField creates a focused text field.
func NewTextField(label, placeholder string) FormFieldModel {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()
	ti.Width = 50
	ti.CharLimit = 2048
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder

	return FormFieldModel{Input: ti, Label: label}
}

// SetError shows a validation error below the input.
func (m *FormFieldModel) SetError(msg string) {
	m.ErrMsg = msg
}

// ClearError removes the validation error.
func (m *FormFieldModel) ClearError() {
	m.ErrMsg = ""
}

// Value returns the trimmed input.
func (m FormFieldModel) Value() string {
	return strings.TrimSpace(m.Input.Value())
}

// SetValue replaces the input text.
func (m *FormFieldModel) SetValue(v string) {
	m.Input.SetValue(v)
	m.Input.CursorEnd()
}

// Update handles key events.
func (m FormFieldModel) Update(msg tea.Msg) (FormFieldModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		value := m.Value()
		return m, func() tea.Msg { return FieldSubmitMsg{Value: value} }
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

// View renders the field.
func (m FormFieldModel) View() string {
	parts := []string{theme.Bold.Render(m.Label)}
	if m.Description != "" {
		parts = append(parts, theme.TextMuted.Render(m.Description))
	}
	parts = append(parts, "", m.Input.View())
	if m.ErrMsg != "" {
		parts = append(parts, theme.TextError.Render(theme.SymbolError+" "+m.ErrMsg))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
