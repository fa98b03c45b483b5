package commandline

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/meszmate/jabber/internal/ui/theme"
)

// SubmitMsg is sent when a line is entered
type SubmitMsg struct {
	Input string
}

// Completer completes the input line on TAB. Complete returns the new line,
// or false when nothing matched. Reset is called whenever the line is
// edited so the next TAB starts a new search.
type Completer interface {
	Complete(input string) (string, bool)
	Reset()
}

// Model represents the input line
type Model struct {
	input      textinput.Model
	width      int
	styles     *theme.Styles
	completer  Completer
	completing bool
	history    []string
	historyPos int
	draft      string
	secret     bool
}

// New creates a new command line model
func New(styles *theme.Styles, completer Completer) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = styles.CommandPrompt
	ti.CharLimit = 0
	ti.Focus()

	return Model{
		input:      ti,
		styles:     styles,
		completer:  completer,
		historyPos: -1,
	}
}

// SetWidth sets the command line width
func (m Model) SetWidth(width int) Model {
	m.width = width
	m.input.Width = max(width-len(m.input.Prompt)-1, 1)
	return m
}

// SetPrompt sets the prompt, usually the active window
func (m Model) SetPrompt(prompt string) Model {
	m.input.Prompt = prompt
	return m
}

func (m Model) Value() string { return m.input.Value() }

// SetSecret hides the typed text and keeps it out of the history
func (m Model) SetSecret(secret bool) Model {
	m.secret = secret
	if secret {
		m.input.EchoMode = textinput.EchoPassword
	} else {
		m.input.EchoMode = textinput.EchoNormal
	}
	return m
}

// SetValue replaces the line and moves the cursor to its end
func (m Model) SetValue(s string) Model {
	m.input.SetValue(s)
	m.input.CursorEnd()
	return m
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.Type {
	case tea.KeyTab:
		if m.completer == nil {
			return m, nil
		}
		if line, ok := m.completer.Complete(m.input.Value()); ok {
			m.completing = true
			m = m.SetValue(line)
		}
		return m, nil

	case tea.KeyEnter:
		line := m.input.Value()
		m = m.resetCompletion()
		if strings.TrimSpace(line) == "" {
			return m, nil
		}
		if !m.secret {
			m.history = append(m.history, line)
		}
		m.historyPos = -1
		m.draft = ""
		m.input.Reset()
		return m, func() tea.Msg { return SubmitMsg{Input: line} }

	case tea.KeyUp:
		if m.historyPos < len(m.history)-1 {
			if m.historyPos == -1 {
				m.draft = m.input.Value()
			}
			m.historyPos++
			m = m.SetValue(m.history[len(m.history)-1-m.historyPos])
		}
		return m.resetCompletion(), nil

	case tea.KeyDown:
		if m.historyPos > 0 {
			m.historyPos--
			m = m.SetValue(m.history[len(m.history)-1-m.historyPos])
		} else if m.historyPos == 0 {
			m.historyPos = -1
			m = m.SetValue(m.draft)
		}
		return m.resetCompletion(), nil
	}

	m = m.resetCompletion()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) resetCompletion() Model {
	if m.completing && m.completer != nil {
		m.completer.Reset()
	}
	m.completing = false
	return m
}

// View renders the command line
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	return m.input.View()
}
