// Package ui is the terminal shell around the client: numbered windows, an
// input line and slash commands.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/meszmate/jabber/internal/app"
	"github.com/meszmate/jabber/internal/client"
	"github.com/meszmate/jabber/internal/command"
	"github.com/meszmate/jabber/internal/ui/components/commandline"
	"github.com/meszmate/jabber/internal/ui/components/statusbar"
	"github.com/meszmate/jabber/internal/ui/components/windows"
	"github.com/meszmate/jabber/internal/ui/keybindings"
	"github.com/meszmate/jabber/internal/ui/theme"
)

const tickInterval = 50 * time.Millisecond

type tickMsg time.Time

// Model is the root bubbletea model
type Model struct {
	app      *app.App
	client   *client.Client
	commands *command.Registry
	keys     *keybindings.Manager
	styles   *theme.Styles

	windows   windows.Model
	statusbar statusbar.Model
	input     commandline.Model
	viewport  viewport.Model

	width    int
	height   int
	quitting bool

	// JID waiting for a password typed at the prompt
	loginJID string
}

// NewModel creates the root model and subscribes it to client events
func NewModel(a *app.App, styles *theme.Styles) *Model {
	m := &Model{
		app:       a,
		client:    a.Client(),
		commands:  command.NewRegistry(),
		keys:      keybindings.NewManager(),
		styles:    styles,
		windows:   windows.New(),
		statusbar: statusbar.New(styles),
		viewport:  viewport.New(0, 0),
	}
	m.input = commandline.New(styles, &completer{m: m})
	m.registerCommands()
	if err := m.keys.Apply(a.Config().UI.Keys); err != nil {
		m.errorf("%v", err)
	}
	a.Bus().SubscribeAll(m.handleEvent)
	return m
}

func (m *Model) handleAction(action keybindings.Action) tea.Cmd {
	if n, ok := action.WindowNumber(); ok {
		m.windows = m.windows.GoTo(n)
		m.refresh()
		return nil
	}

	switch action {
	case keybindings.ActionQuit:
		m.quit()
		return tea.Quit
	case keybindings.ActionNextWindow:
		m.windows = m.windows.Next()
	case keybindings.ActionPrevWindow:
		m.windows = m.windows.Prev()
	case keybindings.ActionCloseWindow:
		if err := m.cmdClose(nil); err != nil {
			m.errorf("%v", err)
		}
	case keybindings.ActionPageUp:
		m.viewport.ViewUp()
	case keybindings.ActionPageDown:
		m.viewport.ViewDown()
	}
	m.refresh()
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the event loop
func (m *Model) Init() tea.Cmd {
	m.refresh()
	return tick()
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.client.ProcessEvents()
		m.refresh()
		if m.quitting {
			return m, tea.Quit
		}
		return m, tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-2, 1)
		m.statusbar = m.statusbar.SetWidth(msg.Width)
		m.input = m.input.SetWidth(msg.Width)
		m.refresh()
		return m, nil

	case commandline.SubmitMsg:
		m.submit(msg.Input)
		m.refresh()
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		if action := m.keys.HandleKey(msg); action != keybindings.ActionNone {
			return m, m.handleAction(action)
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			m.typing()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// typing reports composing to the peer of the active chat window
func (m *Model) typing() {
	w := m.windows.Active()
	if w.Type != windows.WindowChat && w.Type != windows.WindowPrivate {
		return
	}
	if m.loginJID != "" || strings.HasPrefix(m.input.Value(), "/") {
		return
	}
	// not being connected is reported when the message is sent
	_ = m.client.Typing(w.JID)
}

// submit handles an entered line: a password, a command or a message
func (m *Model) submit(line string) {
	if m.loginJID != "" {
		jid := m.loginJID
		m.loginJID = ""
		m.input = m.input.SetSecret(false)
		m.connectJID(jid, line)
		return
	}

	if strings.HasPrefix(line, "/") {
		if err := m.commands.Execute(line); err != nil {
			m.errorf("%v", err)
		}
		return
	}

	w := m.windows.Active()
	var err error
	switch w.Type {
	case windows.WindowChat, windows.WindowPrivate:
		err = m.client.Send(line, w.JID)
	case windows.WindowMUC:
		err = m.client.SendGroupchat(line, w.JID)
	default:
		err = fmt.Errorf("not in a chat window, try /help")
	}
	if err != nil {
		m.errorf("%v", err)
	}
}

func (m *Model) quit() {
	m.quitting = true
	m.app.Close()
}

// console writes a system line to the console window
func (m *Model) console(format string, args ...interface{}) {
	m.windows = m.windows.Append(0, windows.Line{
		Time: time.Now(),
		Kind: windows.LineSystem,
		Text: fmt.Sprintf(format, args...),
	})
}

// errorf writes an error to the active window
func (m *Model) errorf(format string, args ...interface{}) {
	m.windows = m.windows.Append(m.windows.ActiveNum(), windows.Line{
		Time: time.Now(),
		Kind: windows.LineError,
		Text: fmt.Sprintf(format, args...),
	})
}

// refresh copies client and window state into the components
func (m *Model) refresh() {
	infos := make([]statusbar.WindowInfo, 0, m.windows.Count())
	for i, w := range m.windows.Windows() {
		infos = append(infos, statusbar.WindowInfo{
			Num:    i,
			Title:  w.Title,
			Active: i == m.windows.ActiveNum(),
			Unread: w.Unread,
		})
	}

	active := m.windows.Active()
	extra := ""
	if active.Typing {
		extra = m.styles.ChatTyping.Render(active.Title + " is typing")
	}

	m.statusbar = m.statusbar.
		SetAccount(m.app.CurrentAccount()).
		SetConnection(m.client.Status().String(), m.client.Presence().String(), m.client.Reconnecting()).
		SetWindows(infos).
		SetExtraInfo(extra)

	prompt := "> "
	if m.loginJID != "" {
		prompt = "password: "
	} else if active.Type != windows.WindowConsole {
		prompt = active.Title + "> "
	}
	m.input = m.input.SetPrompt(prompt)

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.render(active))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) render(w windows.Window) string {
	cfg := m.app.Config().UI
	var b strings.Builder
	for _, line := range w.Lines {
		if cfg.ShowTimestamps && !line.Time.IsZero() {
			b.WriteString(m.styles.ChatTimestamp.Render(line.Time.Format(cfg.TimeFormat)))
			b.WriteByte(' ')
		}
		switch line.Kind {
		case windows.LineSystem:
			b.WriteString(m.styles.ChatSystem.Render("-!- " + line.Text))
		case windows.LineError:
			b.WriteString(m.styles.ChatError.Render("-!- " + line.Text))
		case windows.LineOutgoing:
			b.WriteString(m.styles.ChatMyNick.Render(line.Nick + ":"))
			b.WriteString(" " + line.Text)
		default:
			b.WriteString(m.styles.ChatNick.Render(line.Nick + ":"))
			b.WriteString(" " + line.Text)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// View renders the UI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "starting..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.statusbar.View(),
		m.input.View(),
	)
}
