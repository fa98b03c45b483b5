package statusbar

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/meszmate/jabber/internal/ui/theme"
)

// WindowInfo represents a window for display in status bar
type WindowInfo struct {
	Num    int
	Title  string
	Active bool
	Unread int
}

// Model represents the status bar component
type Model struct {
	width        int
	account      string
	conn         string
	presence     string
	reconnecting bool
	styles       *theme.Styles
	extraInfo    string
	windows      []WindowInfo
}

// New creates a new status bar model
func New(styles *theme.Styles) Model {
	return Model{styles: styles}
}

// SetWidth sets the status bar width
func (m Model) SetWidth(width int) Model {
	m.width = width
	return m
}

// SetAccount sets the current account
func (m Model) SetAccount(account string) Model {
	m.account = account
	return m
}

// SetConnection sets the connection status and our presence
func (m Model) SetConnection(conn, presence string, reconnecting bool) Model {
	m.conn = conn
	m.presence = presence
	m.reconnecting = reconnecting
	return m
}

// SetExtraInfo sets extra info to display, such as a typing notice
func (m Model) SetExtraInfo(info string) Model {
	m.extraInfo = info
	return m
}

// SetWindows sets the window list for display
func (m Model) SetWindows(windows []WindowInfo) Model {
	m.windows = windows
	return m
}

// View renders the status bar
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	var parts []string
	for _, w := range m.windows {
		if !w.Active && w.Unread == 0 {
			continue
		}
		label := fmt.Sprintf("%d", w.Num)
		if w.Active && w.Num > 0 {
			title := w.Title
			if len(title) > 20 {
				title = title[:20]
			}
			label = fmt.Sprintf("%d:%s", w.Num, title)
		}
		switch {
		case w.Active:
			label = m.styles.StatusWindow.Render(label)
		default:
			label = m.styles.StatusUnread.Render(fmt.Sprintf("%s(%d)", label, w.Unread))
		}
		parts = append(parts, label)
	}
	windowsStr := ""
	if len(parts) > 0 {
		windowsStr = "[" + strings.Join(parts, " ") + "]"
	}

	var connStatus, statusText string
	switch m.conn {
	case "connected":
		connStatus = m.styles.Presence(m.presence).Render("●")
		statusText = " " + m.presence
	case "connecting":
		connStatus = m.styles.PresenceAway.Render("◐")
		statusText = m.styles.PresenceAway.Render(" [connecting...]")
	case "disconnecting":
		connStatus = m.styles.PresenceAway.Render("◑")
		statusText = m.styles.PresenceAway.Render(" [disconnecting...]")
	default:
		connStatus = m.styles.PresenceOffline.Render("○")
		if m.reconnecting {
			statusText = m.styles.PresenceDND.Render(" [reconnecting]")
		}
	}

	account := "not logged in"
	if m.account != "" {
		account = m.account
	}

	left := fmt.Sprintf(" %s %s%s", connStatus, m.styles.StatusAccount.Render(account), statusText)
	right := windowsStr
	if m.extraInfo != "" {
		right += " | " + m.extraInfo
	}
	right += " "

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 0 {
		padding = 0
	}

	result := left + strings.Repeat(" ", padding) + right
	return m.styles.StatusBar.Width(m.width).Render(result)
}
