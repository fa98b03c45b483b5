package windows

import "time"

// WindowType represents the type of window
type WindowType int

const (
	WindowConsole WindowType = iota
	WindowChat
	WindowMUC
	WindowPrivate
)

// LineKind selects how a line is rendered
type LineKind int

const (
	LineSystem LineKind = iota
	LineIncoming
	LineOutgoing
	LineError
)

// Line is one entry of a window's scrollback
type Line struct {
	Time    time.Time
	Kind    LineKind
	Nick    string
	Text    string
	Delayed bool
}

// Window represents a single window
type Window struct {
	Type   WindowType
	JID    string
	Title  string
	Unread int
	Typing bool
	Lines  []Line
}

const maxLines = 1000

// Model represents the window manager. Window 0 is the console.
type Model struct {
	windows    []Window
	active     int
	maxWindows int
}

// New creates a new window manager
func New() Model {
	return Model{
		windows: []Window{
			{Type: WindowConsole, Title: "Console"},
		},
		maxWindows: 20,
	}
}

// Open returns the window for jid, creating it if needed. A full window
// list returns the console.
func (m Model) Open(typ WindowType, jid, title string) (Model, int) {
	if i, ok := m.Find(jid); ok {
		return m, i
	}
	if len(m.windows) >= m.maxWindows {
		return m, 0
	}
	if title == "" {
		title = jid
	}
	m.windows = append(m.windows, Window{Type: typ, JID: jid, Title: title})
	return m, len(m.windows) - 1
}

// Find returns the number of the window for jid
func (m Model) Find(jid string) (int, bool) {
	for i, w := range m.windows {
		if i > 0 && w.JID == jid {
			return i, true
		}
	}
	return 0, false
}

// Append adds a line to window num, counting it as unread unless the window
// is active
func (m Model) Append(num int, line Line) Model {
	if num < 0 || num >= len(m.windows) {
		return m
	}
	w := &m.windows[num]
	w.Lines = append(w.Lines, line)
	if len(w.Lines) > maxLines {
		w.Lines = w.Lines[len(w.Lines)-maxLines:]
	}
	if num != m.active && line.Kind == LineIncoming {
		w.Unread++
	}
	return m
}

// Preload adds earlier lines to window num without counting them unread
func (m Model) Preload(num int, lines []Line) Model {
	if num < 0 || num >= len(m.windows) || len(lines) == 0 {
		return m
	}
	w := &m.windows[num]
	w.Lines = append(append([]Line(nil), lines...), w.Lines...)
	if len(w.Lines) > maxLines {
		w.Lines = w.Lines[len(w.Lines)-maxLines:]
	}
	return m
}

// SetTyping marks whether the peer of window num is composing
func (m Model) SetTyping(num int, typing bool) Model {
	if num > 0 && num < len(m.windows) {
		m.windows[num].Typing = typing
	}
	return m
}

// CloseActive closes the active window
func (m Model) CloseActive() Model {
	return m.Close(m.active)
}

// Close closes a window by number. The console cannot be closed.
func (m Model) Close(num int) Model {
	if num <= 0 || num >= len(m.windows) {
		return m
	}
	m.windows = append(m.windows[:num:num], m.windows[num+1:]...)
	if m.active >= num {
		m.active--
	}
	return m
}

// Next moves to the next window
func (m Model) Next() Model {
	return m.GoTo((m.active + 1) % len(m.windows))
}

// Prev moves to the previous window
func (m Model) Prev() Model {
	return m.GoTo((m.active + len(m.windows) - 1) % len(m.windows))
}

// GoTo makes window num active and clears its unread count
func (m Model) GoTo(num int) Model {
	if num >= 0 && num < len(m.windows) {
		m.active = num
		m.windows[num].Unread = 0
	}
	return m
}

// Active returns the active window
func (m Model) Active() Window {
	return m.windows[m.active]
}

func (m Model) ActiveNum() int      { return m.active }
func (m Model) Count() int          { return len(m.windows) }
func (m Model) Windows() []Window   { return m.windows }
func (m Model) Window(n int) Window { return m.windows[n] }
