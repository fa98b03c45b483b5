package keybindings

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Action represents a keybinding action
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionNextWindow
	ActionPrevWindow
	ActionCloseWindow
	ActionPageUp
	ActionPageDown

	// ActionWindow1 and the 19 values after it jump to a window by number
	ActionWindow1
)

const maxWindowAction = 20

var actionNames = map[Action]string{
	ActionNone:        "none",
	ActionQuit:        "quit",
	ActionNextWindow:  "next_window",
	ActionPrevWindow:  "prev_window",
	ActionCloseWindow: "close_window",
	ActionPageUp:      "page_up",
	ActionPageDown:    "page_down",
}

// Window returns the action that jumps to window n, 1 based
func Window(n int) Action {
	if n < 1 || n > maxWindowAction {
		return ActionNone
	}
	return ActionWindow1 + Action(n-1)
}

// WindowNumber reports the window an action jumps to
func (a Action) WindowNumber() (int, bool) {
	if a < ActionWindow1 || a >= ActionWindow1+maxWindowAction {
		return 0, false
	}
	return int(a-ActionWindow1) + 1, true
}

func (a Action) String() string {
	if n, ok := a.WindowNumber(); ok {
		return "window_" + strconv.Itoa(n)
	}
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAction parses an action name as used in the config file
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if n, ok := strings.CutPrefix(name, "window_"); ok {
		num, err := strconv.Atoi(n)
		if err == nil && Window(num) != ActionNone {
			return Window(num), nil
		}
	}
	for action, s := range actionNames {
		if s == name {
			return action, nil
		}
	}
	return ActionNone, fmt.Errorf("unknown action %q", name)
}

// Manager maps keys to actions. Keys without a binding go to the input line.
type Manager struct {
	bindings map[string]Action
}

// NewManager creates a manager with the default bindings
func NewManager() *Manager {
	m := &Manager{}
	m.setupDefaultBindings()
	return m
}

func (m *Manager) setupDefaultBindings() {
	m.bindings = map[string]Action{
		"ctrl+c":    ActionQuit,
		"ctrl+n":    ActionNextWindow,
		"alt+right": ActionNextWindow,
		"ctrl+p":    ActionPrevWindow,
		"alt+left":  ActionPrevWindow,
		"pgup":      ActionPageUp,
		"pgdown":    ActionPageDown,
	}

	// alt+1 to alt+0 for windows 1-10, alt+q to alt+p for 11-20
	for i, r := range "1234567890qwertyuiop" {
		m.bindings["alt+"+string(r)] = Window(i + 1)
	}
}

// Bind adds or updates a key binding
func (m *Manager) Bind(key string, action Action) {
	m.bindings[key] = action
}

// Unbind removes a key binding
func (m *Manager) Unbind(key string) {
	delete(m.bindings, key)
}

// Apply binds every key in keys to the named action. An action of "none"
// unbinds the key.
func (m *Manager) Apply(keys map[string]string) error {
	for key, name := range keys {
		action, err := ParseAction(name)
		if err != nil {
			return fmt.Errorf("key %s: %w", key, err)
		}
		if action == ActionNone {
			m.Unbind(key)
			continue
		}
		m.Bind(key, action)
	}
	return nil
}

// HandleKey returns the action bound to a key
func (m *Manager) HandleKey(msg tea.KeyMsg) Action {
	return m.bindings[keyToString(msg)]
}

func keyToString(msg tea.KeyMsg) string {
	if msg.Alt && msg.Type == tea.KeyRunes {
		return "alt+" + string(msg.Runes)
	}
	return msg.String()
}
