package theme

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
)

// Theme represents a UI color theme
type Theme struct {
	Name   string       `toml:"name"`
	Colors ColorsConfig `toml:"colors"`
}

// ColorsConfig contains the base color palette
type ColorsConfig struct {
	Primary    string `toml:"primary"`
	Foreground string `toml:"foreground"`
	Muted      string `toml:"muted"`
	Error      string `toml:"error"`
	Success    string `toml:"success"`
	StatusFg   string `toml:"status_fg"`
	StatusBg   string `toml:"status_bg"`
	Online     string `toml:"online"`
	Away       string `toml:"away"`
	DND        string `toml:"dnd"`
	Offline    string `toml:"offline"`
	MyNick     string `toml:"my_nick"`
	TheirNick  string `toml:"their_nick"`
}

// Styles contains the compiled lipgloss styles for a theme
type Styles struct {
	StatusBar     lipgloss.Style
	StatusAccount lipgloss.Style
	StatusWindow  lipgloss.Style
	StatusUnread  lipgloss.Style

	PresenceOnline  lipgloss.Style
	PresenceAway    lipgloss.Style
	PresenceDND     lipgloss.Style
	PresenceOffline lipgloss.Style

	ChatTimestamp lipgloss.Style
	ChatMyNick    lipgloss.Style
	ChatNick      lipgloss.Style
	ChatSystem    lipgloss.Style
	ChatError     lipgloss.Style
	ChatTyping    lipgloss.Style

	CommandPrompt     lipgloss.Style
	CommandCompletion lipgloss.Style
}

// Default returns the built-in dark theme
func Default() *Theme {
	return &Theme{
		Name: "default",
		Colors: ColorsConfig{
			Primary:    "#7aa2f7",
			Foreground: "#c0caf5",
			Muted:      "#565f89",
			Error:      "#f7768e",
			Success:    "#9ece6a",
			StatusFg:   "#c0caf5",
			StatusBg:   "#1f2335",
			Online:     "#9ece6a",
			Away:       "#e0af68",
			DND:        "#f7768e",
			Offline:    "#565f89",
			MyNick:     "#7dcfff",
			TheirNick:  "#bb9af7",
		},
	}
}

// Load reads a theme file. Colors it leaves out keep their default.
func Load(path string) (*Theme, error) {
	t := Default()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("theme not found: %w", err)
	}
	if _, err := toml.DecodeFile(path, t); err != nil {
		return nil, fmt.Errorf("failed to parse theme: %w", err)
	}
	return t, nil
}

// Styles compiles the theme
func (t *Theme) Styles() *Styles {
	c := t.Colors
	fg := func(color string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	}

	return &Styles{
		StatusBar:     lipgloss.NewStyle().Foreground(lipgloss.Color(c.StatusFg)).Background(lipgloss.Color(c.StatusBg)),
		StatusAccount: fg(c.Primary).Background(lipgloss.Color(c.StatusBg)).Bold(true),
		StatusWindow:  fg(c.Success).Background(lipgloss.Color(c.StatusBg)).Bold(true),
		StatusUnread:  fg(c.Away).Background(lipgloss.Color(c.StatusBg)),

		PresenceOnline:  fg(c.Online),
		PresenceAway:    fg(c.Away),
		PresenceDND:     fg(c.DND),
		PresenceOffline: fg(c.Offline),

		ChatTimestamp: fg(c.Muted),
		ChatMyNick:    fg(c.MyNick).Bold(true),
		ChatNick:      fg(c.TheirNick).Bold(true),
		ChatSystem:    fg(c.Muted).Italic(true),
		ChatError:     fg(c.Error),
		ChatTyping:    fg(c.Muted).Italic(true),

		CommandPrompt:     fg(c.Primary).Bold(true),
		CommandCompletion: fg(c.Muted),
	}
}

// Presence returns the style for a presence or show value
func (s *Styles) Presence(show string) lipgloss.Style {
	switch show {
	case "online", "chat", "":
		return s.PresenceOnline
	case "away", "xa":
		return s.PresenceAway
	case "dnd":
		return s.PresenceDND
	default:
		return s.PresenceOffline
	}
}
