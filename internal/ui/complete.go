package ui

import (
	"strings"

	"github.com/meszmate/jabber/internal/ui/components/windows"
)

// completer completes command names, contact JIDs after commands that take
// one, and room nicks in room windows
type completer struct {
	m *Model
}

var jidCommands = map[string]bool{
	"/msg":     true,
	"/connect": true,
}

func (c *completer) Complete(input string) (string, bool) {
	m := c.m
	fields := strings.Fields(input)
	trailing := strings.HasSuffix(input, " ")

	if strings.HasPrefix(input, "/") {
		switch {
		case len(fields) == 1 && !trailing:
			found := m.commands.Complete(fields[0])
			return found, found != ""
		case len(fields) == 2 && !trailing && jidCommands[fields[0]]:
			return replaceLast(input, m.client.FindContact(fields[1]))
		case len(fields) == 3 && !trailing && fields[0] == "/sub":
			return replaceLast(input, m.client.FindContact(fields[2]))
		}
		return "", false
	}

	w := m.windows.Active()
	if w.Type != windows.WindowMUC || len(fields) == 0 || trailing {
		return "", false
	}
	last := fields[len(fields)-1]
	if len(fields) == 1 {
		// a lone nick is addressed
		last = strings.TrimSuffix(last, ":")
	}
	nick := m.client.CompleteOccupant(w.JID, last)
	if nick == "" {
		return "", false
	}
	if len(fields) == 1 {
		return nick + ":", true
	}
	return replaceLast(input, nick)
}

func (c *completer) Reset() {
	c.m.commands.ResetCompletion()
	c.m.client.ResetContactSearch()
	if w := c.m.windows.Active(); w.Type == windows.WindowMUC {
		c.m.client.ResetOccupantSearch(w.JID)
	}
}

func replaceLast(input, word string) (string, bool) {
	if word == "" {
		return "", false
	}
	i := strings.LastIndex(input, " ")
	return input[:i+1] + word, true
}
