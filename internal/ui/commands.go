package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meszmate/jabber/internal/app"
	"github.com/meszmate/jabber/internal/client"
	"github.com/meszmate/jabber/internal/command"
	"github.com/meszmate/jabber/internal/storage/sqlite"
	"github.com/meszmate/jabber/internal/ui/components/windows"
	"github.com/meszmate/jabber/internal/xmpp/jidutil"
	"github.com/meszmate/jabber/internal/xmpp/presence"
)

func (m *Model) registerCommands() {
	commands := []command.Command{
		{Name: "/connect", Usage: "/connect [account|jid]", Description: "Log in with an account, or a JID and a password prompt", Max: 1, Handler: m.cmdConnect},
		{Name: "/disconnect", Usage: "/disconnect", Description: "Log out", Handler: m.cmdDisconnect},
		{Name: "/msg", Usage: "/msg jid [message]", Description: "Open a chat window and optionally send a message", Min: 1, Max: 2, Freetext: true, Handler: m.cmdMsg},
		{Name: "/join", Usage: "/join room [nick]", Description: "Join a chat room", Min: 1, Max: 2, Handler: m.cmdJoin},
		{Name: "/leave", Usage: "/leave", Description: "Leave the room of the current window", Handler: m.cmdLeave},
		{Name: "/nick", Usage: "/nick nickname", Description: "Change your nick in the current room", Min: 1, Max: 1, Handler: m.cmdNick},
		{Name: "/status", Usage: "/status online|away|dnd|chat|xa [message]", Description: "Set your presence", Min: 1, Max: 2, Freetext: true, Handler: m.cmdStatus},
		{Name: "/sub", Usage: "/sub request|allow|deny [jid]", Description: "Manage presence subscriptions", Min: 1, Max: 2, Handler: m.cmdSub},
		{Name: "/requests", Usage: "/requests", Description: "List pending subscription requests", Handler: m.cmdRequests},
		{Name: "/who", Usage: "/who", Description: "List room occupants or contacts", Handler: m.cmdWho},
		{Name: "/autoping", Usage: "/autoping seconds", Description: "Set the server ping interval, 0 disables it", Min: 1, Max: 1, Handler: m.cmdAutoping},
		{Name: "/close", Usage: "/close", Description: "Close the current window", Handler: m.cmdClose},
		{Name: "/win", Usage: "/win number", Description: "Switch to a window", Min: 1, Max: 1, Handler: m.cmdWin},
		{Name: "/help", Usage: "/help [command]", Description: "List commands or show one", Max: 1, Handler: m.cmdHelp},
		{Name: "/quit", Usage: "/quit", Description: "Disconnect and exit", Handler: m.cmdQuit},
	}
	for _, cmd := range commands {
		if err := m.commands.Register(cmd); err != nil {
			panic(err)
		}
	}
}

func (m *Model) cmdConnect(args []string) error {
	name := ""
	if len(args) == 1 {
		name = args[0]
	}

	status, err := m.app.Connect(name)
	if errors.Is(err, app.ErrUnknownAccount) && strings.Contains(name, "@") {
		if err := jidutil.Validate(name); err != nil {
			return err
		}
		m.loginJID = name
		m.input = m.input.SetSecret(true)
		return nil
	}
	if err != nil {
		return err
	}
	m.reportConnect(status)
	return nil
}

func (m *Model) connectJID(jid, password string) {
	m.reportConnect(m.app.ConnectJID(jid, password, ""))
}

func (m *Model) reportConnect(status client.ConnStatus) {
	switch status {
	case client.StatusConnecting:
		m.console("Connecting as %s...", m.app.CurrentAccount())
	case client.StatusUndefined:
		m.errorf("Missing JID or password")
	default:
		m.errorf("Already %s", status)
	}
}

func (m *Model) cmdDisconnect([]string) error {
	switch m.client.Status() {
	case client.StatusConnected, client.StatusConnecting:
		m.client.Disconnect()
		return nil
	}
	if m.client.Reconnecting() {
		m.client.Disconnect()
		m.console("Reconnect cancelled")
		return nil
	}
	return client.ErrNotConnected
}

func (m *Model) cmdMsg(args []string) error {
	jid := args[0]
	typ := windows.WindowChat
	if _, ok := m.client.RoomNick(jidutil.Bare(jid)); ok && jidutil.Resource(jid) != "" {
		typ = windows.WindowPrivate
	} else {
		if err := jidutil.Validate(jid); err != nil {
			return err
		}
		jid = jidutil.Bare(jid)
	}

	m.windows = m.windows.GoTo(m.openChat(typ, jid, true))
	if len(args) == 2 {
		return m.client.Send(args[1], jid)
	}
	return nil
}

func (m *Model) cmdJoin(args []string) error {
	room := args[0]
	if err := jidutil.Validate(room); err != nil {
		return err
	}
	room = jidutil.Bare(room)

	nick := ""
	if len(args) == 2 {
		nick = args[1]
	} else {
		nick = jidutil.Localpart(m.client.JID())
	}
	if nick == "" {
		return fmt.Errorf("no nick given")
	}
	if err := m.client.Join(room, nick); err != nil {
		return err
	}

	var n int
	m.windows, n = m.windows.Open(windows.WindowMUC, room, "")
	m.windows = m.windows.GoTo(n)
	m.roomLine(room, "Joining as %s...", nick)
	return nil
}

func (m *Model) activeRoom() (string, error) {
	w := m.windows.Active()
	if w.Type != windows.WindowMUC {
		return "", fmt.Errorf("not in a room window")
	}
	return w.JID, nil
}

func (m *Model) cmdLeave([]string) error {
	room, err := m.activeRoom()
	if err != nil {
		return err
	}
	return m.client.LeaveRoom(room)
}

func (m *Model) cmdNick(args []string) error {
	room, err := m.activeRoom()
	if err != nil {
		return err
	}
	return m.client.ChangeRoomNick(room, args[0])
}

func (m *Model) cmdStatus(args []string) error {
	p, err := presence.ParseType(args[0])
	if err != nil {
		return err
	}
	if p == presence.Offline {
		return fmt.Errorf("use /disconnect to go offline")
	}
	if m.client.Status() != client.StatusConnected {
		return client.ErrNotConnected
	}
	status := ""
	if len(args) == 2 {
		status = args[1]
	}
	if err := m.app.SetStatus(p, status); err != nil {
		return err
	}
	m.console("Status set to %s", p)
	return nil
}

func (m *Model) cmdSub(args []string) error {
	action, err := presence.ParseSubscriptionAction(args[0])
	if err != nil {
		return err
	}
	jid := ""
	if len(args) == 2 {
		jid = args[1]
	} else if w := m.windows.Active(); w.Type == windows.WindowChat {
		jid = w.JID
	}
	if jid == "" {
		return fmt.Errorf("%w, usage: /sub request|allow|deny [jid]", command.ErrUsage)
	}
	if err := jidutil.Validate(jid); err != nil {
		return err
	}
	if err := m.client.Subscription(jid, action); err != nil {
		return err
	}
	m.console("Sent %s to %s", action, jidutil.Bare(jid))
	return nil
}

func (m *Model) cmdRequests([]string) error {
	requests := m.client.SubscriptionRequests()
	if len(requests) == 0 {
		m.console("No pending subscription requests")
		return nil
	}
	m.console("Subscription requests: %s", strings.Join(requests, ", "))
	return nil
}

func (m *Model) cmdWho([]string) error {
	if room, err := m.activeRoom(); err == nil {
		occupants, err := m.client.RoomOccupants(room)
		if err != nil {
			return err
		}
		nicks := make([]string, 0, len(occupants))
		for _, o := range occupants {
			nicks = append(nicks, withShow(o.Nick, o.Show))
		}
		m.roomLine(room, "Occupants: %s", strings.Join(nicks, ", "))
		return nil
	}

	if m.client.Status() != client.StatusConnected {
		return m.cachedContacts()
	}
	contacts := m.client.Contacts()
	if len(contacts) == 0 {
		m.console("No contacts")
		return nil
	}
	for _, c := range contacts {
		line := withShow(c.JID, c.Show)
		if c.Status != "" {
			line += ", \"" + c.Status + "\""
		}
		m.console("%s", line)
	}
	return nil
}

func withShow(name, show string) string {
	if show == "" {
		return name
	}
	return name + " (" + show + ")"
}

func (m *Model) cmdAutoping(args []string) error {
	secs, err := strconv.Atoi(args[0])
	if err != nil || secs < 0 {
		return fmt.Errorf("invalid interval %q", args[0])
	}
	m.client.SetAutoping(secs)
	if secs == 0 {
		m.console("Autoping disabled")
	} else {
		m.console("Autoping every %d seconds", secs)
	}
	return nil
}

// cachedContacts lists the roster saved at the last login
func (m *Model) cachedContacts() error {
	entries, err := m.app.CachedRoster()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return client.ErrNotConnected
	}
	m.console("Contacts at last login:")
	for _, e := range entries {
		m.console("%s (%s)", e.JID, e.Subscription)
	}
	return nil
}

func (m *Model) cmdClose([]string) error {
	w := m.windows.Active()
	switch w.Type {
	case windows.WindowMUC:
		if _, ok := m.client.RoomNick(w.JID); ok {
			if err := m.client.LeaveRoom(w.JID); err != nil {
				return err
			}
		}
	case windows.WindowChat, windows.WindowPrivate:
		if err := m.client.EndChat(w.JID); err != nil {
			m.errorf("%v", err)
		}
	}
	m.windows = m.windows.CloseActive()
	return nil
}

func (m *Model) cmdWin(args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= m.windows.Count() {
		return fmt.Errorf("no window %s", args[0])
	}
	m.windows = m.windows.GoTo(n)
	return nil
}

func (m *Model) cmdHelp(args []string) error {
	if len(args) == 1 {
		name := "/" + strings.TrimPrefix(args[0], "/")
		cmd, ok := m.commands.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: %s", command.ErrUnknownCommand, name)
		}
		m.console("%s: %s", cmd.Usage, cmd.Description)
		return nil
	}
	for _, cmd := range m.commands.Commands() {
		m.console("%-40s %s", cmd.Usage, cmd.Description)
	}
	return nil
}

func (m *Model) cmdQuit([]string) error {
	m.quit()
	return nil
}

// openChat returns the window for jid. A new window opened with history
// set starts with the end of the chat log.
func (m *Model) openChat(typ windows.WindowType, jid string, history bool) int {
	if n, ok := m.windows.Find(jid); ok {
		return n
	}

	var n int
	m.windows, n = m.windows.Open(typ, jid, "")
	if n == 0 || !history {
		return n
	}
	logged, err := m.app.History(jid)
	if err != nil {
		m.errorf("Loading history: %v", err)
		return n
	}
	lines := make([]windows.Line, 0, len(logged))
	for _, msg := range logged {
		lines = append(lines, historyLine(msg, m.client.JID()))
	}
	m.windows = m.windows.Preload(n, lines)
	return n
}

func historyLine(msg sqlite.Message, self string) windows.Line {
	line := windows.Line{
		Time:    msg.Timestamp,
		Kind:    windows.LineIncoming,
		Nick:    jidutil.Localpart(msg.JID),
		Text:    msg.Body,
		Delayed: true,
	}
	if msg.Nick != "" {
		line.Nick = msg.Nick
	}
	if msg.Outgoing {
		line.Kind = windows.LineOutgoing
		line.Nick = "me"
		if local := jidutil.Localpart(self); local != "" {
			line.Nick = local
		}
	}
	return line
}

func (m *Model) roomLine(room, format string, args ...interface{}) {
	n, ok := m.windows.Find(room)
	if !ok {
		return
	}
	m.windows = m.windows.Append(n, windows.Line{
		Time: time.Now(),
		Kind: windows.LineSystem,
		Text: fmt.Sprintf(format, args...),
	})
}
