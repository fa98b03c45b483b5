package ui

import (
	"time"

	"github.com/meszmate/jabber/internal/client"
	"github.com/meszmate/jabber/internal/ui/components/windows"
	"github.com/meszmate/jabber/internal/xmpp/jidutil"
	"github.com/meszmate/jabber/internal/xmpp/presence"
)

// handleEvent renders a client event into the windows
func (m *Model) handleEvent(ev client.Event) {
	switch e := ev.(type) {
	case client.LoginSuccess:
		m.console("Logged in as %s", e.JID)
	case client.LoginFailed:
		m.console("Login failed: %v", e.Err)
	case client.LostConnection:
		if e.Err != nil {
			m.console("Lost connection: %v", e.Err)
		} else {
			m.console("Lost connection")
		}
	case client.Disconnected:
		m.console("Disconnected")

	case client.RosterReceived:
		m.console("Roster received, %d contacts", len(e.Contacts))
	case client.ContactUpdated:
		m.console("Contact %s: subscription %s", e.Contact.JID, e.Contact.Subscription)
	case client.ContactRemoved:
		m.console("Contact %s removed", e.JID)
	case client.ContactOnline:
		m.presenceLine(e.JID, e.JID+" is "+showText(e.Show, ""), e.Status)
	case client.ContactOffline:
		m.presenceLine(e.JID, e.JID+" is offline", e.Status)
	case client.Subscription:
		m.subscriptionLine(e)

	case client.IncomingMessage:
		m.chatLine(e.From, e.Private, windows.Line{Time: e.Time, Kind: windows.LineIncoming, Nick: senderNick(e.From, e.Private), Text: e.Body})
	case client.DelayedMessage:
		m.chatLine(e.From, e.Private, windows.Line{Time: e.Stamp, Kind: windows.LineIncoming, Nick: senderNick(e.From, e.Private), Text: e.Body, Delayed: true})
	case client.MessageSent:
		m.sentLine(e)
	case client.Typing:
		if n, ok := m.windows.Find(e.JID); ok {
			m.windows = m.windows.SetTyping(n, true)
		}
	case client.Gone:
		if n, ok := m.windows.Find(e.JID); ok {
			m.windows = m.windows.SetTyping(n, false)
			m.windowLine(n, windows.LineSystem, e.JID+" has left the conversation")
		}
	case client.ErrorMessage:
		m.errorMessage(e)

	case client.RoomSubject:
		if e.Nick != "" {
			m.roomLine(e.Room, "%s has set the subject to: %s", e.Nick, e.Subject)
		} else {
			m.roomLine(e.Room, "Subject: %s", e.Subject)
		}
	case client.RoomBroadcast:
		m.roomLine(e.Room, "%s", e.Body)
	case client.RoomMessage:
		m.roomMessage(e.Room, windows.Line{Time: e.Time, Nick: e.Nick, Text: e.Body})
	case client.RoomHistory:
		m.roomMessage(e.Room, windows.Line{Time: e.Stamp, Nick: e.Nick, Text: e.Body, Delayed: true})
	case client.RoomRosterComplete:
		occupants, _ := m.client.RoomOccupants(e.Room)
		m.roomLine(e.Room, "Joined %s, %d occupants", e.Room, len(occupants))
	case client.RoomLeft:
		m.roomLine(e.Room, "You have left the room")
		m.console("Left %s", e.Room)
	case client.RoomNickChange:
		m.roomLine(e.Room, "You are now known as %s", e.Nick)
	case client.RoomMemberOnline:
		m.roomLine(e.Room, "%s has joined the room", withShow(e.Nick, e.Show))
	case client.RoomMemberOffline:
		m.roomLine(e.Room, "%s has left the room", e.Nick)
	case client.RoomMemberPresence:
		m.roomLine(e.Room, "%s is %s", e.Nick, showText(e.Show, e.Status))
	case client.RoomMemberNickChange:
		m.roomLine(e.Room, "%s is now known as %s", e.OldNick, e.NewNick)
	}
}

func senderNick(from string, private bool) string {
	if private {
		return jidutil.Resource(from)
	}
	return jidutil.Localpart(from)
}

func showText(show, status string) string {
	if show == "" {
		show = "online"
	}
	if status != "" {
		return show + ", \"" + status + "\""
	}
	return show
}

func (m *Model) windowLine(n int, kind windows.LineKind, text string) {
	m.windows = m.windows.Append(n, windows.Line{Time: time.Now(), Kind: kind, Text: text})
}

// presenceLine reports contact presence in the console and in an open chat
func (m *Model) presenceLine(jid, text, status string) {
	if status != "" {
		text += ", \"" + status + "\""
	}
	m.console("%s", text)
	if n, ok := m.windows.Find(jidutil.Bare(jid)); ok {
		m.windowLine(n, windows.LineSystem, text)
	}
}

func (m *Model) subscriptionLine(e client.Subscription) {
	switch e.Action {
	case presence.Subscribe:
		m.console("%s wants to subscribe to your presence, use /sub allow %s or /sub deny %s", e.JID, e.JID, e.JID)
	case presence.Subscribed:
		m.console("%s accepted your subscription request", e.JID)
	case presence.Unsubscribed:
		m.console("%s denied or cancelled your subscription", e.JID)
	}
}

func (m *Model) chatLine(from string, private bool, line windows.Line) {
	typ := windows.WindowChat
	if private {
		typ = windows.WindowPrivate
	} else {
		from = jidutil.Bare(from)
	}
	n := m.openChat(typ, from, false)
	m.windows = m.windows.SetTyping(n, false)
	m.windows = m.windows.Append(n, line)
}

func (m *Model) sentLine(e client.MessageSent) {
	target := e.To
	if _, ok := m.windows.Find(target); !ok {
		target = jidutil.Bare(target)
	}
	n, ok := m.windows.Find(target)
	if !ok {
		return
	}
	nick := jidutil.Localpart(m.client.JID())
	if w := m.windows.Window(n); w.Type == windows.WindowPrivate {
		nick, _ = m.client.RoomNick(jidutil.Bare(w.JID))
	}
	m.windows = m.windows.Append(n, windows.Line{Time: e.Time, Kind: windows.LineOutgoing, Nick: nick, Text: e.Body})
}

func (m *Model) errorMessage(e client.ErrorMessage) {
	n, ok := m.windows.Find(e.From)
	if !ok {
		n, ok = m.windows.Find(jidutil.Bare(e.From))
	}
	if ok {
		m.windowLine(n, windows.LineError, e.Text)
		return
	}
	m.windows = m.windows.Append(0, windows.Line{Time: time.Now(), Kind: windows.LineError, Text: e.From + ": " + e.Text})
}

func (m *Model) roomMessage(room string, line windows.Line) {
	n, ok := m.windows.Find(room)
	if !ok {
		m.windows, n = m.windows.Open(windows.WindowMUC, room, "")
	}
	line.Kind = windows.LineIncoming
	if own, ok := m.client.RoomNick(room); ok && own == line.Nick {
		line.Kind = windows.LineOutgoing
	}
	m.windows = m.windows.Append(n, line)
}
