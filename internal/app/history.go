package app

import (
	"time"

	"github.com/meszmate/jabber/internal/client"
	"github.com/meszmate/jabber/internal/storage/sqlite"
	"github.com/meszmate/jabber/internal/xmpp/jidutil"
)

// subscribe wires the chat log and the roster cache to client events
func (a *App) subscribe() {
	a.bus.Subscribe(client.EventLoginSuccess, a.onLogin)
	a.bus.Subscribe(client.EventRosterReceived, func(client.Event) { a.cacheRoster() })
	a.bus.Subscribe(client.EventContactUpdated, func(client.Event) { a.cacheRoster() })
	a.bus.Subscribe(client.EventContactRemoved, func(client.Event) { a.cacheRoster() })

	a.bus.Subscribe(client.EventIncomingMessage, func(e client.Event) {
		m := e.(client.IncomingMessage)
		a.logChat(m.From, m.Body, m.Private, m.Time, false, false)
	})
	a.bus.Subscribe(client.EventDelayedMessage, func(e client.Event) {
		m := e.(client.DelayedMessage)
		a.logChat(m.From, m.Body, m.Private, m.Stamp, false, true)
	})
	a.bus.Subscribe(client.EventMessageSent, func(e client.Event) {
		m := e.(client.MessageSent)
		a.logChat(m.To, m.Body, a.isOccupant(m.To), m.Time, true, false)
	})
	a.bus.Subscribe(client.EventRoomMessage, func(e client.Event) {
		m := e.(client.RoomMessage)
		a.logRoom(m.Room, m.Nick, m.Body, m.Time, false)
	})
	a.bus.Subscribe(client.EventRoomHistory, func(e client.Event) {
		m := e.(client.RoomHistory)
		a.logRoom(m.Room, m.Nick, m.Body, m.Stamp, true)
	})
}

func (a *App) onLogin(client.Event) {
	if a.store == nil || a.account == "" {
		return
	}
	session, err := a.store.GetSession(a.account)
	if err != nil {
		a.log.Warn("loading session of %s: %v", a.account, err)
		return
	}
	if session == nil {
		session = &sqlite.Session{Account: a.account, Status: "online"}
	}
	session.LastConnected = a.now()
	if err := a.store.SaveSession(*session); err != nil {
		a.log.Warn("saving session of %s: %v", a.account, err)
	}
}

func (a *App) logsMessages() bool {
	return a.store != nil && a.account != "" && a.cfg.Storage.SaveMessages
}

// isOccupant reports whether jid addresses someone inside a joined room
func (a *App) isOccupant(jid string) bool {
	if jidutil.Resource(jid) == "" {
		return false
	}
	_, ok := a.client.RoomNick(jidutil.Bare(jid))
	return ok
}

func (a *App) logChat(peer, body string, private bool, at time.Time, outgoing, delayed bool) {
	if !a.logsMessages() {
		return
	}
	msg := sqlite.Message{
		ID:        a.newID(),
		Account:   a.account,
		JID:       jidutil.Bare(peer),
		Body:      body,
		Timestamp: at,
		Outgoing:  outgoing,
		Delayed:   delayed,
		Type:      sqlite.TypeChat,
	}
	if private {
		msg.JID = peer
		msg.Nick = jidutil.Resource(peer)
		msg.Type = sqlite.TypePrivate
	}
	a.save(msg)
}

func (a *App) logRoom(room, nick, body string, at time.Time, delayed bool) {
	if !a.logsMessages() {
		return
	}
	a.save(sqlite.Message{
		ID:        a.newID(),
		Account:   a.account,
		JID:       room,
		Nick:      nick,
		Body:      body,
		Timestamp: at,
		Delayed:   delayed,
		Type:      sqlite.TypeGroupchat,
	})
}

func (a *App) save(msg sqlite.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = a.now()
	}
	if err := a.store.SaveMessage(msg); err != nil {
		a.log.Error("saving message with %s: %v", msg.JID, err)
	}
}

func (a *App) cacheRoster() {
	if a.store == nil || a.account == "" {
		return
	}
	contacts := a.client.Contacts()
	entries := make([]sqlite.RosterEntry, 0, len(contacts))
	for _, c := range contacts {
		entries = append(entries, sqlite.RosterEntry{
			JID:          c.JID,
			Name:         c.Name,
			Subscription: string(c.Subscription),
		})
	}
	if err := a.store.SaveRoster(a.account, entries); err != nil {
		a.log.Warn("caching roster: %v", err)
	}
}
