package client

import (
	"encoding/xml"
	"time"

	"github.com/meszmate/jabber/internal/xmpp/chat"
	"github.com/meszmate/jabber/internal/xmpp/disco"
	"github.com/meszmate/jabber/internal/xmpp/jidutil"
	"github.com/meszmate/jabber/internal/xmpp/presence"
	"github.com/meszmate/jabber/internal/xmpp/roster"
	"github.com/meszmate/jabber/internal/xmpp/stanza"
)

func (c *Client) onConnected() {
	jid := c.transport.JID()
	c.log.Info("logged in as %s", jid)

	c.status = StatusConnected
	c.presence = presence.Online
	c.reconnecting = false
	c.reconnectAt = time.Time{}
	c.chats.Clear()

	var ev LoginSuccess
	ev.JID = jid
	if c.saved != nil {
		ev.AltDomain = c.saved.altDomain
		ev.Account = c.saved.account
	}
	c.notify.Notify(ev)

	c.SetAutoping(int(c.prefs.AutopingInterval() / time.Second))
	if err := c.send(stanza.RosterRequest()); err != nil {
		c.log.Error("requesting roster: %v", err)
	}
}

func (c *Client) onDisconnected(err error) {
	switch c.status {
	case StatusConnected:
		c.log.Warn("lost connection: %v", err)
		c.notify.Notify(LostConnection{Err: err})
		if c.prefs.ReconnectInterval() > 0 {
			c.reconnecting = true
			c.reconnectAt = c.now()
			c.clearSession()
		} else {
			c.freeResources()
		}
	case StatusConnecting:
		if c.reconnecting {
			c.log.Info("reconnect failed: %v", err)
			c.reconnectAt = c.now()
		} else {
			c.log.Warn("login failed: %v", err)
			c.notify.Notify(LoginFailed{Err: err})
			c.freeResources()
		}
	}

	c.status = StatusDisconnected
	c.presence = presence.Offline
}

func (c *Client) handleStanza(el *stanza.Element) {
	switch el.Name.Local {
	case "message":
		c.handleMessage(el)
	case "presence":
		c.handlePresence(el)
	case "iq":
		c.handleIQ(el)
	default:
		c.log.Debug("ignoring <%s/>", el.Name.Local)
	}
}

func (c *Client) handleMessage(el *stanza.Element) {
	switch stanza.MessageKindOf(el) {
	case stanza.ErrorMessage:
		c.handleMessageError(el)
	case stanza.GroupChatMessage:
		c.handleGroupchat(el)
	case stanza.ChatMessage:
		c.handleChat(el)
	default:
		c.log.Error("dropping message from %s with type %q", el.From(), el.Type())
	}
}

func (c *Client) handleMessageError(el *stanza.Element) {
	text := stanza.ErrorText(el)
	if text == "" {
		text = "unknown error"
	}
	c.notify.Notify(ErrorMessage{From: el.From(), Text: text})
}

func (c *Client) handleGroupchat(el *stanza.Element) {
	from := el.From()
	room, nick, err := jidutil.ParseRoomJID(from)
	if err != nil {
		// sent by the room itself
		room = jidutil.Bare(from)
		if subject, ok := stanza.Subject(el); ok {
			c.rooms.SetSubject(room, subject)
			c.notify.Notify(RoomSubject{Room: room, Subject: subject})
			return
		}
		if body, ok := stanza.Body(el); ok {
			c.notify.Notify(RoomBroadcast{Room: room, Body: body})
		}
		return
	}

	if !c.rooms.IsActive(room) {
		c.log.Error("groupchat message from %s, room not joined", from)
		return
	}

	if subject, ok := stanza.Subject(el); ok {
		c.rooms.SetSubject(room, subject)
		c.notify.Notify(RoomSubject{Room: room, Nick: nick, Subject: subject})
		return
	}

	body, ok := stanza.Body(el)
	if !ok {
		return
	}
	if stamp, delayed := stanza.Delay(el); delayed {
		c.notify.Notify(RoomHistory{Room: room, Nick: nick, Body: body, Stamp: stamp})
		return
	}
	c.notify.Notify(RoomMessage{Room: room, Nick: nick, Body: body, Time: c.now()})
}

func (c *Client) handleChat(el *stanza.Element) {
	from := el.From()
	if from == "" {
		c.log.Error("dropping chat message without sender")
		return
	}

	// private messages from room occupants keep the full room/nick JID
	key := jidutil.Bare(from)
	private := c.rooms.IsActive(key) && jidutil.Resource(from) != ""
	if private {
		key = from
	}

	// every inbound chat starts or refreshes the session, history included
	supports := stanza.HasChatState(el)
	if c.chats.Exists(key) {
		c.chats.SetRecipientSupports(key, supports)
	} else {
		c.chats.Start(key, supports)
	}

	stamp, delayed := stanza.Delay(el)
	if supports && !delayed {
		state, _ := stanza.ChatStateOf(el)
		switch chat.State(state) {
		case chat.StateComposing:
			if c.prefs.TypingNotifications() {
				c.notify.Notify(Typing{JID: key})
			}
		case chat.StateGone:
			c.notify.Notify(Gone{JID: key})
		}
	}

	body, ok := stanza.Body(el)
	if !ok || body == "" {
		return
	}
	if delayed {
		c.notify.Notify(DelayedMessage{From: key, Body: body, Private: private, Stamp: stamp})
		return
	}
	c.notify.Notify(IncomingMessage{From: key, Body: body, Private: private, Time: c.now()})
}

func (c *Client) handlePresence(el *stanza.Element) {
	kind := stanza.PresenceKindOf(el)
	if kind == stanza.ErrorPresence {
		c.handlePresenceError(el)
		return
	}
	if c.rooms.IsActive(jidutil.Bare(el.From())) {
		c.handleRoomPresence(el, kind)
		return
	}
	c.handleContactPresence(el, kind)
}

func (c *Client) handlePresenceError(el *stanza.Element) {
	from := el.From()
	text := stanza.ErrorText(el)
	if text == "" {
		text = "unknown error"
	}

	room := jidutil.Bare(from)
	if c.rooms.IsActive(room) {
		switch {
		case c.rooms.IsPendingNickChange(room):
			c.rooms.ClearPendingNickChange(room)
		case !c.rooms.RosterReceived(room):
			// the join itself was refused
			c.rooms.Leave(room)
			c.notify.Notify(RoomLeft{Room: room})
		}
	}
	c.notify.Notify(ErrorMessage{From: from, Text: text})
}

func (c *Client) handleRoomPresence(el *stanza.Element, kind stanza.PresenceKind) {
	room, nick, err := jidutil.ParseRoomJID(el.From())
	if err != nil {
		c.log.Debug("room presence without nick from %s", el.From())
		return
	}

	show, status := stanza.Show(el), stanza.Status(el)
	ownNick, _ := c.rooms.Nick(room)
	if nick == ownNick || stanza.IsMUCSelfPresence(el, c.transport.JID()) {
		c.handleSelfRoomPresence(el, kind, room, nick, show, status)
		return
	}

	if kind == stanza.UnavailablePresence {
		if stanza.IsRoomNickChange(el) {
			if newNick := stanza.NewNick(el); newNick != "" {
				c.rooms.SetOccupantPendingNickChange(room, newNick, nick)
				return
			}
		}
		c.rooms.RemoveOccupant(room, nick)
		c.notify.Notify(RoomMemberOffline{Room: room, Nick: nick, Status: status})
		return
	}
	if kind != stanza.AvailablePresence {
		c.log.Debug("ignoring %s presence from %s", kind, el.From())
		return
	}

	if !c.rooms.RosterReceived(room) {
		c.rooms.AddOccupant(room, nick, show, status)
		return
	}

	if old, ok := c.rooms.CompleteOccupantNickChange(room, nick); ok {
		c.rooms.AddOccupant(room, nick, show, status)
		c.notify.Notify(RoomMemberNickChange{Room: room, OldNick: old, NewNick: nick})
		return
	}

	added, err := c.rooms.AddOccupant(room, nick, show, status)
	if err != nil {
		c.log.Warn("room %s: %v", room, err)
		return
	}
	if added {
		c.notify.Notify(RoomMemberOnline{Room: room, Nick: nick, Show: show, Status: status})
	} else {
		c.notify.Notify(RoomMemberPresence{Room: room, Nick: nick, Show: show, Status: status})
	}
}

func (c *Client) handleSelfRoomPresence(el *stanza.Element, kind stanza.PresenceKind, room, nick, show, status string) {
	if kind == stanza.UnavailablePresence {
		// the pending flag must be checked before treating this as leaving
		if stanza.IsRoomNickChange(el) || c.rooms.IsPendingNickChange(room) {
			c.rooms.SetPendingNickChange(room)
			return
		}
		c.rooms.Leave(room)
		c.notify.Notify(RoomLeft{Room: room})
		return
	}
	if kind != stanza.AvailablePresence {
		return
	}

	if c.rooms.IsPendingNickChange(room) {
		old, _ := c.rooms.Nick(room)
		c.rooms.CompleteNickChange(room, nick)
		if old != nick {
			c.rooms.RemoveOccupant(room, old)
		}
		c.rooms.AddOccupant(room, nick, show, status)
		c.notify.Notify(RoomNickChange{Room: room, Nick: nick})
		return
	}

	c.rooms.AddOccupant(room, nick, show, status)
	if !c.rooms.RosterReceived(room) {
		c.rooms.SetRosterReceived(room)
		c.notify.Notify(RoomRosterComplete{Room: room})
	}
}

func (c *Client) handleContactPresence(el *stanza.Element, kind stanza.PresenceKind) {
	from := jidutil.Bare(el.From())
	if from == "" {
		return
	}
	if own := jidutil.Bare(c.transport.JID()); own != "" && from == own {
		return
	}

	status := stanza.Status(el)
	switch kind {
	case stanza.AvailablePresence:
		show := stanza.Show(el)
		if show == "" {
			show = roster.ShowOnline
		}
		c.contacts.Update(from, show, status)

		var last time.Time
		if idle := stanza.IdleSeconds(el); idle > 0 {
			last = c.now().Add(-time.Duration(idle) * time.Second)
		}
		c.notify.Notify(ContactOnline{JID: from, Show: show, Status: status, LastActivity: last})
	case stanza.UnavailablePresence:
		c.contacts.Update(from, roster.ShowOffline, status)
		c.notify.Notify(ContactOffline{JID: from, Status: status})
	case stanza.SubscribePresence:
		c.requests.Add(from)
		c.notify.Notify(Subscription{JID: from, Action: presence.Subscribe})
	case stanza.SubscribedPresence:
		c.requests.Remove(from)
		c.notify.Notify(Subscription{JID: from, Action: presence.Subscribed})
	case stanza.UnsubscribedPresence:
		c.requests.Remove(from)
		c.notify.Notify(Subscription{JID: from, Action: presence.Unsubscribed})
	default:
		c.log.Debug("ignoring %s presence from %s", kind, from)
	}
}

func (c *Client) handleIQ(el *stanza.Element) {
	kind := stanza.IQKindOf(el)
	if el.ID() == stanza.RosterRequestID && (kind == stanza.ResultIQ || kind == stanza.ErrorIQ) {
		c.handleRosterResult(el, kind)
		return
	}

	switch kind {
	case stanza.SetIQ:
		if items, ok := stanza.RosterItems(el); ok {
			c.handleRosterPush(el, items)
			return
		}
		c.reply(el, stanza.ServiceUnavailable(el.From(), el.ID()))
	case stanza.GetIQ:
		if stanza.IsPing(el) {
			c.reply(el, stanza.Pong(el.From(), el.To(), el.ID()))
			return
		}
		if node, ok := disco.InfoRequest(el); ok {
			c.reply(el, stanza.ResultPayload(el.From(), el.ID(), c.info.Query(node)))
			return
		}
		c.reply(el, stanza.ServiceUnavailable(el.From(), el.ID()))
	case stanza.ResultIQ:
		c.log.Debug("iq result %s from %s", el.ID(), el.From())
	case stanza.ErrorIQ:
		c.log.Debug("iq error %s from %s: %s", el.ID(), el.From(), stanza.ErrorText(el))
	default:
		c.log.Error("dropping iq from %s with type %q", el.From(), el.Type())
	}
}

func (c *Client) handleRosterResult(el *stanza.Element, kind stanza.IQKind) {
	if kind == stanza.ErrorIQ {
		c.log.Error("roster request failed: %s", stanza.ErrorText(el))
		return
	}

	items, _ := stanza.RosterItems(el)
	for _, item := range items {
		added := c.contacts.Add(item.JID, item.Name, roster.ShowOffline, "",
			rosterSubscription(item.Subscription), item.Ask == "subscribe")
		if !added {
			c.log.Warn("duplicate roster item %s", item.JID)
		}
	}
	c.notify.Notify(RosterReceived{Contacts: c.contacts.All()})

	if err := c.UpdatePresence(c.wantPresence, c.wantStatus, 0); err != nil {
		c.log.Warn("sending initial presence: %v", err)
	}
}

func (c *Client) handleRosterPush(el *stanza.Element, items []stanza.RosterItem) {
	from := el.From()
	if from != "" && from != jidutil.Bare(c.transport.JID()) {
		c.log.Warn("ignoring roster push from %s", from)
		return
	}

	for _, item := range items {
		sub := rosterSubscription(item.Subscription)
		if sub == roster.SubscriptionRemove {
			if c.contacts.Remove(item.JID) {
				c.notify.Notify(ContactRemoved{JID: jidutil.Bare(item.JID)})
			}
			continue
		}
		c.contacts.UpdateSubscription(item.JID, sub, item.Ask == "subscribe")
		if contact, ok := c.contacts.Get(item.JID); ok {
			c.notify.Notify(ContactUpdated{Contact: contact})
		}
	}

	c.reply(el, stanza.Result(from, el.ID()))
}

func (c *Client) reply(el *stanza.Element, r xml.TokenReader) {
	if err := c.send(r); err != nil {
		c.log.Warn("answering iq %s from %s: %v", el.ID(), el.From(), err)
	}
}

func rosterSubscription(s string) roster.Subscription {
	switch roster.Subscription(s) {
	case roster.SubscriptionTo, roster.SubscriptionFrom, roster.SubscriptionBoth, roster.SubscriptionRemove:
		return roster.Subscription(s)
	default:
		return roster.SubscriptionNone
	}
}
