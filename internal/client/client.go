// Package client implements the XMPP session controller: connection
// lifecycle, reconnects, inbound stanza dispatch and the state kept for
// contacts, rooms and chat sessions.
package client

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meszmate/jabber/internal/logging"
	"github.com/meszmate/jabber/internal/xmpp"
	"github.com/meszmate/jabber/internal/xmpp/chat"
	"github.com/meszmate/jabber/internal/xmpp/disco"
	"github.com/meszmate/jabber/internal/xmpp/jidutil"
	"github.com/meszmate/jabber/internal/xmpp/muc"
	"github.com/meszmate/jabber/internal/xmpp/presence"
	"github.com/meszmate/jabber/internal/xmpp/roster"
	"github.com/meszmate/jabber/internal/xmpp/stanza"
)

const (
	pollTimeout = 10 * time.Millisecond
	sendTimeout = 10 * time.Second
)

var (
	// ErrNotConnected is returned by operations that need a live session
	ErrNotConnected = xmpp.ErrNotConnected
	// ErrMissingCredentials is reported when connecting without a JID or password
	ErrMissingCredentials = errors.New("missing JID or password")
)

// Client owns one connection and all session state derived from it.
// It is not safe for concurrent use: every method, including ProcessEvents,
// must be called from the same goroutine.
type Client struct {
	transport  xmpp.Transport
	prefs      Preferences
	notify     Notifier
	log        *logging.Logger
	now        func() time.Time
	newID      func() string
	disableTLS bool

	status     ConnStatus
	presence   presence.Type
	statusText string
	priority   int

	// last presence requested by the user, restored after a reconnect
	wantPresence presence.Type
	wantStatus   string

	saved        *savedCredentials
	reconnecting bool
	reconnectAt  time.Time

	autoping time.Duration
	lastPing time.Time

	contacts *roster.Manager
	rooms    *muc.Manager
	chats    *chat.Manager
	requests *presence.Requests
	info     disco.Info
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithIDGenerator replaces the generator of ping ids
func WithIDGenerator(newID func() string) Option {
	return func(c *Client) {
		c.newID = newID
	}
}

// WithDisableTLS negotiates without STARTTLS
func WithDisableTLS(disable bool) Option {
	return func(c *Client) {
		c.disableTLS = disable
	}
}

// New creates a client in the Started state
func New(transport xmpp.Transport, prefs Preferences, notify Notifier, opts ...Option) *Client {
	c := &Client{
		transport:    transport,
		prefs:        prefs,
		notify:       notify,
		now:          time.Now,
		newID:        uuid.NewString,
		status:       StatusStarted,
		presence:     presence.Offline,
		wantPresence: presence.Online,
		contacts:     roster.NewManager(),
		rooms:        muc.NewManager(),
		chats:        chat.NewManager(),
		requests:     presence.NewRequests(),
		info:         disco.ClientInfo("jabber", prefs.ChatStates()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.Default()
	}
	if c.notify == nil {
		c.notify = NewEventBus()
	}
	c.chats.SetClock(c.now)
	c.chats.SetGoneTimeout(prefs.GoneTimeout())
	return c
}

// Connect starts logging in as jid. The result of the attempt arrives later
// through ProcessEvents; the returned status is Connecting on success and
// Undefined when jid or password is missing.
func (c *Client) Connect(jid, password, altDomain string) ConnStatus {
	return c.connect(savedCredentials{
		jid:       jid,
		password:  password,
		altDomain: altDomain,
	})
}

// ConnectWithAccount connects with the settings of a configured account
func (c *Client) ConnectWithAccount(account Account, password string) ConnStatus {
	return c.connect(savedCredentials{
		account:   account.Name,
		jid:       account.JID,
		password:  password,
		altDomain: account.Server,
		port:      account.Port,
		resource:  account.Resource,
	})
}

func (c *Client) connect(creds savedCredentials) ConnStatus {
	if creds.jid == "" || creds.password == "" {
		c.log.Warn("connect: %v", ErrMissingCredentials)
		return StatusUndefined
	}

	switch c.status {
	case StatusConnecting, StatusConnected, StatusDisconnecting:
		c.log.Warn("connect: already %s", c.status)
		return c.status
	}

	if c.saved != nil && (c.saved.jid != creds.jid || c.saved.account != creds.account) {
		c.log.Debug("switching identity from %s to %s", c.saved.jid, creds.jid)
		c.freeResources()
	}
	c.saved = &creds
	return c.startConnect()
}

func (c *Client) startConnect() ConnStatus {
	cfg := xmpp.ConnectConfig{
		JID:        c.saved.jid,
		Password:   c.saved.password,
		AltDomain:  c.saved.altDomain,
		Port:       c.saved.port,
		Resource:   c.saved.resource,
		DisableTLS: c.disableTLS,
	}

	c.log.Info("connecting as %s", cfg.JID)
	c.status = StatusConnecting
	if err := c.transport.Connect(cfg, c.handleEvent); err != nil {
		c.log.Error("connect failed: %v", err)
		c.status = StatusDisconnected
		c.presence = presence.Offline
		if c.reconnecting {
			c.reconnectAt = c.now()
		} else {
			c.notify.Notify(LoginFailed{Err: err})
			c.freeResources()
		}
	}
	return c.status
}

// Disconnect closes the session and waits for the server to acknowledge,
// at most for the configured disconnect timeout. Session state is freed
// afterwards. When disconnected with a reconnect pending, the reconnect is
// cancelled.
func (c *Client) Disconnect() {
	switch c.status {
	case StatusConnected, StatusConnecting:
		c.log.Info("disconnecting")
		c.status = StatusDisconnecting
		if err := c.transport.Disconnect(); err != nil {
			c.log.Warn("closing stream: %v", err)
		}

		timeout := c.prefs.DisconnectTimeout()
		start := c.now()
		for c.status == StatusDisconnecting {
			if timeout > 0 && c.now().Sub(start) >= timeout {
				c.log.Warn("no close from server after %s", timeout)
				c.status = StatusDisconnected
				c.presence = presence.Offline
				break
			}
			c.ProcessEvents()
		}

		c.freeResources()
		c.notify.Notify(Disconnected{})
	case StatusDisconnected:
		if c.reconnecting {
			c.log.Info("reconnect cancelled")
			c.freeResources()
		}
	}
}

// ProcessEvents services one bounded slice of pending work. While a
// connection exists it handles queued transport events and runs the timers;
// while disconnected it retries the login once the reconnect interval passed.
func (c *Client) ProcessEvents() {
	switch c.status {
	case StatusConnecting, StatusConnected, StatusDisconnecting:
		c.transport.RunOnce(pollTimeout)
		if c.status == StatusConnected {
			c.tick()
		}
	case StatusDisconnected:
		if !c.reconnecting || c.saved == nil {
			return
		}
		interval := c.prefs.ReconnectInterval()
		if interval > 0 && c.now().Sub(c.reconnectAt) > interval {
			c.log.Info("reconnecting as %s", c.saved.jid)
			c.startConnect()
		}
	}
}

func (c *Client) tick() {
	now := c.now()
	if c.autoping > 0 && now.Sub(c.lastPing) >= c.autoping {
		c.lastPing = now
		if err := c.send(stanza.Ping(c.newID())); err != nil {
			c.log.Warn("autoping: %v", err)
		}
	}

	if !c.prefs.ChatStates() {
		return
	}
	for _, jid := range c.chats.JIDs() {
		c.chats.NoActivity(jid)
		if c.chats.Sent(jid) || !c.chats.RecipientSupports(jid) {
			continue
		}

		var err error
		switch {
		case c.chats.IsPaused(jid):
			err = c.SendPaused(jid)
		case c.chats.IsInactive(jid):
			err = c.SendInactive(jid)
		case c.chats.IsGone(jid):
			err = c.SendGone(jid)
		}
		if err != nil {
			session, _ := c.chats.Get(jid)
			c.log.Warn("sending %s to %s: %v", session.State, jid, err)
		}
	}
}

func (c *Client) handleEvent(ev xmpp.Event) {
	switch ev.Kind {
	case xmpp.EventConnected:
		c.onConnected()
	case xmpp.EventDisconnected:
		c.onDisconnected(ev.Err)
	case xmpp.EventStanza:
		c.handleStanza(ev.Stanza)
	}
}

func (c *Client) send(r xml.TokenReader) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return c.transport.Send(ctx, r)
}

func (c *Client) connected() error {
	if c.status != StatusConnected {
		return ErrNotConnected
	}
	return nil
}

// Send sends a chat message. When chat states are enabled the message
// carries an active state unless the peer is known not to support them.
func (c *Client) Send(body, to string) error {
	if err := c.connected(); err != nil {
		return err
	}

	var state string
	if c.prefs.ChatStates() {
		if !c.chats.Exists(to) {
			c.chats.Start(to, true)
		}
		if c.chats.RecipientSupports(to) {
			c.chats.SetActive(to)
			state = string(chat.StateActive)
		}
	}

	r, err := stanza.Message(to, stanza.ChatMessage, body, state)
	if err != nil {
		return err
	}
	if err := c.send(r); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	c.notify.Notify(MessageSent{To: to, Body: body, Time: c.now()})
	return nil
}

// SendGroupchat sends a message to a joined room
func (c *Client) SendGroupchat(body, room string) error {
	if err := c.connected(); err != nil {
		return err
	}
	if !c.rooms.IsActive(room) {
		return muc.ErrRoomNotFound
	}
	r, err := stanza.Message(jidutil.Bare(room), stanza.GroupChatMessage, body, "")
	if err != nil {
		return err
	}
	return c.send(r)
}

// SendComposing tells to that we are typing
func (c *Client) SendComposing(to string) error { return c.sendChatState(to, chat.StateComposing) }

// SendPaused tells to that we stopped typing
func (c *Client) SendPaused(to string) error { return c.sendChatState(to, chat.StatePaused) }

// SendInactive tells to that we are not paying attention to the chat
func (c *Client) SendInactive(to string) error { return c.sendChatState(to, chat.StateInactive) }

// SendGone tells to that we left the chat
func (c *Client) SendGone(to string) error { return c.sendChatState(to, chat.StateGone) }

// EndChat ends the chat session with jid, sending gone first when the peer
// understands chat states
func (c *Client) EndChat(jid string) error {
	if !c.chats.Exists(jid) {
		return nil
	}
	var err error
	if c.status == StatusConnected && c.prefs.ChatStates() && c.chats.RecipientSupports(jid) && !c.chats.IsGone(jid) {
		err = c.SendGone(jid)
	}
	c.chats.Delete(jid)
	return err
}

func (c *Client) sendChatState(to string, state chat.State) error {
	if err := c.connected(); err != nil {
		return err
	}
	if !c.chats.Exists(to) {
		c.chats.Start(to, true)
	}
	r, err := stanza.ChatState(to, string(state))
	if err != nil {
		return err
	}
	if err := c.send(r); err != nil {
		return err
	}
	c.chats.SetSent(to)
	return nil
}

// Typing records local typing activity in the chat with to and sends a
// composing state the first time
func (c *Client) Typing(to string) error {
	if c.status != StatusConnected || !c.prefs.ChatStates() {
		return nil
	}
	if !c.chats.Exists(to) || !c.chats.RecipientSupports(to) {
		return nil
	}
	c.chats.SetComposing(to)
	if !c.chats.IsComposing(to) || c.chats.Sent(to) {
		return nil
	}
	return c.SendComposing(to)
}

// Subscription sends a subscription request or answer to the bare JID and
// drops any pending request from it
func (c *Client) Subscription(jid string, action presence.SubscriptionAction) error {
	if err := c.connected(); err != nil {
		return err
	}

	var kind stanza.PresenceKind
	switch action {
	case presence.Subscribe:
		kind = stanza.SubscribePresence
	case presence.Subscribed:
		kind = stanza.SubscribedPresence
	case presence.Unsubscribed:
		kind = stanza.UnsubscribedPresence
	default:
		return fmt.Errorf("unknown subscription action %d", action)
	}

	bare := jidutil.Bare(jid)
	c.requests.Remove(bare)
	r, err := stanza.Subscription(bare, kind)
	if err != nil {
		return err
	}
	return c.send(r)
}

// SubscriptionRequests returns the JIDs waiting for an answer
func (c *Client) SubscriptionRequests() []string {
	return c.requests.List()
}

// Join enters a room under nick
func (c *Client) Join(room, nick string) error {
	if err := c.connected(); err != nil {
		return err
	}
	room = jidutil.Bare(room)
	r, err := stanza.RoomJoin(room, nick)
	if err != nil {
		return err
	}
	if err := c.send(r); err != nil {
		return err
	}
	c.rooms.Join(room, nick)
	return nil
}

// ChangeRoomNick asks the room to rename us. The change completes when the
// room echoes our presence under the new nick.
func (c *Client) ChangeRoomNick(room, nick string) error {
	if err := c.connected(); err != nil {
		return err
	}
	room = jidutil.Bare(room)
	if err := c.rooms.SetPendingNickChange(room); err != nil {
		return err
	}
	r, err := stanza.RoomNickChange(room, nick)
	if err != nil {
		c.rooms.ClearPendingNickChange(room)
		return err
	}
	return c.send(r)
}

// LeaveRoom sends an unavailable presence to the room. The room is removed
// when the server confirms.
func (c *Client) LeaveRoom(room string) error {
	if err := c.connected(); err != nil {
		return err
	}
	room = jidutil.Bare(room)
	nick, ok := c.rooms.Nick(room)
	if !ok {
		return muc.ErrRoomNotFound
	}
	r, err := stanza.RoomLeave(room, nick)
	if err != nil {
		return err
	}
	return c.send(r)
}

// UpdatePresence broadcasts our presence and repeats it to every joined
// room. It does nothing unless connected.
func (c *Client) UpdatePresence(p presence.Type, status string, idleSeconds int) error {
	if p == presence.Offline {
		return errors.New("use Disconnect to go offline")
	}
	c.wantPresence = p
	c.wantStatus = status
	if c.status != StatusConnected {
		return nil
	}

	priority := presence.ClampPriority(c.prefs.Priority())
	a := stanza.Availability{
		Show:        p.Show(),
		Status:      status,
		Priority:    priority,
		IdleSeconds: idleSeconds,
	}

	r, err := stanza.Presence("", a)
	if err != nil {
		return err
	}
	if err := c.send(r); err != nil {
		return err
	}
	for _, room := range c.rooms.ActiveRooms() {
		nick, _ := c.rooms.Nick(room)
		r, err := stanza.Presence(jidutil.Compose(room, nick), a)
		if err != nil {
			c.log.Warn("presence to %s: %v", room, err)
			continue
		}
		if err := c.send(r); err != nil {
			return err
		}
	}

	c.presence = p
	c.statusText = status
	c.priority = priority
	return nil
}

// SetAutoping sets the server ping interval in seconds, 0 disables it.
// The interval restarts from now.
func (c *Client) SetAutoping(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.autoping = time.Duration(seconds) * time.Second
	c.lastPing = c.now()
}

func (c *Client) Status() ConnStatus         { return c.status }
func (c *Client) Presence() presence.Type    { return c.presence }
func (c *Client) StatusText() string         { return c.statusText }
func (c *Client) Priority() int              { return c.priority }
func (c *Client) Autoping() time.Duration    { return c.autoping }
func (c *Client) Contacts() []roster.Contact { return c.contacts.All() }
func (c *Client) Rooms() []string            { return c.rooms.ActiveRooms() }
func (c *Client) Reconnecting() bool         { return c.reconnecting }

// RoomSubject returns the last subject seen in a room
func (c *Client) RoomSubject(room string) string {
	return c.rooms.Subject(room)
}

// JID returns the bound full JID, empty when not connected
func (c *Client) JID() string {
	if c.status != StatusConnected {
		return ""
	}
	return c.transport.JID()
}

// Account returns the account name of the current or last connection
func (c *Client) Account() string {
	if c.saved == nil {
		return ""
	}
	return c.saved.account
}

// Contact returns one contact
func (c *Client) Contact(jid string) (roster.Contact, bool) {
	return c.contacts.Get(jid)
}

// RoomNick returns our nick in a room
func (c *Client) RoomNick(room string) (string, bool) {
	return c.rooms.Nick(room)
}

// RoomOccupants returns the occupants of a joined room ordered by nick
func (c *Client) RoomOccupants(room string) ([]muc.Occupant, error) {
	return c.rooms.Occupants(room)
}

// FindContact cycles through contacts matching prefix
func (c *Client) FindContact(prefix string) string {
	return c.contacts.FindPrefix(prefix)
}

func (c *Client) ResetContactSearch() {
	c.contacts.ResetSearch()
}

// CompleteOccupant cycles through the nicks of a room matching prefix
func (c *Client) CompleteOccupant(room, prefix string) string {
	return c.rooms.CompleteNick(room, prefix)
}

func (c *Client) ResetOccupantSearch(room string) {
	c.rooms.ResetNickSearch(room)
}

// clearSession drops everything learned from the server but keeps the
// credentials for a reconnect
func (c *Client) clearSession() {
	c.chats.Clear()
	c.rooms.Clear()
	c.contacts.Clear()
	c.requests.Clear()
	c.autoping = 0
}

func (c *Client) freeResources() {
	c.clearSession()
	c.saved = nil
	c.reconnecting = false
	c.reconnectAt = time.Time{}
	c.wantPresence = presence.Online
	c.wantStatus = ""
	c.transport.Release()
}
