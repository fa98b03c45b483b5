package client

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"testing"
	"time"

	"mellium.im/xmlstream"

	"github.com/meszmate/jabber/internal/logging"
	"github.com/meszmate/jabber/internal/xmpp"
	"github.com/meszmate/jabber/internal/xmpp/chat"
	"github.com/meszmate/jabber/internal/xmpp/presence"
	"github.com/meszmate/jabber/internal/xmpp/stanza"
)

const (
	testJID     = "me@example.com"
	testFullJID = "me@example.com/home"
	testRoom    = "lounge@conference.example.com"
)

type fakeTransport struct {
	jid        string
	connectErr error
	handler    func(xmpp.Event)
	connects   []xmpp.ConnectConfig
	queue      []xmpp.Event
	sent       []*stanza.Element
	released   int
	closes     int

	// queue a disconnect when the stream is closed
	ackClose  bool
	onRunOnce func()
}

func (f *fakeTransport) Connect(cfg xmpp.ConnectConfig, handler func(xmpp.Event)) error {
	f.connects = append(f.connects, cfg)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.handler = handler
	return nil
}

func (f *fakeTransport) Send(_ context.Context, r xml.TokenReader) error {
	if f.handler == nil {
		return xmpp.ErrNotConnected
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if _, err := xmlstream.Copy(enc, r); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	el, err := stanza.Parse(buf.Bytes())
	if err != nil {
		return err
	}
	f.sent = append(f.sent, el)
	return nil
}

func (f *fakeTransport) RunOnce(time.Duration) {
	if f.onRunOnce != nil {
		f.onRunOnce()
	}
	queue := f.queue
	f.queue = nil
	for _, ev := range queue {
		if f.handler != nil {
			f.handler(ev)
		}
	}
}

func (f *fakeTransport) Disconnect() error {
	f.closes++
	if f.ackClose {
		f.queue = append(f.queue, xmpp.Event{Kind: xmpp.EventDisconnected})
	}
	return nil
}

func (f *fakeTransport) Release() {
	f.released++
	f.handler = nil
	f.queue = nil
}

func (f *fakeTransport) JID() string { return f.jid }

func (f *fakeTransport) push(ev xmpp.Event) {
	f.queue = append(f.queue, ev)
}

func (f *fakeTransport) takeSent() []*stanza.Element {
	sent := f.sent
	f.sent = nil
	return sent
}

type recorder struct {
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) take() []Event {
	events := r.events
	r.events = nil
	return events
}

func find[T Event](events []Event) (T, bool) {
	for _, ev := range events {
		if v, ok := ev.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	client    *Client
	transport *fakeTransport
	events    *recorder
	clock     *testClock
}

func testSettings() Settings {
	return Settings{
		States:         true,
		Typing:         true,
		DisconnectWait: 5 * time.Second,
	}
}

func newHarness(t *testing.T, prefs Settings) *harness {
	t.Helper()
	h := &harness{
		transport: &fakeTransport{jid: testFullJID},
		events:    &recorder{},
		clock:     &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	ids := 0
	h.client = New(h.transport, prefs, h.events,
		WithLogger(logging.Discard()),
		WithClock(h.clock.now),
		WithIDGenerator(func() string {
			ids++
			return "ping-" + string(rune('0'+ids))
		}),
	)
	return h
}

// deliver queues a stanza and processes it
func (h *harness) deliver(t *testing.T, s string) {
	t.Helper()
	el, err := stanza.Parse([]byte(s))
	if err != nil {
		t.Fatalf("bad test stanza %s: %v", s, err)
	}
	h.transport.push(xmpp.Event{Kind: xmpp.EventStanza, Stanza: el})
	h.client.ProcessEvents()
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	if status := h.client.Connect(testJID, "secret", ""); status != StatusConnecting {
		t.Fatalf("expected connecting, got %s", status)
	}
	h.transport.push(xmpp.Event{Kind: xmpp.EventConnected})
	h.client.ProcessEvents()
	if h.client.Status() != StatusConnected {
		t.Fatalf("expected connected, got %s", h.client.Status())
	}
	h.deliver(t, `<iq type="result" id="roster"><query xmlns="jabber:iq:roster"/></iq>`)
	h.transport.takeSent()
	h.events.take()
}

func (h *harness) joinRoom(t *testing.T, nick string) {
	t.Helper()
	if err := h.client.Join(testRoom, nick); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	h.deliver(t, `<presence from="`+testRoom+`/`+nick+`"><x xmlns="http://jabber.org/protocol/muc#user"><status code="110"/></x></presence>`)
	h.transport.takeSent()
	h.events.take()
}

func TestConnectWithoutCredentials(t *testing.T) {
	h := newHarness(t, testSettings())

	if status := h.client.Connect("", "secret", ""); status != StatusUndefined {
		t.Fatalf("expected undefined, got %s", status)
	}
	if status := h.client.Connect(testJID, "", ""); status != StatusUndefined {
		t.Fatalf("expected undefined, got %s", status)
	}
	if len(h.transport.connects) != 0 {
		t.Fatalf("expected no connect attempt, got %d", len(h.transport.connects))
	}
	if h.client.Status() != StatusStarted {
		t.Fatalf("expected started, got %s", h.client.Status())
	}
}

func TestLoginSuccess(t *testing.T) {
	h := newHarness(t, testSettings())

	status := h.client.ConnectWithAccount(Account{Name: "work", JID: testJID, Server: "xmpp.example.net", Port: 5223}, "secret")
	if status != StatusConnecting {
		t.Fatalf("expected connecting, got %s", status)
	}
	cfg := h.transport.connects[0]
	if cfg.AltDomain != "xmpp.example.net" || cfg.Port != 5223 || cfg.Password != "secret" {
		t.Fatalf("unexpected connect config %+v", cfg)
	}

	h.transport.push(xmpp.Event{Kind: xmpp.EventConnected})
	h.client.ProcessEvents()

	if h.client.Status() != StatusConnected {
		t.Fatalf("expected connected, got %s", h.client.Status())
	}
	if h.client.Presence() != presence.Online {
		t.Fatalf("expected online, got %s", h.client.Presence())
	}
	ev, ok := find[LoginSuccess](h.events.take())
	if !ok {
		t.Fatal("expected login success")
	}
	if ev.JID != testFullJID || ev.Account != "work" || ev.AltDomain != "xmpp.example.net" {
		t.Fatalf("unexpected login event %+v", ev)
	}

	sent := h.transport.takeSent()
	if len(sent) != 1 || sent[0].ID() != stanza.RosterRequestID {
		t.Fatalf("expected roster request, got %v", sent)
	}
}

func TestRosterResult(t *testing.T) {
	h := newHarness(t, testSettings())
	h.client.Connect(testJID, "secret", "")
	h.transport.push(xmpp.Event{Kind: xmpp.EventConnected})
	h.client.ProcessEvents()
	h.transport.takeSent()
	h.events.take()

	h.deliver(t, `<iq type="result" id="roster"><query xmlns="jabber:iq:roster">`+
		`<item jid="zoe@example.com" subscription="both"/>`+
		`<item jid="bob@example.com" name="Bob" subscription="to"/>`+
		`<item jid="bob@example.com" subscription="to"/>`+
		`</query></iq>`)

	ev, ok := find[RosterReceived](h.events.take())
	if !ok {
		t.Fatal("expected roster event")
	}
	if len(ev.Contacts) != 2 || ev.Contacts[0].JID != "bob@example.com" || ev.Contacts[1].JID != "zoe@example.com" {
		t.Fatalf("unexpected contacts %+v", ev.Contacts)
	}
	if ev.Contacts[0].Show != "offline" {
		t.Fatalf("expected offline, got %q", ev.Contacts[0].Show)
	}

	sent := h.transport.takeSent()
	if len(sent) != 1 || sent[0].Name.Local != "presence" || sent[0].To() != "" {
		t.Fatalf("expected initial presence, got %v", sent)
	}
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t, testSettings())
	h.client.Connect(testJID, "wrong", "")

	h.transport.push(xmpp.Event{Kind: xmpp.EventDisconnected, Err: errors.New("not-authorized")})
	h.client.ProcessEvents()

	if h.client.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", h.client.Status())
	}
	if _, ok := find[LoginFailed](h.events.take()); !ok {
		t.Fatal("expected login failed")
	}
	if h.transport.released != 1 {
		t.Fatalf("expected transport released, got %d", h.transport.released)
	}
}

func TestConnectErrorReportsLoginFailed(t *testing.T) {
	h := newHarness(t, testSettings())
	h.transport.connectErr = errors.New("invalid JID")

	if status := h.client.Connect("@@", "secret", ""); status != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", status)
	}
	if _, ok := find[LoginFailed](h.events.take()); !ok {
		t.Fatal("expected login failed")
	}
}

func TestLostConnectionReconnects(t *testing.T) {
	prefs := testSettings()
	prefs.Reconnect = 30 * time.Second
	h := newHarness(t, prefs)
	h.login(t)
	h.deliver(t, `<iq type="set" id="push1"><query xmlns="jabber:iq:roster"><item jid="bob@example.com" subscription="both"/></query></iq>`)
	h.events.take()

	h.transport.push(xmpp.Event{Kind: xmpp.EventDisconnected, Err: errors.New("eof")})
	h.client.ProcessEvents()

	if _, ok := find[LostConnection](h.events.take()); !ok {
		t.Fatal("expected lost connection")
	}
	if !h.client.Reconnecting() {
		t.Fatal("expected reconnect to be pending")
	}
	if len(h.client.Contacts()) != 0 {
		t.Fatal("expected contacts to be cleared")
	}
	if h.transport.released != 0 {
		t.Fatal("transport released while reconnecting")
	}

	h.clock.advance(10 * time.Second)
	h.client.ProcessEvents()
	if len(h.transport.connects) != 1 {
		t.Fatalf("reconnected too early")
	}

	h.clock.advance(21 * time.Second)
	h.client.ProcessEvents()
	if len(h.transport.connects) != 2 {
		t.Fatalf("expected a reconnect, got %d connects", len(h.transport.connects))
	}
	if h.transport.connects[1].JID != testJID || h.transport.connects[1].Password != "secret" {
		t.Fatalf("unexpected reconnect config %+v", h.transport.connects[1])
	}

	h.transport.push(xmpp.Event{Kind: xmpp.EventConnected})
	h.client.ProcessEvents()
	if h.client.Status() != StatusConnected || h.client.Reconnecting() {
		t.Fatalf("expected connected without pending reconnect, got %s", h.client.Status())
	}
}

func TestFailedReconnectRestartsTimer(t *testing.T) {
	prefs := testSettings()
	prefs.Reconnect = 30 * time.Second
	h := newHarness(t, prefs)
	h.login(t)

	h.transport.push(xmpp.Event{Kind: xmpp.EventDisconnected})
	h.client.ProcessEvents()
	h.events.take()

	h.clock.advance(31 * time.Second)
	h.client.ProcessEvents()
	h.transport.push(xmpp.Event{Kind: xmpp.EventDisconnected, Err: errors.New("refused")})
	h.client.ProcessEvents()

	if _, ok := find[LoginFailed](h.events.take()); ok {
		t.Fatal("unexpected login failed while retrying")
	}
	if !h.client.Reconnecting() {
		t.Fatal("expected reconnect to stay pending")
	}

	h.clock.advance(10 * time.Second)
	h.client.ProcessEvents()
	if len(h.transport.connects) != 2 {
		t.Fatalf("expected timer restart, got %d connects", len(h.transport.connects))
	}
}

func TestLostConnectionWithoutReconnect(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.transport.push(xmpp.Event{Kind: xmpp.EventDisconnected})
	h.client.ProcessEvents()

	if h.client.Reconnecting() {
		t.Fatal("unexpected reconnect")
	}
	if h.transport.released != 1 {
		t.Fatalf("expected transport released, got %d", h.transport.released)
	}
	if h.client.Presence() != presence.Offline {
		t.Fatalf("expected offline, got %s", h.client.Presence())
	}
}

func TestReconnectRestoresPresence(t *testing.T) {
	prefs := testSettings()
	prefs.Reconnect = time.Second
	h := newHarness(t, prefs)
	h.login(t)

	if err := h.client.UpdatePresence(presence.Away, "lunch", 0); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	h.transport.takeSent()

	h.transport.push(xmpp.Event{Kind: xmpp.EventDisconnected})
	h.client.ProcessEvents()
	h.clock.advance(2 * time.Second)
	h.client.ProcessEvents()
	h.transport.push(xmpp.Event{Kind: xmpp.EventConnected})
	h.client.ProcessEvents()
	h.deliver(t, `<iq type="result" id="roster"><query xmlns="jabber:iq:roster"/></iq>`)

	sent := h.transport.takeSent()
	last := sent[len(sent)-1]
	if last.Name.Local != "presence" || stanza.Show(last) != "away" || stanza.Status(last) != "lunch" {
		t.Fatalf("expected away presence, got %s", last)
	}
	if h.client.Presence() != presence.Away {
		t.Fatalf("expected away, got %s", h.client.Presence())
	}
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.transport.ackClose = true

	h.client.Disconnect()

	if h.client.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", h.client.Status())
	}
	if h.transport.closes != 1 {
		t.Fatalf("expected one close, got %d", h.transport.closes)
	}
	if h.transport.released != 1 {
		t.Fatalf("expected transport released, got %d", h.transport.released)
	}
	events := h.events.take()
	if _, ok := find[Disconnected](events); !ok {
		t.Fatal("expected disconnected event")
	}
	if _, ok := find[LostConnection](events); ok {
		t.Fatal("requested disconnect reported as lost connection")
	}
}

func TestDisconnectTimeout(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.transport.onRunOnce = func() { h.clock.advance(time.Second) }

	h.client.Disconnect()

	if h.client.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", h.client.Status())
	}
	if _, ok := find[Disconnected](h.events.take()); !ok {
		t.Fatal("expected disconnected event")
	}
}

func TestDisconnectCancelsReconnect(t *testing.T) {
	prefs := testSettings()
	prefs.Reconnect = time.Second
	h := newHarness(t, prefs)
	h.login(t)
	h.transport.push(xmpp.Event{Kind: xmpp.EventDisconnected})
	h.client.ProcessEvents()

	h.client.Disconnect()
	h.clock.advance(time.Minute)
	h.client.ProcessEvents()

	if len(h.transport.connects) != 1 {
		t.Fatalf("expected no reconnect, got %d connects", len(h.transport.connects))
	}
}

func TestConnectNewIdentityClearsState(t *testing.T) {
	prefs := testSettings()
	prefs.Reconnect = time.Second
	h := newHarness(t, prefs)
	h.login(t)
	h.transport.push(xmpp.Event{Kind: xmpp.EventDisconnected})
	h.client.ProcessEvents()

	h.client.Connect("other@example.com", "pw", "")
	if h.client.Reconnecting() {
		t.Fatal("expected pending reconnect to be dropped")
	}
	if got := h.transport.connects[len(h.transport.connects)-1].JID; got != "other@example.com" {
		t.Fatalf("expected other@example.com, got %q", got)
	}
}

func TestUpdatePresence(t *testing.T) {
	prefs := testSettings()
	prefs.Prio = 5
	h := newHarness(t, prefs)
	h.login(t)
	h.joinRoom(t, "me")

	if err := h.client.UpdatePresence(presence.DND, "busy", 120); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	sent := h.transport.takeSent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 presences, got %d", len(sent))
	}
	if sent[0].To() != "" || stanza.Show(sent[0]) != "dnd" || sent[0].ChildText("priority") != "5" {
		t.Fatalf("unexpected broadcast %s", sent[0])
	}
	if stanza.IdleSeconds(sent[0]) != 120 {
		t.Fatalf("expected idle 120, got %d", stanza.IdleSeconds(sent[0]))
	}
	if sent[1].To() != testRoom+"/me" || stanza.Status(sent[1]) != "busy" {
		t.Fatalf("unexpected room presence %s", sent[1])
	}
	if h.client.Presence() != presence.DND || h.client.StatusText() != "busy" || h.client.Priority() != 5 {
		t.Fatal("presence state not updated")
	}
}

func TestUpdatePresenceClampsPriority(t *testing.T) {
	prefs := testSettings()
	prefs.Prio = 500
	h := newHarness(t, prefs)
	h.login(t)

	h.client.UpdatePresence(presence.Online, "", 0)
	sent := h.transport.takeSent()
	if sent[0].Child("priority") != nil {
		t.Fatalf("expected no priority, got %s", sent[0])
	}
}

func TestUpdatePresenceNotConnected(t *testing.T) {
	h := newHarness(t, testSettings())

	if err := h.client.UpdatePresence(presence.Away, "", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.transport.sent) != 0 {
		t.Fatal("presence sent while disconnected")
	}
	if err := h.client.UpdatePresence(presence.Offline, "", 0); err == nil {
		t.Fatal("expected error for offline")
	}
}

func TestSendChatMessage(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	if err := h.client.Send("hello", "bob@example.com"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	sent := h.transport.takeSent()
	if body, _ := stanza.Body(sent[0]); body != "hello" {
		t.Fatalf("expected hello, got %q", body)
	}
	if state, _ := stanza.ChatStateOf(sent[0]); state != "active" {
		t.Fatalf("expected active, got %q", state)
	}
	if _, ok := find[MessageSent](h.events.take()); !ok {
		t.Fatal("expected message sent event")
	}

	// a reply without chat states turns them off for this peer
	h.deliver(t, `<message type="chat" from="bob@example.com/phone"><body>hi</body></message>`)
	h.client.Send("again", "bob@example.com")
	sent = h.transport.takeSent()
	if stanza.HasChatState(sent[0]) {
		t.Fatalf("unexpected chat state in %s", sent[0])
	}
}

func TestSendNotConnected(t *testing.T) {
	h := newHarness(t, testSettings())
	if err := h.client.Send("hello", "bob@example.com"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestIncomingChat(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.deliver(t, `<message type="chat" from="bob@example.com/phone"><composing xmlns="http://jabber.org/protocol/chatstates"/></message>`)
	typing, ok := find[Typing](h.events.take())
	if !ok || typing.JID != "bob@example.com" {
		t.Fatalf("expected typing from bob, got %+v", typing)
	}

	h.deliver(t, `<message type="chat" from="bob@example.com/phone"><body>hi</body><active xmlns="http://jabber.org/protocol/chatstates"/></message>`)
	msg, ok := find[IncomingMessage](h.events.take())
	if !ok || msg.From != "bob@example.com" || msg.Body != "hi" || msg.Private {
		t.Fatalf("unexpected message %+v", msg)
	}

	h.deliver(t, `<message type="chat" from="bob@example.com/phone"><gone xmlns="http://jabber.org/protocol/chatstates"/></message>`)
	if _, ok := find[Gone](h.events.take()); !ok {
		t.Fatal("expected gone")
	}

	h.deliver(t, `<message type="chat" from="carol@example.com"><body>offline msg</body>`+
		`<delay xmlns="urn:xmpp:delay" stamp="2024-02-01T10:00:00Z"/></message>`)
	delayed, ok := find[DelayedMessage](h.events.take())
	if !ok {
		t.Fatal("expected delayed message")
	}
	if !delayed.Stamp.Equal(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected stamp %v", delayed.Stamp)
	}
}

func TestIncomingChatStartsSession(t *testing.T) {
	prefs := testSettings()
	prefs.States = false
	h := newHarness(t, prefs)
	h.login(t)

	h.deliver(t, `<message type="chat" from="carol@example.com"><body>offline msg</body>`+
		`<delay xmlns="urn:xmpp:delay" stamp="2024-02-01T10:00:00Z"/></message>`)
	if !h.client.chats.Exists("carol@example.com") {
		t.Fatal("expected session for delayed chat")
	}

	h.deliver(t, `<message type="chat" from="bob@example.com/phone"><body>hi</body><active xmlns="http://jabber.org/protocol/chatstates"/></message>`)
	if !h.client.chats.Exists("bob@example.com") || !h.client.chats.RecipientSupports("bob@example.com") {
		t.Fatal("expected session with chat state support for bob")
	}
	h.deliver(t, `<message type="chat" from="bob@example.com/phone"><body>plain</body></message>`)
	if h.client.chats.RecipientSupports("bob@example.com") {
		t.Fatal("expected support cleared by a message without chat state")
	}
}

func TestTypingNotificationsDisabled(t *testing.T) {
	prefs := testSettings()
	prefs.Typing = false
	h := newHarness(t, prefs)
	h.login(t)

	h.deliver(t, `<message type="chat" from="bob@example.com/phone"><composing xmlns="http://jabber.org/protocol/chatstates"/></message>`)
	if _, ok := find[Typing](h.events.take()); ok {
		t.Fatal("unexpected typing event")
	}
}

func TestMessageWithoutTypeDropped(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.deliver(t, `<message from="bob@example.com"><body>hi</body></message>`)
	if events := h.events.take(); len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
}

func TestErrorMessage(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.deliver(t, `<message type="error" from="nobody@example.com"><error type="cancel">`+
		`<item-not-found xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></message>`)
	ev, ok := find[ErrorMessage](h.events.take())
	if !ok || ev.Text != "item-not-found" {
		t.Fatalf("unexpected error event %+v", ev)
	}
}

func TestPrivateRoomMessage(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.joinRoom(t, "me")

	h.deliver(t, `<message type="chat" from="`+testRoom+`/alice"><body>psst</body></message>`)
	msg, ok := find[IncomingMessage](h.events.take())
	if !ok || !msg.Private || msg.From != testRoom+"/alice" {
		t.Fatalf("unexpected private message %+v", msg)
	}
}

func TestGroupchatMessages(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.joinRoom(t, "me")

	h.deliver(t, `<message type="groupchat" from="`+testRoom+`/alice"><subject>Go</subject></message>`)
	subject, ok := find[RoomSubject](h.events.take())
	if !ok || subject.Subject != "Go" || subject.Nick != "alice" {
		t.Fatalf("unexpected subject %+v", subject)
	}
	if h.client.RoomSubject(testRoom) != "Go" {
		t.Fatalf("expected stored subject, got %q", h.client.RoomSubject(testRoom))
	}

	h.deliver(t, `<message type="groupchat" from="`+testRoom+`/alice"><body>old</body>`+
		`<delay xmlns="urn:xmpp:delay" stamp="2024-02-01T10:00:00Z"/></message>`)
	if _, ok := find[RoomHistory](h.events.take()); !ok {
		t.Fatal("expected room history")
	}

	h.deliver(t, `<message type="groupchat" from="`+testRoom+`/alice"><body>now</body></message>`)
	msg, ok := find[RoomMessage](h.events.take())
	if !ok || msg.Body != "now" || msg.Nick != "alice" {
		t.Fatalf("unexpected room message %+v", msg)
	}

	h.deliver(t, `<message type="groupchat" from="`+testRoom+`"><body>room is now logged</body></message>`)
	if _, ok := find[RoomBroadcast](h.events.take()); !ok {
		t.Fatal("expected broadcast")
	}

	h.deliver(t, `<message type="groupchat" from="other@conference.example.com/x"><body>stray</body></message>`)
	if events := h.events.take(); len(events) != 0 {
		t.Fatalf("expected message from unknown room dropped, got %v", events)
	}
}

func TestRoomRosterFlow(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.client.Join(testRoom, "me")
	join := h.transport.takeSent()
	if len(join) != 1 || join[0].To() != testRoom+"/me" || join[0].ChildNS("http://jabber.org/protocol/muc", "x") == nil {
		t.Fatalf("unexpected join presence %v", join)
	}

	h.deliver(t, `<presence from="`+testRoom+`/alice"><show>away</show></presence>`)
	if events := h.events.take(); len(events) != 0 {
		t.Fatalf("expected silent roster burst, got %v", events)
	}
	h.deliver(t, `<presence from="`+testRoom+`/me"><x xmlns="http://jabber.org/protocol/muc#user"><status code="110"/></x></presence>`)
	if _, ok := find[RoomRosterComplete](h.events.take()); !ok {
		t.Fatal("expected roster complete")
	}

	h.deliver(t, `<presence from="`+testRoom+`/bob"/>`)
	if ev, ok := find[RoomMemberOnline](h.events.take()); !ok || ev.Nick != "bob" {
		t.Fatalf("expected bob online, got %+v", ev)
	}
	h.deliver(t, `<presence from="`+testRoom+`/bob"><show>xa</show></presence>`)
	if ev, ok := find[RoomMemberPresence](h.events.take()); !ok || ev.Show != "xa" {
		t.Fatalf("expected bob presence, got %+v", ev)
	}

	h.deliver(t, `<presence type="unavailable" from="`+testRoom+`/alice"><x xmlns="http://jabber.org/protocol/muc#user">`+
		`<item nick="alice2"/><status code="303"/></x></presence>`)
	if events := h.events.take(); len(events) != 0 {
		t.Fatalf("expected staged rename to be silent, got %v", events)
	}
	h.deliver(t, `<presence from="`+testRoom+`/alice2"><show>away</show></presence>`)
	rename, ok := find[RoomMemberNickChange](h.events.take())
	if !ok || rename.OldNick != "alice" || rename.NewNick != "alice2" {
		t.Fatalf("unexpected rename %+v", rename)
	}

	occupants, err := h.client.RoomOccupants(testRoom)
	if err != nil {
		t.Fatalf("occupants failed: %v", err)
	}
	var nicks []string
	for _, o := range occupants {
		nicks = append(nicks, o.Nick)
	}
	if len(nicks) != 3 || nicks[0] != "alice2" || nicks[1] != "bob" || nicks[2] != "me" {
		t.Fatalf("unexpected occupants %v", nicks)
	}

	h.deliver(t, `<presence type="unavailable" from="`+testRoom+`/bob"><status>bye</status></presence>`)
	if ev, ok := find[RoomMemberOffline](h.events.take()); !ok || ev.Status != "bye" {
		t.Fatalf("expected bob offline, got %+v", ev)
	}
}

func TestOwnNickChange(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.joinRoom(t, "me")

	if err := h.client.ChangeRoomNick(testRoom, "me2"); err != nil {
		t.Fatalf("nick change failed: %v", err)
	}
	sent := h.transport.takeSent()
	if sent[0].To() != testRoom+"/me2" {
		t.Fatalf("unexpected nick change presence %s", sent[0])
	}

	h.deliver(t, `<presence type="unavailable" from="`+testRoom+`/me"><x xmlns="http://jabber.org/protocol/muc#user">`+
		`<item nick="me2"/><status code="303"/><status code="110"/></x></presence>`)
	if _, ok := find[RoomLeft](h.events.take()); ok {
		t.Fatal("rename treated as leaving")
	}

	h.deliver(t, `<presence from="`+testRoom+`/me2"><x xmlns="http://jabber.org/protocol/muc#user"><status code="110"/></x></presence>`)
	ev, ok := find[RoomNickChange](h.events.take())
	if !ok || ev.Nick != "me2" {
		t.Fatalf("expected nick change, got %+v", ev)
	}
	if nick, _ := h.client.RoomNick(testRoom); nick != "me2" {
		t.Fatalf("expected me2, got %q", nick)
	}
	occupants, _ := h.client.RoomOccupants(testRoom)
	if len(occupants) != 1 || occupants[0].Nick != "me2" {
		t.Fatalf("unexpected occupants %+v", occupants)
	}
}

func TestRoomNickChangeErrorClearsPending(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.joinRoom(t, "me")

	h.client.ChangeRoomNick(testRoom, "taken")
	h.deliver(t, `<presence type="error" from="`+testRoom+`/taken"><error type="cancel">`+
		`<conflict xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></presence>`)

	if ev, ok := find[ErrorMessage](h.events.take()); !ok || ev.Text != "conflict" {
		t.Fatalf("expected conflict error, got %+v", ev)
	}

	// our own unavailable now means we left
	h.deliver(t, `<presence type="unavailable" from="`+testRoom+`/me"><x xmlns="http://jabber.org/protocol/muc#user"><status code="110"/></x></presence>`)
	if _, ok := find[RoomLeft](h.events.take()); !ok {
		t.Fatal("expected room left")
	}
}

func TestOtherResourceInRoomIsNotSelf(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.joinRoom(t, "me")

	h.deliver(t, `<presence from="`+testRoom+`/laptop"><x xmlns="http://jabber.org/protocol/muc#user">`+
		`<item jid="`+testFullJID+`pc"/></x></presence>`)
	if ev, ok := find[RoomMemberOnline](h.events.take()); !ok || ev.Nick != "laptop" {
		t.Fatalf("expected laptop online, got %+v", ev)
	}

	h.deliver(t, `<presence type="unavailable" from="`+testRoom+`/laptop"><x xmlns="http://jabber.org/protocol/muc#user">`+
		`<item jid="`+testFullJID+`pc"/></x></presence>`)
	events := h.events.take()
	if _, ok := find[RoomLeft](events); ok {
		t.Fatal("another occupant leaving removed our room")
	}
	if ev, ok := find[RoomMemberOffline](events); !ok || ev.Nick != "laptop" {
		t.Fatalf("expected laptop offline, got %+v", ev)
	}
	if nick, ok := h.client.RoomNick(testRoom); !ok || nick != "me" {
		t.Fatalf("expected to stay in the room as me, got %q %v", nick, ok)
	}
}

func TestRefusedJoin(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	if err := h.client.Join(testRoom, "me"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	h.transport.takeSent()
	h.deliver(t, `<presence type="error" from="`+testRoom+`/me"><error type="auth">`+
		`<registration-required xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></presence>`)

	events := h.events.take()
	if ev, ok := find[RoomLeft](events); !ok || ev.Room != testRoom {
		t.Fatalf("expected room left, got %v", events)
	}
	if _, ok := find[ErrorMessage](events); !ok {
		t.Fatalf("expected error message, got %v", events)
	}
	if _, ok := h.client.RoomNick(testRoom); ok {
		t.Fatal("refused room still registered")
	}
}

func TestLeaveRoom(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.joinRoom(t, "me")

	if err := h.client.LeaveRoom(testRoom); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	sent := h.transport.takeSent()
	if stanza.PresenceKindOf(sent[0]) != stanza.UnavailablePresence || sent[0].To() != testRoom+"/me" {
		t.Fatalf("unexpected leave presence %s", sent[0])
	}
	if len(h.client.Rooms()) != 1 {
		t.Fatal("room removed before confirmation")
	}

	h.deliver(t, `<presence type="unavailable" from="`+testRoom+`/me"><x xmlns="http://jabber.org/protocol/muc#user"><status code="110"/></x></presence>`)
	if _, ok := find[RoomLeft](h.events.take()); !ok {
		t.Fatal("expected room left")
	}
	if len(h.client.Rooms()) != 0 {
		t.Fatal("expected room removed")
	}
	if err := h.client.LeaveRoom(testRoom); err == nil {
		t.Fatal("expected error leaving unknown room")
	}
}

func TestContactPresence(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.deliver(t, `<iq type="set" id="p1"><query xmlns="jabber:iq:roster"><item jid="bob@example.com" subscription="both"/></query></iq>`)
	h.events.take()

	h.deliver(t, `<presence from="bob@example.com/phone"><show>away</show><status>out</status>`+
		`<query xmlns="jabber:iq:last" seconds="60"/></presence>`)
	online, ok := find[ContactOnline](h.events.take())
	if !ok || online.JID != "bob@example.com" || online.Show != "away" || online.Status != "out" {
		t.Fatalf("unexpected online event %+v", online)
	}
	if want := h.clock.t.Add(-time.Minute); !online.LastActivity.Equal(want) {
		t.Fatalf("expected last activity %v, got %v", want, online.LastActivity)
	}
	if c, _ := h.client.Contact("bob@example.com"); c.Show != "away" {
		t.Fatalf("expected away, got %q", c.Show)
	}

	h.deliver(t, `<presence type="unavailable" from="bob@example.com/phone"/>`)
	if _, ok := find[ContactOffline](h.events.take()); !ok {
		t.Fatal("expected offline event")
	}
	if c, _ := h.client.Contact("bob@example.com"); c.Show != "offline" || c.Status != "" {
		t.Fatalf("unexpected contact %+v", c)
	}

	h.deliver(t, `<presence from="me@example.com/laptop"/>`)
	if events := h.events.take(); len(events) != 0 {
		t.Fatalf("expected own presence suppressed, got %v", events)
	}
}

func TestSubscriptions(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.deliver(t, `<presence type="subscribe" from="carol@example.com"/>`)
	if ev, ok := find[Subscription](h.events.take()); !ok || ev.Action != presence.Subscribe {
		t.Fatalf("expected subscribe event, got %+v", ev)
	}
	if reqs := h.client.SubscriptionRequests(); len(reqs) != 1 || reqs[0] != "carol@example.com" {
		t.Fatalf("unexpected requests %v", reqs)
	}

	if err := h.client.Subscription("carol@example.com/phone", presence.Subscribed); err != nil {
		t.Fatalf("subscription failed: %v", err)
	}
	sent := h.transport.takeSent()
	if stanza.PresenceKindOf(sent[0]) != stanza.SubscribedPresence || sent[0].To() != "carol@example.com" {
		t.Fatalf("unexpected subscription presence %s", sent[0])
	}
	if len(h.client.SubscriptionRequests()) != 0 {
		t.Fatal("expected request cleared")
	}

	h.deliver(t, `<presence type="subscribe" from="dave@example.com"/>`)
	h.deliver(t, `<presence type="unsubscribed" from="dave@example.com"/>`)
	if len(h.client.SubscriptionRequests()) != 0 {
		t.Fatal("expected request cleared by unsubscribed")
	}
}

func TestRosterPush(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.deliver(t, `<iq type="set" id="push1" from="me@example.com"><query xmlns="jabber:iq:roster">`+
		`<item jid="bob@example.com" subscription="none" ask="subscribe"/></query></iq>`)
	ev, ok := find[ContactUpdated](h.events.take())
	if !ok || ev.Contact.JID != "bob@example.com" || !ev.Contact.PendingOut {
		t.Fatalf("unexpected update %+v", ev)
	}
	sent := h.transport.takeSent()
	if len(sent) != 1 || stanza.IQKindOf(sent[0]) != stanza.ResultIQ || sent[0].ID() != "push1" {
		t.Fatalf("expected push acknowledged, got %v", sent)
	}

	h.deliver(t, `<iq type="set" id="push2"><query xmlns="jabber:iq:roster">`+
		`<item jid="bob@example.com" subscription="remove"/></query></iq>`)
	if _, ok := find[ContactRemoved](h.events.take()); !ok {
		t.Fatal("expected contact removed")
	}
	if len(h.client.Contacts()) != 0 {
		t.Fatal("expected empty roster")
	}
	h.transport.takeSent()

	h.deliver(t, `<iq type="set" id="evil" from="mallory@evil.example"><query xmlns="jabber:iq:roster">`+
		`<item jid="mallory@evil.example" subscription="both"/></query></iq>`)
	if len(h.client.Contacts()) != 0 || len(h.transport.takeSent()) != 0 {
		t.Fatal("expected foreign push ignored")
	}
}

func TestPingAnswered(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.deliver(t, `<iq type="get" id="s2c1" from="example.com" to="`+testFullJID+`"><ping xmlns="urn:xmpp:ping"/></iq>`)
	sent := h.transport.takeSent()
	if len(sent) != 1 {
		t.Fatalf("expected pong, got %d stanzas", len(sent))
	}
	pong := sent[0]
	if stanza.IQKindOf(pong) != stanza.ResultIQ || pong.ID() != "s2c1" || pong.To() != "example.com" || pong.From() != testFullJID {
		t.Fatalf("unexpected pong %s", pong)
	}

	h.deliver(t, `<iq type="get" id="v1" from="example.com"><query xmlns="jabber:iq:version"/></iq>`)
	sent = h.transport.takeSent()
	if len(sent) != 1 || stanza.IQKindOf(sent[0]) != stanza.ErrorIQ {
		t.Fatalf("expected error reply, got %v", sent)
	}
}

func TestDiscoInfoAnswered(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	h.deliver(t, `<iq type="get" id="d1" from="bob@example.com/phone"><query xmlns="http://jabber.org/protocol/disco#info"/></iq>`)
	sent := h.transport.takeSent()
	if len(sent) != 1 || stanza.IQKindOf(sent[0]) != stanza.ResultIQ || sent[0].ID() != "d1" {
		t.Fatalf("expected disco result, got %v", sent)
	}
	query := sent[0].ChildNS("http://jabber.org/protocol/disco#info", "query")
	if query == nil {
		t.Fatalf("missing query in %s", sent[0])
	}
	var ping bool
	for _, f := range query.ChildrenNS("http://jabber.org/protocol/disco#info", "feature") {
		ping = ping || f.Attr("var") == "urn:xmpp:ping"
	}
	if !ping {
		t.Fatalf("ping not advertised in %s", sent[0])
	}
}

func TestAutoping(t *testing.T) {
	prefs := testSettings()
	prefs.Autoping = 30 * time.Second
	h := newHarness(t, prefs)
	h.login(t)

	h.clock.advance(29 * time.Second)
	h.client.ProcessEvents()
	if len(h.transport.takeSent()) != 0 {
		t.Fatal("ping sent too early")
	}

	h.clock.advance(time.Second)
	h.client.ProcessEvents()
	sent := h.transport.takeSent()
	if len(sent) != 1 || sent[0].ChildNS("urn:xmpp:ping", "ping") == nil {
		t.Fatalf("expected ping, got %v", sent)
	}

	h.client.SetAutoping(0)
	h.clock.advance(time.Hour)
	h.client.ProcessEvents()
	if len(h.transport.takeSent()) != 0 {
		t.Fatal("ping sent after autoping disabled")
	}
}

func TestIdleChatStates(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.client.Send("hello", "bob@example.com")
	h.transport.takeSent()

	h.clock.advance(chat.InactiveTimeout)
	h.client.ProcessEvents()
	sent := h.transport.takeSent()
	if len(sent) != 1 {
		t.Fatalf("expected inactive state, got %v", sent)
	}
	if state, _ := stanza.ChatStateOf(sent[0]); state != "inactive" {
		t.Fatalf("expected inactive, got %q", state)
	}

	h.clock.advance(time.Second)
	h.client.ProcessEvents()
	if len(h.transport.takeSent()) != 0 {
		t.Fatal("state sent twice")
	}
}

func TestTyping(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)

	// no session yet
	h.client.Typing("bob@example.com")
	if len(h.transport.takeSent()) != 0 {
		t.Fatal("composing sent without session")
	}

	h.client.Send("hello", "bob@example.com")
	h.transport.takeSent()
	h.client.Typing("bob@example.com")
	h.client.Typing("bob@example.com")
	sent := h.transport.takeSent()
	if len(sent) != 1 {
		t.Fatalf("expected one composing, got %d", len(sent))
	}
	if state, _ := stanza.ChatStateOf(sent[0]); state != "composing" {
		t.Fatalf("expected composing, got %q", state)
	}
}

func TestPausedAfterTyping(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.client.Send("hello", "bob@example.com")
	h.client.Typing("bob@example.com")
	h.transport.takeSent()

	h.clock.advance(chat.PausedTimeout)
	h.client.ProcessEvents()
	sent := h.transport.takeSent()
	if len(sent) != 1 {
		t.Fatalf("expected paused state, got %v", sent)
	}
	if state, _ := stanza.ChatStateOf(sent[0]); state != "paused" {
		t.Fatalf("expected paused, got %q", state)
	}
}

func TestEndChat(t *testing.T) {
	h := newHarness(t, testSettings())
	h.login(t)
	h.client.Send("hello", "bob@example.com")
	h.transport.takeSent()

	if err := h.client.EndChat("bob@example.com"); err != nil {
		t.Fatalf("end chat failed: %v", err)
	}
	sent := h.transport.takeSent()
	if len(sent) != 1 {
		t.Fatalf("expected gone state, got %v", sent)
	}
	if state, _ := stanza.ChatStateOf(sent[0]); state != "gone" {
		t.Fatalf("expected gone, got %q", state)
	}
	if h.client.chats.Exists("bob@example.com") {
		t.Fatal("session kept after end")
	}

	if err := h.client.EndChat("bob@example.com"); err != nil || len(h.transport.takeSent()) != 0 {
		t.Fatalf("expected ending an unknown chat to be silent, got %v", err)
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	var got []string
	bus.Subscribe(EventTyping, func(ev Event) { got = append(got, "typing:"+ev.(Typing).JID) })
	bus.SubscribeAll(func(ev Event) { got = append(got, "all:"+ev.Type().String()) })

	bus.Notify(Typing{JID: "bob@example.com"})
	bus.Notify(Gone{JID: "bob@example.com"})

	want := []string{"typing:bob@example.com", "all:typing", "all:gone"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	bus.Clear()
	bus.Notify(Typing{})
	if len(got) != len(want) {
		t.Fatal("handler called after clear")
	}
}
