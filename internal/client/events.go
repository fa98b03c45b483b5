package client

import (
	"sync"
	"time"

	"github.com/meszmate/jabber/internal/xmpp/presence"
	"github.com/meszmate/jabber/internal/xmpp/roster"
)

// EventType represents the type of event
type EventType int

const (
	EventLoginSuccess EventType = iota
	EventLoginFailed
	EventLostConnection
	EventDisconnected
	EventRosterReceived
	EventContactUpdated
	EventContactRemoved
	EventContactOnline
	EventContactOffline
	EventSubscription
	EventIncomingMessage
	EventDelayedMessage
	EventMessageSent
	EventTyping
	EventGone
	EventErrorMessage
	EventRoomSubject
	EventRoomBroadcast
	EventRoomMessage
	EventRoomHistory
	EventRoomRosterComplete
	EventRoomLeft
	EventRoomNickChange
	EventRoomMemberOnline
	EventRoomMemberOffline
	EventRoomMemberPresence
	EventRoomMemberNickChange
)

var eventNames = map[EventType]string{
	EventLoginSuccess:         "login_success",
	EventLoginFailed:          "login_failed",
	EventLostConnection:       "lost_connection",
	EventDisconnected:         "disconnected",
	EventRosterReceived:       "roster_received",
	EventContactUpdated:       "contact_updated",
	EventContactRemoved:       "contact_removed",
	EventContactOnline:        "contact_online",
	EventContactOffline:       "contact_offline",
	EventSubscription:         "subscription",
	EventIncomingMessage:      "incoming_message",
	EventDelayedMessage:       "delayed_message",
	EventMessageSent:          "message_sent",
	EventTyping:               "typing",
	EventGone:                 "gone",
	EventErrorMessage:         "error_message",
	EventRoomSubject:          "room_subject",
	EventRoomBroadcast:        "room_broadcast",
	EventRoomMessage:          "room_message",
	EventRoomHistory:          "room_history",
	EventRoomRosterComplete:   "room_roster_complete",
	EventRoomLeft:             "room_left",
	EventRoomNickChange:       "room_nick_change",
	EventRoomMemberOnline:     "room_member_online",
	EventRoomMemberOffline:    "room_member_offline",
	EventRoomMemberPresence:   "room_member_presence",
	EventRoomMemberNickChange: "room_member_nick_change",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is something the client reports to the user interface
type Event interface {
	Type() EventType
}

// LoginSuccess is published once the session is negotiated
type LoginSuccess struct {
	JID       string
	AltDomain string
	Account   string
}

// LoginFailed is published when a connection attempt never reached Connected
type LoginFailed struct {
	Err error
}

// LostConnection is published when an established session drops
type LostConnection struct {
	Err error
}

// Disconnected is published after a requested disconnect completes
type Disconnected struct{}

// RosterReceived carries the initial contact list
type RosterReceived struct {
	Contacts []roster.Contact
}

// ContactUpdated is published for roster pushes that add or modify a contact
type ContactUpdated struct {
	Contact roster.Contact
}

// ContactRemoved is published for roster pushes that remove a contact
type ContactRemoved struct {
	JID string
}

type ContactOnline struct {
	JID          string
	Show         string
	Status       string
	LastActivity time.Time
}

type ContactOffline struct {
	JID    string
	Status string
}

// Subscription is an inbound subscription request or answer
type Subscription struct {
	JID    string
	Action presence.SubscriptionAction
}

// IncomingMessage is a live chat message. Private is set for messages from
// room occupants, in which case From is the full room/nick JID.
type IncomingMessage struct {
	From    string
	Body    string
	Private bool
	Time    time.Time
}

// DelayedMessage is a chat message delivered from offline storage
type DelayedMessage struct {
	From    string
	Body    string
	Private bool
	Stamp   time.Time
}

type MessageSent struct {
	To   string
	Body string
	Time time.Time
}

type Typing struct {
	JID string
}

type Gone struct {
	JID string
}

// ErrorMessage is an error stanza returned by the server or a peer
type ErrorMessage struct {
	From string
	Text string
}

type RoomSubject struct {
	Room    string
	Nick    string
	Subject string
}

// RoomBroadcast is a message from the room itself rather than an occupant
type RoomBroadcast struct {
	Room string
	Body string
}

type RoomMessage struct {
	Room string
	Nick string
	Body string
	Time time.Time
}

// RoomHistory is a room message replayed on join
type RoomHistory struct {
	Room  string
	Nick  string
	Body  string
	Stamp time.Time
}

type RoomRosterComplete struct {
	Room string
}

type RoomLeft struct {
	Room string
}

// RoomNickChange reports that our own rename was confirmed
type RoomNickChange struct {
	Room string
	Nick string
}

type RoomMemberOnline struct {
	Room   string
	Nick   string
	Show   string
	Status string
}

type RoomMemberOffline struct {
	Room   string
	Nick   string
	Status string
}

type RoomMemberPresence struct {
	Room   string
	Nick   string
	Show   string
	Status string
}

type RoomMemberNickChange struct {
	Room    string
	OldNick string
	NewNick string
}

func (LoginSuccess) Type() EventType         { return EventLoginSuccess }
func (LoginFailed) Type() EventType          { return EventLoginFailed }
func (LostConnection) Type() EventType       { return EventLostConnection }
func (Disconnected) Type() EventType         { return EventDisconnected }
func (RosterReceived) Type() EventType       { return EventRosterReceived }
func (ContactUpdated) Type() EventType       { return EventContactUpdated }
func (ContactRemoved) Type() EventType       { return EventContactRemoved }
func (ContactOnline) Type() EventType        { return EventContactOnline }
func (ContactOffline) Type() EventType       { return EventContactOffline }
func (Subscription) Type() EventType         { return EventSubscription }
func (IncomingMessage) Type() EventType      { return EventIncomingMessage }
func (DelayedMessage) Type() EventType       { return EventDelayedMessage }
func (MessageSent) Type() EventType          { return EventMessageSent }
func (Typing) Type() EventType               { return EventTyping }
func (Gone) Type() EventType                 { return EventGone }
func (ErrorMessage) Type() EventType         { return EventErrorMessage }
func (RoomSubject) Type() EventType          { return EventRoomSubject }
func (RoomBroadcast) Type() EventType        { return EventRoomBroadcast }
func (RoomMessage) Type() EventType          { return EventRoomMessage }
func (RoomHistory) Type() EventType          { return EventRoomHistory }
func (RoomRosterComplete) Type() EventType   { return EventRoomRosterComplete }
func (RoomLeft) Type() EventType             { return EventRoomLeft }
func (RoomNickChange) Type() EventType       { return EventRoomNickChange }
func (RoomMemberOnline) Type() EventType     { return EventRoomMemberOnline }
func (RoomMemberOffline) Type() EventType    { return EventRoomMemberOffline }
func (RoomMemberPresence) Type() EventType   { return EventRoomMemberPresence }
func (RoomMemberNickChange) Type() EventType { return EventRoomMemberNickChange }

// Notifier receives client events. Calls are synchronous and made from
// inside ProcessEvents or a public client operation.
type Notifier interface {
	Notify(Event)
}

// EventHandler is a function that handles events
type EventHandler func(Event)

// EventBus handles event subscription and publishing
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
	all      []EventHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe subscribes to an event type
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll subscribes to every event type
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish delivers an event to all subscribers in subscription order.
// Handlers run on the caller's goroutine.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[event.Type()]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Notify implements Notifier
func (b *EventBus) Notify(event Event) {
	b.Publish(event)
}

// Unsubscribe removes all handlers for an event type
func (b *EventBus) Unsubscribe(eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, eventType)
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]EventHandler)
	b.all = nil
}
