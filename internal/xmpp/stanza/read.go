package stanza

import (
	"strconv"
	"strings"
	"time"

	"mellium.im/xmpp/delay"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/ping"
	"mellium.im/xmpp/roster"
)

const legacyDelayLayout = "20060102T15:04:05"

// Chat state element names
var chatStates = []string{"active", "composing", "paused", "inactive", "gone"}

// Delay returns the timestamp of a delayed delivery element, if any
func Delay(e *Element) (time.Time, bool) {
	if d := e.ChildNS(delay.NS, "delay"); d != nil {
		stamp, err := time.Parse(time.RFC3339, strings.TrimSpace(d.Attr("stamp")))
		if err == nil {
			return stamp, true
		}
	}
	if x := e.ChildNS(NSLegacyDelay, "x"); x != nil {
		stamp, err := time.Parse(legacyDelayLayout, strings.TrimSpace(x.Attr("stamp")))
		if err == nil {
			return stamp.UTC(), true
		}
	}
	return time.Time{}, false
}

// ChatStateOf returns the name of the chat state child, if any
func ChatStateOf(e *Element) (string, bool) {
	for _, name := range chatStates {
		if e.ChildNS(NSChatStates, name) != nil {
			return name, true
		}
	}
	return "", false
}

// HasChatState reports whether the stanza carries any chat state
func HasChatState(e *Element) bool {
	_, ok := ChatStateOf(e)
	return ok
}

func mucUser(e *Element) *Element {
	return e.ChildNS(muc.NSUser, "x")
}

func hasStatusCode(e *Element, code string) bool {
	for _, s := range mucUser(e).ChildrenNS(muc.NSUser, "status") {
		if s.Attr("code") == code {
			return true
		}
	}
	return false
}

// IsMUCSelfPresence reports whether a room presence refers to our own occupant.
// Servers mark it with status 110; older ones only echo our full JID in the item.
func IsMUCSelfPresence(e *Element, selfJID string) bool {
	x := mucUser(e)
	if x == nil {
		return false
	}
	if hasStatusCode(e, "110") {
		return true
	}
	if selfJID == "" {
		return false
	}
	for _, item := range x.ChildrenNS(muc.NSUser, "item") {
		if item.Attr("jid") == selfJID {
			return true
		}
	}
	return false
}

// IsRoomNickChange reports whether an unavailable room presence announces a rename
func IsRoomNickChange(e *Element) bool {
	return PresenceKindOf(e) == UnavailablePresence && hasStatusCode(e, "303")
}

// NewNick returns the nick announced in a rename presence
func NewNick(e *Element) string {
	item := mucUser(e).ChildNS(muc.NSUser, "item")
	return item.Attr("nick")
}

// IdleSeconds returns the seconds of a last activity query, or 0
func IdleSeconds(e *Element) int {
	q := e.ChildNS(NSLastActivity, "query")
	if q == nil {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(q.Attr("seconds")))
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

// Show returns the show child text
func Show(e *Element) string {
	return strings.TrimSpace(e.ChildText("show"))
}

// Status returns the status child text
func Status(e *Element) string {
	return e.ChildText("status")
}

// Body returns the body text and whether a body element exists
func Body(e *Element) (string, bool) {
	b := e.Child("body")
	if b == nil {
		return "", false
	}
	return b.Text, true
}

// Subject returns the subject text and whether a subject element exists
func Subject(e *Element) (string, bool) {
	s := e.Child("subject")
	if s == nil {
		return "", false
	}
	return s.Text, true
}

// ErrorText describes an error stanza: the text child if present, otherwise
// the name of the defined condition
func ErrorText(e *Element) string {
	errEl := e.Child("error")
	if errEl == nil {
		return ""
	}
	if text := errEl.Child("text"); text != nil && text.Text != "" {
		return text.Text
	}
	for _, c := range errEl.Children {
		if c.Name.Local != "text" {
			return c.Name.Local
		}
	}
	return ""
}

// RosterItem is one item of a roster query
type RosterItem struct {
	JID          string
	Name         string
	Subscription string
	Ask          string
}

// RosterItems returns the items of a roster query child. ok is false when
// the stanza carries no roster query.
func RosterItems(e *Element) (items []RosterItem, ok bool) {
	q := e.ChildNS(roster.NS, "query")
	if q == nil {
		return nil, false
	}
	for _, item := range q.ChildrenNS(roster.NS, "item") {
		j := item.Attr("jid")
		if j == "" {
			continue
		}
		items = append(items, RosterItem{
			JID:          j,
			Name:         item.Attr("name"),
			Subscription: item.Attr("subscription"),
			Ask:          item.Attr("ask"),
		})
	}
	return items, true
}

// IsPing reports whether an iq carries a ping request
func IsPing(e *Element) bool {
	return e.ChildNS(ping.NS, "ping") != nil
}
