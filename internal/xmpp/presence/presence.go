package presence

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/meszmate/jabber/internal/xmpp/jidutil"
)

// Priority bounds accepted by servers
const (
	PriorityMin = -128
	PriorityMax = 127
)

// Type is our own presence
type Type int

const (
	Offline Type = iota
	Online
	Away
	DND
	Chat
	XA
)

var typeNames = map[Type]string{
	Offline: "offline",
	Online:  "online",
	Away:    "away",
	DND:     "dnd",
	Chat:    "chat",
	XA:      "xa",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Show returns the value of the show element, empty for plain availability
func (t Type) Show() string {
	switch t {
	case Away, DND, Chat, XA:
		return typeNames[t]
	default:
		return ""
	}
}

// ParseType converts a user supplied name to a presence type
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return Offline, fmt.Errorf("unknown presence %q", s)
}

// ClampPriority returns p, or 0 when it is outside the valid range
func ClampPriority(p int) int {
	if p < PriorityMin || p > PriorityMax {
		return 0
	}
	return p
}

// SubscriptionAction is an answer to, or a request for, a subscription
type SubscriptionAction int

const (
	Subscribe SubscriptionAction = iota
	Subscribed
	Unsubscribed
)

func (a SubscriptionAction) String() string {
	switch a {
	case Subscribe:
		return "subscribe"
	case Subscribed:
		return "subscribed"
	case Unsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// ParseSubscriptionAction maps the /sub command verbs
func ParseSubscriptionAction(s string) (SubscriptionAction, error) {
	switch strings.ToLower(s) {
	case "request", "subscribe":
		return Subscribe, nil
	case "allow", "subscribed":
		return Subscribed, nil
	case "deny", "unsubscribed":
		return Unsubscribed, nil
	default:
		return Subscribe, fmt.Errorf("unknown subscription action %q", s)
	}
}

// Requests holds the bare JIDs that asked to subscribe to us
type Requests struct {
	mu   sync.RWMutex
	jids map[string]struct{}
}

// NewRequests creates an empty request set
func NewRequests() *Requests {
	return &Requests{jids: make(map[string]struct{})}
}

// Add records a request
func (r *Requests) Add(jid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jids[jidutil.Bare(jid)] = struct{}{}
}

// Remove drops a request
func (r *Requests) Remove(jid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jids, jidutil.Bare(jid))
}

// Contains reports whether jid has a pending request
func (r *Requests) Contains(jid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jids[jidutil.Bare(jid)]
	return ok
}

// List returns the pending requests in ascending order
func (r *Requests) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.jids))
	for jid := range r.jids {
		out = append(out, jid)
	}
	sort.Strings(out)
	return out
}

// Clear drops every request
func (r *Requests) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jids = make(map[string]struct{})
}
