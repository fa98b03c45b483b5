package roster

import (
	"sync"

	"github.com/meszmate/jabber/internal/autocomplete"
	"github.com/meszmate/jabber/internal/xmpp/jidutil"
)

// Subscription represents the subscription state
type Subscription string

const (
	SubscriptionNone   Subscription = "none"
	SubscriptionTo     Subscription = "to"
	SubscriptionFrom   Subscription = "from"
	SubscriptionBoth   Subscription = "both"
	SubscriptionRemove Subscription = "remove"
)

// Show values used when the stanza itself carries none
const (
	ShowOnline  = "online"
	ShowOffline = "offline"
)

// Contact represents a roster entry keyed by bare JID
type Contact struct {
	JID          string
	Name         string
	Show         string
	Status       string
	Subscription Subscription
	PendingOut   bool
}

// Manager keeps the contact list in ascending JID order
type Manager struct {
	mu       sync.RWMutex
	contacts map[string]*Contact
	order    *autocomplete.Completer
}

// NewManager creates a new roster manager
func NewManager() *Manager {
	return &Manager{
		contacts: make(map[string]*Contact),
		order:    autocomplete.New(),
	}
}

// Add inserts a contact. It returns false without touching the list when the
// JID is already present. An empty show defaults to online.
func (m *Manager) Add(jid, name, show, status string, sub Subscription, pendingOut bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	bare := jidutil.Bare(jid)
	if _, ok := m.contacts[bare]; ok {
		return false
	}
	if show == "" {
		show = ShowOnline
	}

	m.contacts[bare] = &Contact{
		JID:          bare,
		Name:         name,
		Show:         show,
		Status:       status,
		Subscription: sub,
		PendingOut:   pendingOut,
	}
	m.order.Add(bare)
	return true
}

// Update replaces show and status; empty values clear the field
func (m *Manager) Update(jid, show, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contacts[jidutil.Bare(jid)]
	if !ok {
		return false
	}
	c.Show = show
	c.Status = status
	return true
}

// UpdateSubscription applies a roster push, adding an offline contact if needed
func (m *Manager) UpdateSubscription(jid string, sub Subscription, pendingOut bool) {
	m.mu.Lock()
	c, ok := m.contacts[jidutil.Bare(jid)]
	if ok {
		c.Subscription = sub
		c.PendingOut = pendingOut
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.Add(jid, "", ShowOffline, "", sub, pendingOut)
}

// Remove removes a contact
func (m *Manager) Remove(jid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	bare := jidutil.Bare(jid)
	if _, ok := m.contacts[bare]; !ok {
		return false
	}
	delete(m.contacts, bare)
	m.order.Remove(bare)
	return true
}

// Get returns a copy of a contact
func (m *Manager) Get(jid string) (Contact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contacts[jidutil.Bare(jid)]
	if !ok {
		return Contact{}, false
	}
	return *c, true
}

// All returns every contact in ascending JID order
func (m *Manager) All() []Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Contact, 0, len(m.contacts))
	for _, jid := range m.order.Items() {
		out = append(out, *m.contacts[jid])
	}
	return out
}

// Len returns the number of contacts
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contacts)
}

// FindPrefix returns the next contact JID starting with prefix, cycling on
// repeated calls until ResetSearch
func (m *Manager) FindPrefix(prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Complete(prefix)
}

// ResetSearch restarts the FindPrefix cycle
func (m *Manager) ResetSearch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Reset()
}

// Clear removes every contact
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = make(map[string]*Contact)
	m.order.Clear()
}
