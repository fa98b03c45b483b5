package chat

import (
	"sort"
	"sync"
	"time"
)

// State is the chat state we last entered for a peer
type State string

const (
	StateStarted   State = ""
	StateActive    State = "active"
	StateComposing State = "composing"
	StatePaused    State = "paused"
	StateInactive  State = "inactive"
	StateGone      State = "gone"
)

// Idle thresholds for local chat state transitions
const (
	PausedTimeout   = 10 * time.Second
	InactiveTimeout = 30 * time.Second
)

// Session tracks chat state support and our own state for one peer
type Session struct {
	JID               string
	RecipientSupports bool
	State             State
	Sent              bool
	lastActivity      time.Time
}

// Manager manages chat sessions keyed by bare JID, or by full room/nick
// JID for private room conversations
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	now         func() time.Time
	goneTimeout time.Duration
}

// NewManager creates a new chat manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetGoneTimeout sets how long a session may idle before it is gone; 0 disables
func (m *Manager) SetGoneTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goneTimeout = d
}

// Start creates a session, replacing any existing one
func (m *Manager) Start(jid string, recipientSupports bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[jid] = &Session{
		JID:               jid,
		RecipientSupports: recipientSupports,
		State:             StateStarted,
	}
}

// Exists reports whether a session has been started
func (m *Manager) Exists(jid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[jid]
	return ok
}

// SetRecipientSupports records whether the peer sends chat states
func (m *Manager) SetRecipientSupports(jid string, supports bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[jid]; ok {
		s.RecipientSupports = supports
	}
}

// RecipientSupports reports whether the peer is known to support chat states
func (m *Manager) RecipientSupports(jid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[jid]
	return ok && s.RecipientSupports
}

func (m *Manager) enter(jid string, state State) {
	s, ok := m.sessions[jid]
	if !ok {
		return
	}
	if s.State != state {
		s.Sent = false
	}
	s.State = state
}

// SetActive marks that we just sent a message
func (m *Manager) SetActive(jid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enter(jid, StateActive)
	if s, ok := m.sessions[jid]; ok {
		s.lastActivity = m.now()
		s.Sent = true
	}
}

// SetComposing marks that we are typing to the peer
func (m *Manager) SetComposing(jid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enter(jid, StateComposing)
	if s, ok := m.sessions[jid]; ok {
		s.lastActivity = m.now()
	}
}

// NoActivity advances the idle transitions: composing turns paused, any
// recent activity turns inactive and finally gone.
func (m *Manager) NoActivity(jid string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[jid]
	if !ok || s.lastActivity.IsZero() || s.State == StateGone {
		return
	}

	idle := m.now().Sub(s.lastActivity)
	switch {
	case m.goneTimeout > 0 && idle >= m.goneTimeout:
		m.enter(jid, StateGone)
	case idle >= InactiveTimeout:
		m.enter(jid, StateInactive)
	case s.State == StateComposing && idle >= PausedTimeout:
		m.enter(jid, StatePaused)
	}
}

func (m *Manager) is(jid string, state State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[jid]
	return ok && s.State == state
}

// IsComposing reports whether we are typing to the peer
func (m *Manager) IsComposing(jid string) bool { return m.is(jid, StateComposing) }

// IsPaused reports whether typing stopped
func (m *Manager) IsPaused(jid string) bool { return m.is(jid, StatePaused) }

// IsInactive reports whether the session has been idle
func (m *Manager) IsInactive(jid string) bool { return m.is(jid, StateInactive) }

// IsGone reports whether the session idled past the gone timeout
func (m *Manager) IsGone(jid string) bool { return m.is(jid, StateGone) }

// SetSent records that the current state was sent to the peer
func (m *Manager) SetSent(jid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[jid]; ok {
		s.Sent = true
	}
}

// Sent reports whether the current state was already sent
func (m *Manager) Sent(jid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[jid]
	return ok && s.Sent
}

// Get returns a copy of the session
func (m *Manager) Get(jid string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[jid]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// JIDs returns the keys of all sessions in ascending order
func (m *Manager) JIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.sessions))
	for jid := range m.sessions {
		out = append(out, jid)
	}
	sort.Strings(out)
	return out
}

// Delete ends a session
func (m *Manager) Delete(jid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, jid)
}

// Clear ends every session
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
}
