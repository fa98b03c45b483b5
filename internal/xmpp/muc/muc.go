package muc

import (
	"errors"
	"sort"
	"sync"

	"github.com/meszmate/jabber/internal/autocomplete"
	"github.com/meszmate/jabber/internal/xmpp/jidutil"
)

// ErrRoomNotFound is returned by operations on a room we have not joined
var ErrRoomNotFound = errors.New("room not found")

// Occupant represents a room occupant
type Occupant struct {
	Nick   string
	Show   string
	Status string
}

// Room represents a joined MUC room
type Room struct {
	JID               string
	Nick              string
	Subject           string
	RosterReceived    bool
	PendingNickChange bool
	Occupants         map[string]*Occupant

	// new nick -> old nick for renames announced but not yet completed
	pendingRenames map[string]string
	nicks          *autocomplete.Completer
}

// Manager manages MUC rooms keyed by bare room JID
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewManager creates a new MUC manager
func NewManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

func (m *Manager) room(jid string) (*Room, error) {
	room, ok := m.rooms[jidutil.Bare(jid)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Join registers a room under nick; joining again replaces the room state
func (m *Manager) Join(room, nick string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[room] = &Room{
		JID:            room,
		Nick:           nick,
		Occupants:      make(map[string]*Occupant),
		pendingRenames: make(map[string]string),
		nicks:          autocomplete.New(),
	}
}

// Leave removes a room and its occupants
func (m *Manager) Leave(room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, room)
}

// IsActive reports whether a room, given as bare or room/nick JID, is joined
func (m *Manager) IsActive(jid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.room(jid)
	return err == nil
}

// ActiveRooms returns the joined room JIDs in ascending order
func (m *Manager) ActiveRooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]string, 0, len(m.rooms))
	for jid := range m.rooms {
		rooms = append(rooms, jid)
	}
	sort.Strings(rooms)
	return rooms
}

// Nick returns our nick in a room
func (m *Manager) Nick(room string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.room(room)
	if err != nil {
		return "", false
	}
	return r.Nick, true
}

// SetPendingNickChange marks that we asked the room for a new nick
func (m *Manager) SetPendingNickChange(room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return err
	}
	r.PendingNickChange = true
	return nil
}

// IsPendingNickChange reports whether our own nick change awaits confirmation
func (m *Manager) IsPendingNickChange(room string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.room(room)
	return err == nil && r.PendingNickChange
}

// ClearPendingNickChange drops a pending nick change without applying it
func (m *Manager) ClearPendingNickChange(room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return err
	}
	r.PendingNickChange = false
	return nil
}

// CompleteNickChange applies our confirmed new nick
func (m *Manager) CompleteNickChange(room, nick string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return err
	}
	r.Nick = nick
	r.PendingNickChange = false
	return nil
}

// AddOccupant adds or updates an occupant and reports whether it was new
func (m *Manager) AddOccupant(room, nick, show, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return false, err
	}

	if o, ok := r.Occupants[nick]; ok {
		o.Show = show
		o.Status = status
		return false, nil
	}
	r.Occupants[nick] = &Occupant{Nick: nick, Show: show, Status: status}
	r.nicks.Add(nick)
	return true, nil
}

// RemoveOccupant removes an occupant
func (m *Manager) RemoveOccupant(room, nick string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return err
	}
	delete(r.Occupants, nick)
	r.nicks.Remove(nick)
	return nil
}

// Occupant returns a copy of an occupant
func (m *Manager) Occupant(room, nick string) (Occupant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.room(room)
	if err != nil {
		return Occupant{}, false
	}
	o, ok := r.Occupants[nick]
	if !ok {
		return Occupant{}, false
	}
	return *o, true
}

// HasOccupant reports whether nick is in the room roster
func (m *Manager) HasOccupant(room, nick string) bool {
	_, ok := m.Occupant(room, nick)
	return ok
}

// Occupants returns the room roster ordered by nick
func (m *Manager) Occupants(room string) ([]Occupant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.room(room)
	if err != nil {
		return nil, err
	}

	out := make([]Occupant, 0, len(r.Occupants))
	for _, nick := range r.nicks.Items() {
		out = append(out, *r.Occupants[nick])
	}
	return out, nil
}

// SetRosterReceived marks the end of the initial presence burst
func (m *Manager) SetRosterReceived(room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return err
	}
	r.RosterReceived = true
	return nil
}

// RosterReceived reports whether the initial presence burst has completed
func (m *Manager) RosterReceived(room string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.room(room)
	return err == nil && r.RosterReceived
}

// SetOccupantPendingNickChange stages a rename announced by the room
func (m *Manager) SetOccupantPendingNickChange(room, newNick, oldNick string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return err
	}
	r.pendingRenames[newNick] = oldNick
	return nil
}

// CompleteOccupantNickChange finishes a staged rename once the new nick is seen.
// The old entry moves to the new nick with its show and status; the old nick
// is returned. ok is false when no rename to newNick was staged.
func (m *Manager) CompleteOccupantNickChange(room, newNick string) (old string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return "", false
	}

	old, ok = r.pendingRenames[newNick]
	if !ok {
		return "", false
	}
	delete(r.pendingRenames, newNick)

	o, found := r.Occupants[old]
	if !found {
		o = &Occupant{}
	}
	delete(r.Occupants, old)
	r.nicks.Remove(old)

	o.Nick = newNick
	r.Occupants[newNick] = o
	r.nicks.Add(newNick)
	return old, true
}

// SetSubject stores the room subject
func (m *Manager) SetSubject(room, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return err
	}
	r.Subject = subject
	return nil
}

// Subject returns the room subject
func (m *Manager) Subject(room string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.room(room)
	if err != nil {
		return ""
	}
	return r.Subject
}

// CompleteNick cycles through occupant nicks starting with prefix
func (m *Manager) CompleteNick(room, prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(room)
	if err != nil {
		return ""
	}
	return r.nicks.Complete(prefix)
}

// ResetNickSearch restarts nick completion for a room
func (m *Manager) ResetNickSearch(room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, err := m.room(room); err == nil {
		r.nicks.Reset()
	}
}

// Clear leaves every room
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = make(map[string]*Room)
}
