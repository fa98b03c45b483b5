package client

import "time"

// Preferences is the read-only view of user settings the client consults
type Preferences interface {
	// ReconnectInterval is the delay before reconnecting; 0 disables
	ReconnectInterval() time.Duration
	// AutopingInterval is the period of server pings; 0 disables
	AutopingInterval() time.Duration
	// Priority is the outgoing presence priority
	Priority() int
	ChatStates() bool
	TypingNotifications() bool
	// GoneTimeout is the idle time after which a gone state is sent; 0 disables
	GoneTimeout() time.Duration
	// DisconnectTimeout bounds the wait for the server's close; 0 waits forever
	DisconnectTimeout() time.Duration
}

// Settings is a fixed set of preferences
type Settings struct {
	Reconnect      time.Duration
	Autoping       time.Duration
	Prio           int
	States         bool
	Typing         bool
	Gone           time.Duration
	DisconnectWait time.Duration
}

// DefaultSettings returns the preferences used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		Reconnect:      30 * time.Second,
		Autoping:       60 * time.Second,
		States:         true,
		Typing:         true,
		Gone:           10 * time.Minute,
		DisconnectWait: 5 * time.Second,
	}
}

func (s Settings) ReconnectInterval() time.Duration { return s.Reconnect }
func (s Settings) AutopingInterval() time.Duration  { return s.Autoping }
func (s Settings) Priority() int                    { return s.Prio }
func (s Settings) ChatStates() bool                 { return s.States }
func (s Settings) TypingNotifications() bool        { return s.Typing }
func (s Settings) GoneTimeout() time.Duration       { return s.Gone }
func (s Settings) DisconnectTimeout() time.Duration { return s.DisconnectWait }
