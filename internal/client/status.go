package client

// ConnStatus is the state of the single connection a Client owns
type ConnStatus int

const (
	StatusUndefined ConnStatus = iota
	StatusStarted
	StatusConnecting
	StatusConnected
	StatusDisconnecting
	StatusDisconnected
)

func (s ConnStatus) String() string {
	switch s {
	case StatusUndefined:
		return "undefined"
	case StatusStarted:
		return "started"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Account names the credentials used for a connection
type Account struct {
	Name     string
	JID      string
	Server   string
	Port     int
	Resource string
}

type savedCredentials struct {
	account   string
	jid       string
	password  string
	altDomain string
	port      int
	resource  string
}
