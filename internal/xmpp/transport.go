// Package xmpp provides the transport the session controller drives: an
// asynchronous XMPP connection whose events are delivered only when the
// caller asks for them.
package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/jabber/internal/logging"
	"github.com/meszmate/jabber/internal/xmpp/stanza"
)

// ErrNotConnected is returned when sending without a negotiated session
var ErrNotConnected = errors.New("not connected")

const (
	defaultPort    = 5222
	dialTimeout    = 30 * time.Second
	eventQueueSize = 256
	maxBatch       = 64
)

// negotiateTimeout bounds stream negotiation after the TCP connect
var negotiateTimeout = dialTimeout

// EventKind identifies a transport event
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventStanza
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventStanza:
		return "stanza"
	default:
		return "unknown"
	}
}

// Event is a connection state change or an inbound stanza
type Event struct {
	Kind   EventKind
	Stanza *stanza.Element
	Err    error
}

// ConnectConfig contains what is needed to open a session
type ConnectConfig struct {
	JID        string
	Password   string
	AltDomain  string
	Port       int
	Resource   string
	DisableTLS bool
}

// Transport is the connection the session controller drives.
// Handlers passed to Connect run only inside RunOnce.
type Transport interface {
	Connect(cfg ConnectConfig, handler func(Event)) error
	Send(ctx context.Context, r xml.TokenReader) error
	RunOnce(timeout time.Duration)
	Disconnect() error
	Release()
	JID() string
}

// Conn is a Transport backed by a mellium session
type Conn struct {
	mu      sync.Mutex
	session *xmpp.Session
	netConn net.Conn
	jid     string
	events  chan Event
	handler func(Event)
	cancel  context.CancelFunc
	log     *logging.Logger
}

// NewConn creates an unconnected transport
func NewConn(log *logging.Logger) *Conn {
	if log == nil {
		log = logging.Default()
	}
	return &Conn{log: log}
}

// Connect starts dialing and negotiating in the background. The outcome is
// reported as an EventConnected or EventDisconnected from RunOnce.
func (c *Conn) Connect(cfg ConnectConfig, handler func(Event)) error {
	addr, err := jid.Parse(cfg.JID)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}
	if cfg.Resource != "" {
		addr, err = addr.WithResource(cfg.Resource)
		if err != nil {
			return fmt.Errorf("invalid resource: %w", err)
		}
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, eventQueueSize)
	c.events = events
	c.handler = handler
	c.cancel = cancel
	c.jid = ""
	c.mu.Unlock()

	go c.run(ctx, addr, cfg, events)
	return nil
}

func (c *Conn) run(ctx context.Context, addr jid.JID, cfg ConnectConfig, events chan<- Event) {
	push := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	// the final event must survive a cancelled context so that an explicit
	// disconnect during login still completes
	finish := func(err error) {
		select {
		case events <- Event{Kind: EventDisconnected, Err: err}:
		default:
			c.log.Warn("event queue full, dropping disconnect")
		}
	}

	session, conn, err := c.negotiate(ctx, addr, cfg)
	if err != nil {
		c.log.Warn("login to %s failed: %v", addr, err)
		finish(err)
		return
	}

	c.mu.Lock()
	c.session = session
	c.netConn = conn
	c.jid = session.LocalAddr().String()
	c.mu.Unlock()

	c.log.Info("connected as %s", session.LocalAddr())
	push(Event{Kind: EventConnected})

	r := session.TokenReader()
	err = readStanzas(r, func(el *stanza.Element) {
		push(Event{Kind: EventStanza, Stanza: el})
	})
	r.Close()
	conn.Close()

	c.mu.Lock()
	if c.session == session {
		c.session = nil
		c.netConn = nil
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("stream ended: %v", err)
	}
	finish(err)
}

func (c *Conn) negotiate(ctx context.Context, addr jid.JID, cfg ConnectConfig) (*xmpp.Session, net.Conn, error) {
	server := cfg.AltDomain
	if server == "" {
		server = addr.Domainpart()
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(server, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial server: %w", err)
	}

	tlsConfig := &tls.Config{
		ServerName: addr.Domainpart(),
		MinVersion: tls.VersionTLS12,
	}

	var features []xmpp.StreamFeature
	var state xmpp.SessionState
	if cfg.DisableTLS {
		// plaintext streams are only accepted by the SASL feature when the
		// session already counts as secure
		state = xmpp.Secure
	} else {
		features = append(features, xmpp.StartTLS(tlsConfig))
	}
	features = append(features,
		xmpp.SASL("", cfg.Password, sasl.ScramSha256Plus, sasl.ScramSha256, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
		xmpp.BindResource(),
	)

	negotiator := xmpp.NewNegotiator(func(_ *xmpp.Session, _ *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{Features: features}
	})

	negotiateCtx, cancel := context.WithTimeout(ctx, negotiateTimeout)
	defer cancel()
	deadline, _ := negotiateCtx.Deadline()
	conn.SetDeadline(deadline)

	session, err := xmpp.NewSession(negotiateCtx, addr.Domain(), addr, conn, state, negotiator)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to negotiate session: %w", err)
	}
	conn.SetDeadline(time.Time{})
	return session, conn, nil
}

// readStanzas decodes top level elements from r until the stream ends.
// A clean end of stream returns nil.
func readStanzas(r xml.TokenReader, emit func(*stanza.Element)) error {
	for {
		tok, err := r.Token()
		if tok == nil && err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if start, ok := tok.(xml.StartElement); ok {
			el, derr := stanza.Decode(r, start)
			if derr != nil {
				return derr
			}
			emit(el)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// RunOnce waits up to timeout for the first pending event and then handles
// whatever else is already queued, up to a fixed batch size
func (c *Conn) RunOnce(timeout time.Duration) {
	c.mu.Lock()
	events := c.events
	c.mu.Unlock()
	if events == nil {
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-events:
		c.dispatch(ev)
	case <-timer.C:
		return
	}

	for i := 1; i < maxBatch; i++ {
		select {
		case ev := <-events:
			c.dispatch(ev)
		default:
			return
		}
	}
}

func (c *Conn) dispatch(ev Event) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
}

// Send writes one stanza to the server
func (c *Conn) Send(ctx context.Context, r xml.TokenReader) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return ErrNotConnected
	}
	return session.Send(ctx, r)
}

// Disconnect closes the output stream. The server's reply ends the input
// stream, which is reported as EventDisconnected.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	session := c.session
	cancel := c.cancel
	c.mu.Unlock()

	if session == nil {
		// still dialing or negotiating
		if cancel != nil {
			cancel()
		}
		return nil
	}
	return session.Close()
}

// Release drops the connection and any undelivered events
func (c *Conn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.netConn != nil {
		c.netConn.Close()
		c.netConn = nil
	}
	c.session = nil
	c.events = nil
	c.handler = nil
}

// JID returns the bound full JID, empty before the session is negotiated
func (c *Conn) JID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jid
}
