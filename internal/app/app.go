// Package app ties the client to configuration, accounts and the local
// chat log. The UI talks to the client through it.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meszmate/jabber/internal/client"
	"github.com/meszmate/jabber/internal/config"
	"github.com/meszmate/jabber/internal/logging"
	"github.com/meszmate/jabber/internal/storage/sqlite"
	"github.com/meszmate/jabber/internal/xmpp"
	"github.com/meszmate/jabber/internal/xmpp/jidutil"
	"github.com/meszmate/jabber/internal/xmpp/presence"
)

// ErrUnknownAccount is returned when connecting to an account that is not
// configured
var ErrUnknownAccount = errors.New("unknown account")

// App represents the main application
type App struct {
	cfg      *config.Config
	accounts *config.AccountsConfig
	log      *logging.Logger
	bus      *client.EventBus
	client   *client.Client
	store    *sqlite.DB
	now      func() time.Time
	newID    func() string

	// account name, or bare JID for unconfigured logins
	account string
}

// Options holds the pieces an App is built from. Store may be nil, in which
// case nothing is persisted.
type Options struct {
	Config    *config.Config
	Accounts  *config.AccountsConfig
	Transport xmpp.Transport
	Store     *sqlite.DB
	Logger    *logging.Logger
	Clock     func() time.Time
}

// New creates a new App instance
func New(opts Options) *App {
	a := &App{
		cfg:      opts.Config,
		accounts: opts.Accounts,
		log:      opts.Logger,
		bus:      client.NewEventBus(),
		store:    opts.Store,
		now:      opts.Clock,
		newID:    uuid.NewString,
	}
	if a.cfg == nil {
		a.cfg = config.DefaultConfig()
	}
	if a.accounts == nil {
		a.accounts = &config.AccountsConfig{}
	}
	if a.log == nil {
		a.log = logging.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}

	a.client = client.New(opts.Transport, a.cfg.Preferences(), a.bus,
		client.WithLogger(a.log.With("component", "client")),
		client.WithClock(a.now),
		client.WithDisableTLS(a.cfg.Connection.DisableTLS),
	)
	a.subscribe()
	return a
}

func (a *App) Config() *config.Config           { return a.cfg }
func (a *App) Accounts() *config.AccountsConfig { return a.accounts }
func (a *App) Client() *client.Client           { return a.client }
func (a *App) Bus() *client.EventBus            { return a.bus }

// CurrentAccount returns the account of the current or last connection
func (a *App) CurrentAccount() string {
	return a.account
}

// Close disconnects and releases the chat log
func (a *App) Close() {
	if a.client.Status() == client.StatusConnected || a.client.Status() == client.StatusConnecting {
		a.client.Disconnect()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing storage: %v", err)
		}
	}
}

// Connect logs in with a configured account. An empty name selects the
// default account, or the only one configured.
func (a *App) Connect(name string) (client.ConnStatus, error) {
	account, err := a.findAccount(name)
	if err != nil {
		return client.StatusUndefined, err
	}
	password, err := account.ResolvePassword()
	if err != nil {
		return client.StatusUndefined, fmt.Errorf("%s: %w", account.Name, err)
	}

	status := a.client.ConnectWithAccount(account.Client(), password)
	if status == client.StatusConnecting {
		a.account = account.Name
		a.restoreSession()
	}
	return status, nil
}

// ConnectJID logs in with an unconfigured JID
func (a *App) ConnectJID(jid, password, server string) client.ConnStatus {
	status := a.client.Connect(jid, password, server)
	if status == client.StatusConnecting {
		a.account = jidutil.Bare(jid)
		a.restoreSession()
	}
	return status
}

// AutoConnect connects the first account marked auto_connect, or the
// default account when general.auto_connect is set
func (a *App) AutoConnect() (client.ConnStatus, error) {
	for _, account := range a.accounts.Accounts {
		if account.AutoConnect {
			return a.Connect(account.Name)
		}
	}
	if a.cfg.General.AutoConnect && a.cfg.General.DefaultAccount != "" {
		return a.Connect(a.cfg.General.DefaultAccount)
	}
	return a.client.Status(), nil
}

func (a *App) findAccount(name string) (config.Account, error) {
	if name == "" {
		name = a.cfg.General.DefaultAccount
	}
	if name == "" && len(a.accounts.Accounts) == 1 {
		return a.accounts.Accounts[0], nil
	}
	if account, ok := a.accounts.Find(name); ok {
		return account, nil
	}
	if name == "" {
		return config.Account{}, fmt.Errorf("%w: no default account", ErrUnknownAccount)
	}
	return config.Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, name)
}

// SetStatus changes our presence and remembers it for the next login
func (a *App) SetStatus(p presence.Type, status string) error {
	if err := a.client.UpdatePresence(p, status, 0); err != nil {
		return err
	}
	if a.store == nil || a.account == "" {
		return nil
	}
	session, err := a.store.GetSession(a.account)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		session = &sqlite.Session{Account: a.account}
	}
	session.Status = p.String()
	session.StatusMsg = status
	return a.store.SaveSession(*session)
}

// restoreSession asks the client to announce the presence saved for the
// account once the roster arrives
func (a *App) restoreSession() {
	if a.store == nil {
		return
	}
	session, err := a.store.GetSession(a.account)
	if err != nil {
		a.log.Warn("loading session of %s: %v", a.account, err)
		return
	}
	if session == nil || session.Status == "" {
		return
	}
	p, err := presence.ParseType(session.Status)
	if err != nil || p == presence.Offline {
		return
	}
	if err := a.client.UpdatePresence(p, session.StatusMsg, 0); err != nil {
		a.log.Warn("restoring presence: %v", err)
	}
}

// History returns the last logged messages with jid, oldest first
func (a *App) History(jid string) ([]sqlite.Message, error) {
	if a.store == nil || a.account == "" {
		return nil, nil
	}
	return a.store.RecentMessages(a.account, jid, a.cfg.UI.HistoryLines)
}

// CachedRoster returns the contact list saved at the last login
func (a *App) CachedRoster() ([]sqlite.RosterEntry, error) {
	if a.store == nil || a.account == "" {
		return nil, nil
	}
	return a.store.GetRoster(a.account)
}

// PruneHistory applies the retention setting to the chat log
func (a *App) PruneHistory() {
	days := a.cfg.Storage.MessageRetentionDays
	if a.store == nil || days <= 0 {
		return
	}
	n, err := a.store.DeleteOldMessages(days)
	if err != nil {
		a.log.Warn("pruning history: %v", err)
		return
	}
	if n > 0 {
		a.log.Info("pruned %d messages older than %d days", n, days)
	}
}
