package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/zalando/go-keyring"

	"github.com/meszmate/jabber/internal/client"
)

const (
	appName = "jabber"

	// KeyringService is the service name passwords are stored under
	KeyringService = appName
)

// ErrNoPassword is returned when an account has no usable password
var ErrNoPassword = errors.New("no password configured")

// Config represents the main application configuration
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Connection ConnectionConfig `toml:"connection"`
	Chat       ChatConfig       `toml:"chat"`
	UI         UIConfig         `toml:"ui"`
	Logging    LoggingConfig    `toml:"logging"`
	Storage    StorageConfig    `toml:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	DataDir        string `toml:"data_dir"`
	DefaultAccount string `toml:"default_account"`
	AutoConnect    bool   `toml:"auto_connect"`
}

// ConnectionConfig contains session settings. Durations are in seconds.
type ConnectionConfig struct {
	Reconnect         int  `toml:"reconnect"`
	Autoping          int  `toml:"autoping"`
	Priority          int  `toml:"priority"`
	DisableTLS        bool `toml:"disable_tls"`
	DisconnectTimeout int  `toml:"disconnect_timeout"`
}

// ChatConfig contains chat state settings
type ChatConfig struct {
	States bool `toml:"states"`
	Typing bool `toml:"typing"`
	// Gone is the idle time in minutes before a gone state is sent, 0 disables it
	Gone int `toml:"gone"`
}

// UIConfig contains UI-related settings
type UIConfig struct {
	Theme          string `toml:"theme"`
	ShowTimestamps bool   `toml:"show_timestamps"`
	TimeFormat     string `toml:"time_format"`
	HistoryLines   int    `toml:"history_lines"`

	// Keys maps a key such as "alt+1" to an action name, "none" unbinds it
	Keys map[string]string `toml:"keys"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Format  string `toml:"format"`
	Console bool   `toml:"console"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// SaveMessages enables/disables message history
	SaveMessages bool `toml:"save_messages"`

	// MessageRetentionDays is the number of days to keep messages (0 = forever)
	MessageRetentionDays int `toml:"message_retention_days"`
}

// Account represents an XMPP account configuration
type Account struct {
	Name        string `toml:"name"`
	JID         string `toml:"jid"`
	Password    string `toml:"password"`
	UseKeyring  bool   `toml:"use_keyring"`
	AutoConnect bool   `toml:"auto_connect"`
	Server      string `toml:"server"`
	Port        int    `toml:"port"`
	Resource    string `toml:"resource"`
}

// AccountsConfig contains all account configurations
type AccountsConfig struct {
	Accounts []Account `toml:"accounts"`
}

// Paths holds the XDG-compliant paths for the application
type Paths struct {
	ConfigDir string
	DataDir   string
	CacheDir  string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			AutoConnect: false,
		},
		Connection: ConnectionConfig{
			Reconnect:         30,
			Autoping:          60,
			DisconnectTimeout: 5,
		},
		Chat: ChatConfig{
			States: true,
			Typing: true,
			Gone:   10,
		},
		UI: UIConfig{
			ShowTimestamps: true,
			TimeFormat:     "15:04",
			HistoryLines:   20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			SaveMessages: true,
		},
	}
}

// GetPaths returns XDG-compliant paths for the application
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	base := func(env string, fallback ...string) string {
		dir := os.Getenv(env)
		if dir == "" {
			dir = filepath.Join(append([]string{home}, fallback...)...)
		}
		return filepath.Join(dir, appName)
	}

	return &Paths{
		ConfigDir: base("XDG_CONFIG_HOME", ".config"),
		DataDir:   base("XDG_DATA_HOME", ".local", "share"),
		CacheDir:  base("XDG_CACHE_HOME", ".cache"),
	}, nil
}

// PathsIn returns paths rooted at a single directory, as used by --config
func PathsIn(dir string) *Paths {
	dir = expandPath(dir)
	return &Paths{
		ConfigDir: dir,
		DataDir:   dir,
		CacheDir:  filepath.Join(dir, "cache"),
	}
}

// EnsureDirectories creates the necessary directories
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.ConfigDir, p.DataDir, p.CacheDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (p *Paths) configFile() string   { return filepath.Join(p.ConfigDir, "config.toml") }
func (p *Paths) accountsFile() string { return filepath.Join(p.ConfigDir, "accounts.toml") }

// Load loads the configuration from the config file in paths. A missing
// file yields the defaults.
func Load(paths *Paths) (*Config, error) {
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if _, err := os.Stat(paths.configFile()); err == nil {
		if _, err := toml.DecodeFile(paths.configFile(), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Expand paths
	if cfg.General.DataDir == "" {
		cfg.General.DataDir = paths.DataDir
	} else {
		cfg.General.DataDir = expandPath(cfg.General.DataDir)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.General.DataDir, appName+".log")
	} else {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}

	// A bare theme name refers to themes/<name>.toml in the config directory
	if cfg.UI.Theme != "" && filepath.Base(cfg.UI.Theme) == cfg.UI.Theme && filepath.Ext(cfg.UI.Theme) == "" {
		cfg.UI.Theme = filepath.Join(paths.ConfigDir, "themes", cfg.UI.Theme+".toml")
	} else if cfg.UI.Theme != "" {
		cfg.UI.Theme = expandPath(cfg.UI.Theme)
	}

	return cfg, nil
}

// LoadAccounts loads account configurations
func LoadAccounts(paths *Paths) (*AccountsConfig, error) {
	if _, err := os.Stat(paths.accountsFile()); os.IsNotExist(err) {
		return &AccountsConfig{Accounts: []Account{}}, nil
	}

	var accounts AccountsConfig
	if _, err := toml.DecodeFile(paths.accountsFile(), &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	// Set defaults for accounts
	for i := range accounts.Accounts {
		a := &accounts.Accounts[i]
		if a.Port == 0 {
			a.Port = 5222
		}
		if a.Resource == "" {
			a.Resource = appName
		}
		if a.Name == "" {
			a.Name = a.JID
		}
	}

	return &accounts, nil
}

// SaveAccounts saves account configurations. Passwords of keyring accounts
// are never written to disk.
func SaveAccounts(paths *Paths, accounts *AccountsConfig) error {
	out := AccountsConfig{Accounts: make([]Account, len(accounts.Accounts))}
	for i, a := range accounts.Accounts {
		if a.UseKeyring {
			a.Password = ""
		}
		out.Accounts[i] = a
	}
	return encodeFile(paths.accountsFile(), &out)
}

func encodeFile(path string, v interface{}) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Find returns the account with the given name or JID
func (c *AccountsConfig) Find(name string) (Account, bool) {
	for _, a := range c.Accounts {
		if a.Name == name || a.JID == name {
			return a, true
		}
	}
	return Account{}, false
}

// Put adds or replaces an account
func (c *AccountsConfig) Put(account Account) {
	for i, a := range c.Accounts {
		if a.Name == account.Name {
			c.Accounts[i] = account
			return
		}
	}
	c.Accounts = append(c.Accounts, account)
}

// ResolvePassword returns the account password, reading it from the OS
// keyring when the account is configured to
func (a Account) ResolvePassword() (string, error) {
	if !a.UseKeyring {
		if a.Password == "" {
			return "", ErrNoPassword
		}
		return a.Password, nil
	}

	password, err := keyring.Get(KeyringService, a.JID)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoPassword
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return password, nil
}

// StorePassword saves a password in the OS keyring
func StorePassword(jid, password string) error {
	if err := keyring.Set(KeyringService, jid, password); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// Client converts the account to the connection settings the client uses
func (a Account) Client() client.Account {
	return client.Account{
		Name:     a.Name,
		JID:      a.JID,
		Server:   a.Server,
		Port:     a.Port,
		Resource: a.Resource,
	}
}

// Preferences adapts the configuration to the client's preferences
func (c *Config) Preferences() client.Settings {
	return client.Settings{
		Reconnect:      seconds(c.Connection.Reconnect),
		Autoping:       seconds(c.Connection.Autoping),
		Prio:           c.Connection.Priority,
		States:         c.Chat.States,
		Typing:         c.Chat.Typing,
		Gone:           time.Duration(max(c.Chat.Gone, 0)) * time.Minute,
		DisconnectWait: seconds(c.Connection.DisconnectTimeout),
	}
}

func seconds(n int) time.Duration {
	if n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
