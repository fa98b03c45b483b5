package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	paths := PathsIn(t.TempDir())

	cfg, err := Load(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Connection.Reconnect != 30 || !cfg.Chat.States {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.General.DataDir != paths.DataDir {
		t.Fatalf("expected data dir %q, got %q", paths.DataDir, cfg.General.DataDir)
	}
	if cfg.Logging.File != filepath.Join(paths.DataDir, "jabber.log") {
		t.Fatalf("unexpected log file %q", cfg.Logging.File)
	}
}

func TestLoadFile(t *testing.T) {
	paths := PathsIn(t.TempDir())
	writeFile(t, filepath.Join(paths.ConfigDir, "config.toml"), `
[connection]
reconnect = 0
autoping = 15
priority = 200
disable_tls = true

[chat]
typing = false
gone = 0
`)

	cfg, err := Load(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.Connection.DisableTLS {
		t.Fatal("expected disable_tls")
	}

	prefs := cfg.Preferences()
	if prefs.ReconnectInterval() != 0 {
		t.Fatalf("expected reconnect disabled, got %v", prefs.ReconnectInterval())
	}
	if prefs.AutopingInterval() != 15*time.Second {
		t.Fatalf("expected 15s autoping, got %v", prefs.AutopingInterval())
	}
	if prefs.Priority() != 200 {
		t.Fatalf("expected raw priority, got %d", prefs.Priority())
	}
	if !prefs.ChatStates() || prefs.TypingNotifications() {
		t.Fatal("unexpected chat settings")
	}
	if prefs.GoneTimeout() != 0 || prefs.DisconnectTimeout() != 5*time.Second {
		t.Fatalf("unexpected timeouts %v %v", prefs.GoneTimeout(), prefs.DisconnectTimeout())
	}
}

func TestLoadInvalidFile(t *testing.T) {
	paths := PathsIn(t.TempDir())
	writeFile(t, filepath.Join(paths.ConfigDir, "config.toml"), "[connection\n")

	if _, err := Load(paths); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAccounts(t *testing.T) {
	paths := PathsIn(t.TempDir())

	accounts, err := LoadAccounts(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(accounts.Accounts) != 0 {
		t.Fatalf("expected no accounts, got %d", len(accounts.Accounts))
	}

	writeFile(t, filepath.Join(paths.ConfigDir, "accounts.toml"), `
[[accounts]]
jid = "me@example.com"
password = "secret"

[[accounts]]
name = "work"
jid = "me@work.example"
server = "xmpp.work.example"
port = 5223
use_keyring = true
`)

	accounts, err = LoadAccounts(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	personal, ok := accounts.Find("me@example.com")
	if !ok {
		t.Fatal("expected account by JID")
	}
	if personal.Name != "me@example.com" || personal.Port != 5222 || personal.Resource != "jabber" {
		t.Fatalf("unexpected defaults %+v", personal)
	}
	work, ok := accounts.Find("work")
	if !ok {
		t.Fatal("expected account by name")
	}
	ca := work.Client()
	if ca.Server != "xmpp.work.example" || ca.Port != 5223 || ca.Name != "work" {
		t.Fatalf("unexpected client account %+v", ca)
	}
}

func TestSaveAccountsOmitsKeyringPasswords(t *testing.T) {
	paths := PathsIn(t.TempDir())
	accounts := &AccountsConfig{}
	accounts.Put(Account{Name: "a", JID: "a@example.com", Password: "plain"})
	accounts.Put(Account{Name: "b", JID: "b@example.com", Password: "hidden", UseKeyring: true})
	accounts.Put(Account{Name: "a", JID: "a@example.com", Password: "changed"})

	if err := SaveAccounts(paths, accounts); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := LoadAccounts(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(loaded.Accounts))
	}
	if a, _ := loaded.Find("a"); a.Password != "changed" {
		t.Fatalf("expected changed, got %q", a.Password)
	}
	if b, _ := loaded.Find("b"); b.Password != "" {
		t.Fatalf("keyring password written to disk: %q", b.Password)
	}
	if accounts.Accounts[1].Password != "hidden" {
		t.Fatal("save modified the caller's accounts")
	}
}

func TestResolvePassword(t *testing.T) {
	keyring.MockInit()

	if _, err := (Account{JID: "a@example.com"}).ResolvePassword(); !errors.Is(err, ErrNoPassword) {
		t.Fatalf("expected ErrNoPassword, got %v", err)
	}
	if pw, err := (Account{JID: "a@example.com", Password: "x"}).ResolvePassword(); err != nil || pw != "x" {
		t.Fatalf("expected x, got %q (%v)", pw, err)
	}

	stored := Account{JID: "b@example.com", UseKeyring: true}
	if _, err := stored.ResolvePassword(); !errors.Is(err, ErrNoPassword) {
		t.Fatalf("expected ErrNoPassword, got %v", err)
	}
	if err := StorePassword("b@example.com", "from-keyring"); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if pw, err := stored.ResolvePassword(); err != nil || pw != "from-keyring" {
		t.Fatalf("expected from-keyring, got %q (%v)", pw, err)
	}
}

func TestThemePath(t *testing.T) {
	paths := PathsIn(t.TempDir())
	writeFile(t, filepath.Join(paths.ConfigDir, "config.toml"), "[ui]\ntheme = \"light\"\n")

	cfg, err := Load(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := filepath.Join(paths.ConfigDir, "themes", "light.toml")
	if cfg.UI.Theme != want {
		t.Fatalf("expected %q, got %q", want, cfg.UI.Theme)
	}
}
