package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Message types stored in the chat log
const (
	TypeChat      = "chat"
	TypeGroupchat = "groupchat"
	TypePrivate   = "private"
)

type DB struct {
	db *sql.DB
}

func New(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, "jabber.db"))
}

// Open opens the database at path, which may be ":memory:"
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases exist per connection
	db.SetMaxOpenConns(1)

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			account TEXT NOT NULL,
			jid TEXT NOT NULL,
			nick TEXT,
			body TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			outgoing INTEGER NOT NULL,
			delayed INTEGER NOT NULL DEFAULT 0,
			type TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_jid ON messages(account, jid)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			account TEXT PRIMARY KEY,
			last_connected INTEGER,
			status TEXT,
			status_msg TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS roster_cache (
			account TEXT NOT NULL,
			jid TEXT NOT NULL,
			name TEXT,
			subscription TEXT,
			last_updated INTEGER NOT NULL,
			PRIMARY KEY (account, jid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roster_cache_account ON roster_cache(account)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

type Message struct {
	ID        string
	Account   string
	JID       string
	Nick      string
	Body      string
	Timestamp time.Time
	Outgoing  bool
	Delayed   bool
	Type      string
}

// SaveMessage stores a message. Saving the same id again replaces it.
func (d *DB) SaveMessage(msg Message) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO messages (id, account, jid, nick, body, timestamp, outgoing, delayed, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Account, msg.JID, msg.Nick, msg.Body, msg.Timestamp.Unix(), msg.Outgoing, msg.Delayed, msg.Type)
	return err
}

// RecentMessages returns up to limit of the newest messages with jid,
// oldest first
func (d *DB) RecentMessages(account, jid string, limit int) ([]Message, error) {
	rows, err := d.db.Query(`
		SELECT id, nick, body, timestamp, outgoing, delayed, type
		FROM messages
		WHERE account = ? AND jid = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, account, jid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg := Message{Account: account, JID: jid}
		var ts int64
		var nick sql.NullString

		err := rows.Scan(&msg.ID, &nick, &msg.Body, &ts, &msg.Outgoing, &msg.Delayed, &msg.Type)
		if err != nil {
			return nil, err
		}

		msg.Timestamp = time.Unix(ts, 0)
		msg.Nick = nick.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (d *DB) DeleteMessages(account, jid string) error {
	_, err := d.db.Exec("DELETE FROM messages WHERE account = ? AND jid = ?", account, jid)
	return err
}

// DeleteOldMessages removes messages older than days and returns how many
func (d *DB) DeleteOldMessages(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	result, err := d.db.Exec("DELETE FROM messages WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (d *DB) GetMessageCount() (int64, error) {
	var count int64
	err := d.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

// Session is the presence last chosen for an account
type Session struct {
	Account       string
	LastConnected time.Time
	Status        string
	StatusMsg     string
}

func (d *DB) SaveSession(session Session) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO sessions (account, last_connected, status, status_msg)
		VALUES (?, ?, ?, ?)
	`, session.Account, session.LastConnected.Unix(), session.Status, session.StatusMsg)
	return err
}

// GetSession returns nil without error when the account has no session
func (d *DB) GetSession(account string) (*Session, error) {
	session := Session{Account: account}
	var lastConnected sql.NullInt64
	var status, statusMsg sql.NullString

	err := d.db.QueryRow(`
		SELECT last_connected, status, status_msg
		FROM sessions
		WHERE account = ?
	`, account).Scan(&lastConnected, &status, &statusMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastConnected.Valid {
		session.LastConnected = time.Unix(lastConnected.Int64, 0)
	}
	session.Status = status.String
	session.StatusMsg = statusMsg.String
	return &session, nil
}

type RosterEntry struct {
	JID          string
	Name         string
	Subscription string
}

// SaveRoster replaces the cached roster of an account
func (d *DB) SaveRoster(account string, entries []RosterEntry) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM roster_cache WHERE account = ?", account); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO roster_cache (account, jid, name, subscription, last_updated)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, entry := range entries {
		if _, err := stmt.Exec(account, entry.JID, entry.Name, entry.Subscription, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRoster returns the cached roster ordered by JID
func (d *DB) GetRoster(account string) ([]RosterEntry, error) {
	rows, err := d.db.Query(`
		SELECT jid, name, subscription
		FROM roster_cache
		WHERE account = ?
		ORDER BY jid
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RosterEntry
	for rows.Next() {
		var entry RosterEntry
		var name, sub sql.NullString
		if err := rows.Scan(&entry.JID, &name, &sub); err != nil {
			return nil, err
		}
		entry.Name = name.String
		entry.Subscription = sub.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
