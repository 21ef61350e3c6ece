// Package apireplay fetches timelines by replaying the web client's internal
// GraphQL calls over plain HTTP, authenticated with session cookies from a
// local account pool. It trades the browser backend's fidelity for speed and
// a much smaller footprint.
package apireplay

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Account is one pooled login session.
type Account struct {
	Username   string
	AuthToken  string
	CT0        string
	AddedAt    time.Time
	Active     bool
	LastUsedAt time.Time // zero until first use
	ErrorMsg   string
}

// PoolStats summarizes the pool for the accounts command.
type PoolStats struct {
	Total    int
	Active   int
	Inactive int
}

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    username     TEXT PRIMARY KEY,
    auth_token   TEXT NOT NULL,
    ct0          TEXT NOT NULL,
    added_at     TEXT NOT NULL,
    active       INTEGER NOT NULL DEFAULT 1,
    last_used_at TEXT,
    error_msg    TEXT
);
`

// Pool is a sqlite-backed account pool. Accounts are handed out
// least-recently-used so request load spreads across sessions.
type Pool struct {
	db *sql.DB
}

// OpenPool opens (creating if needed) the pool database at path.
func OpenPool(path string) (*Pool, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create pool dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open pool db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec(accountsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pool schema: %w", err)
	}
	return &Pool{db: db}, nil
}

// Add inserts or replaces an account's session cookies. Re-adding a username
// refreshes its cookies and reactivates it.
func (p *Pool) Add(username, authToken, ct0 string) error {
	if username == "" || authToken == "" || ct0 == "" {
		return fmt.Errorf("username, auth_token and ct0 are all required")
	}
	_, err := p.db.Exec(`
		INSERT INTO accounts (username, auth_token, ct0, added_at, active, last_used_at, error_msg)
		VALUES (?, ?, ?, ?, 1, NULL, NULL)
		ON CONFLICT(username) DO UPDATE SET
			auth_token = excluded.auth_token,
			ct0        = excluded.ct0,
			active     = 1,
			error_msg  = NULL`,
		username, authToken, ct0, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("add account %s: %w", username, err)
	}
	return nil
}

// All returns every account, oldest first.
func (p *Pool) All() ([]Account, error) {
	rows, err := p.db.Query(`
		SELECT username, auth_token, ct0, added_at, active, last_used_at, error_msg
		FROM accounts ORDER BY added_at ASC, username ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var addedAt string
		var active int
		var lastUsed, errMsg sql.NullString
		if err := rows.Scan(&a.Username, &a.AuthToken, &a.CT0, &addedAt, &active, &lastUsed, &errMsg); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
		a.Active = active != 0
		if lastUsed.Valid {
			a.LastUsedAt, _ = time.Parse(time.RFC3339, lastUsed.String)
		}
		a.ErrorMsg = errMsg.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats counts accounts by status.
func (p *Pool) Stats() (PoolStats, error) {
	var s PoolStats
	err := p.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0)
		FROM accounts`).Scan(&s.Total, &s.Active)
	if err != nil {
		return s, fmt.Errorf("pool stats: %w", err)
	}
	s.Inactive = s.Total - s.Active
	return s, nil
}

// next picks the least-recently-used active account and stamps its use.
func (p *Pool) next() (*Account, error) {
	var a Account
	var lastUsed sql.NullString
	err := p.db.QueryRow(`
		SELECT username, auth_token, ct0, last_used_at
		FROM accounts
		WHERE active = 1
		ORDER BY last_used_at ASC, username ASC
		LIMIT 1`).Scan(&a.Username, &a.AuthToken, &a.CT0, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active accounts in pool")
	}
	if err != nil {
		return nil, fmt.Errorf("pick account: %w", err)
	}
	a.Active = true

	_, err = p.db.Exec(`UPDATE accounts SET last_used_at = ? WHERE username = ?`,
		time.Now().UTC().Format(time.RFC3339), a.Username)
	if err != nil {
		return nil, fmt.Errorf("stamp account use: %w", err)
	}
	return &a, nil
}

// markInactive disables an account after an auth failure so the pool stops
// handing it out until its cookies are refreshed.
func (p *Pool) markInactive(username, msg string) error {
	_, err := p.db.Exec(`UPDATE accounts SET active = 0, error_msg = ? WHERE username = ?`, msg, username)
	if err != nil {
		return fmt.Errorf("deactivate account %s: %w", username, err)
	}
	return nil
}

// Close releases the underlying database.
func (p *Pool) Close() error {
	return p.db.Close()
}
