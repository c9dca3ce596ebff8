package loadcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/lazyload/dbopen"
)

// Schema for the session_store table.
const Schema = `
CREATE TABLE IF NOT EXISTS session_store (
	session_id TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, key)
);
`

// SQLite is a Store persisting entries in SQLite, partitioned by session ID
// so several browsing sessions can share one database file.
type SQLite struct {
	db        *sql.DB
	sessionID string
}

// NewSQLite creates the schema if needed and returns a Store scoped to
// sessionID.
func NewSQLite(ctx context.Context, db *sql.DB, sessionID string) (*SQLite, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("loadcache: empty session id")
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("loadcache: apply schema: %w", err)
	}
	return &SQLite{db: db, sessionID: sessionID}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_store WHERE session_id = ? AND key = ?`,
		s.sessionID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loadcache: get: %w", err)
	}
	return v, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO session_store (session_id, key, value, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value`,
		s.sessionID, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("loadcache: set: %w", err)
	}
	return nil
}

// Purge removes every entry of the session. Called when the session ends.
func (s *SQLite) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_store WHERE session_id = ?`, s.sessionID); err != nil {
		return fmt.Errorf("loadcache: purge: %w", err)
	}
	return nil
}
