// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ============================================================================
// RECORD STORE
// ============================================================================

// Records persists chat transcripts, feedback and tickets. The server runs
// without one; health then reports db_connected=false.
type Records interface {
	UpsertSession(ctx context.Context, sessionID, userID string) error
	AddMessage(ctx context.Context, m StoredMessage) error
	AddFeedback(ctx context.Context, f Feedback) error
	AddTicket(ctx context.Context, t Ticket) (string, error)
	Ping(ctx context.Context) error
}

// StoredMessage is one row of chat_messages.
type StoredMessage struct {
	SessionID       string
	Role            string
	Content         string
	Recommendations []string
	Meta            map[string]any
}

// Feedback is one row of feedback_submissions.
type Feedback struct {
	UserID   string
	Message  string
	Category string
}

// Ticket is one row of support_tickets.
type Ticket struct {
	UserID      string
	Category    string
	Priority    string
	Subject     string
	Description string
}

const recordSchema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id             TEXT PRIMARY KEY,
	user_id        TEXT,
	created_at     INTEGER NOT NULL,
	last_active_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	recommendations TEXT,
	meta            TEXT,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id);
CREATE TABLE IF NOT EXISTS feedback_submissions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT,
	message    TEXT NOT NULL,
	category   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS support_tickets (
	id          TEXT PRIMARY KEY,
	user_id     TEXT,
	category    TEXT NOT NULL,
	priority    TEXT NOT NULL,
	subject     TEXT NOT NULL,
	description TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  INTEGER NOT NULL
);`

// SQLiteRecords is the Records implementation backed by modernc sqlite.
type SQLiteRecords struct {
	db  *sql.DB
	now func() time.Time
}

// OpenRecords opens (and creates if needed) the record database at path.
// ":memory:" opens a private in-memory database.
func OpenRecords(path string) (*SQLiteRecords, error) {
	if path == "" {
		return nil, errors.New("server: record database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("server: create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("server: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("server: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(recordSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: create schema: %w", err)
	}

	return &SQLiteRecords{db: db, now: time.Now}, nil
}

// UpsertSession records the session or bumps its last_active_at.
func (s *SQLiteRecords) UpsertSession(ctx context.Context, sessionID, userID string) error {
	ts := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, user_id, created_at, last_active_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_active_at = excluded.last_active_at,
			user_id = COALESCE(excluded.user_id, chat_sessions.user_id)`,
		sessionID, nullable(userID), ts, ts)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// AddMessage appends one transcript row.
func (s *SQLiteRecords) AddMessage(ctx context.Context, m StoredMessage) error {
	var recs, meta any
	if len(m.Recommendations) > 0 {
		b, err := json.Marshal(m.Recommendations)
		if err != nil {
			return fmt.Errorf("encode recommendations: %w", err)
		}
		recs = string(b)
	}
	if len(m.Meta) > 0 {
		b, err := json.Marshal(m.Meta)
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
		meta = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, recommendations, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.Role, m.Content, recs, meta, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// AddFeedback stores a feedback submission.
func (s *SQLiteRecords) AddFeedback(ctx context.Context, f Feedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_submissions (user_id, message, category, created_at)
		VALUES (?, ?, ?, ?)`,
		nullable(f.UserID), f.Message, f.Category, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// AddTicket stores a ticket and returns its id.
func (s *SQLiteRecords) AddTicket(ctx context.Context, t Ticket) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO support_tickets (id, user_id, category, priority, subject, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, nullable(t.UserID), t.Category, t.Priority, t.Subject, t.Description, s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("insert ticket: %w", err)
	}
	return id, nil
}

// Ping checks the database connection.
func (s *SQLiteRecords) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Messages returns the stored transcript of a session in insertion order.
func (s *SQLiteRecords) Messages(ctx context.Context, sessionID string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, recommendations, meta FROM chat_messages
		WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var (
			m          = StoredMessage{SessionID: sessionID}
			recs, meta sql.NullString
		)
		if err := rows.Scan(&m.Role, &m.Content, &recs, &meta); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if recs.Valid {
			_ = json.Unmarshal([]byte(recs.String), &m.Recommendations)
		}
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &m.Meta)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns the number of rows in one of the record tables.
func (s *SQLiteRecords) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "chat_sessions", "chat_messages", "feedback_submissions", "support_tickets":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteRecords) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
