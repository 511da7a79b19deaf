// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package archive mirrors chat sessions into a local SQLite database so
// history survives offline and can be exported without the gateway.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gatewayz/gatewayz-tui/internal/api"
	"github.com/gatewayz/gatewayz-tui/internal/util"
)

// Archive is a local mirror of gateway chat history.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive database at the given path. An empty
// path uses the default location under the user config directory.
func Open(path string) (*Archive, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			home, herr := os.UserHomeDir()
			if herr != nil {
				return nil, err
			}
			dir = filepath.Join(home, ".config")
		}
		if err := os.MkdirAll(filepath.Join(dir, "gatewayz"), 0o700); err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "gatewayz", "archive.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			rowid_local INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id INTEGER NOT NULL DEFAULT 0,
			session_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			tokens INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, rowid_local);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Archive{db: db}, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// UpsertSession inserts or refreshes one session row.
func (a *Archive) UpsertSession(sess api.Session) error {
	_, err := a.db.Exec(
		`INSERT INTO sessions(id, title, model, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title,
		   model = excluded.model, updated_at = excluded.updated_at`,
		sess.ID,
		sess.Title,
		sess.Model,
		sess.CreatedAt.Unix(),
		sess.UpdatedAt.Unix(),
	)
	return err
}

// InsertMessage appends one message row. A zero remote id is fine; local
// ordering comes from the autoincrement column, not the gateway.
func (a *Archive) InsertMessage(m api.Message) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := a.db.Exec(
		`INSERT INTO messages(remote_id, session_id, role, content, model, tokens, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.SessionID,
		m.Role,
		m.Content,
		m.Model,
		m.Tokens,
		created.Unix(),
	)
	return err
}

// DeleteSession removes a session and its messages from the mirror.
func (a *Archive) DeleteSession(id int64) error {
	_, err := a.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// Messages returns one session's archived messages in insertion order.
func (a *Archive) Messages(sessionID int64) ([]api.Message, error) {
	rows, err := a.db.Query(
		`SELECT remote_id, session_id, role, content, model, tokens, created_at
		 FROM messages WHERE session_id = ? ORDER BY rowid_local ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Message
	for rows.Next() {
		var m api.Message
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Model, &m.Tokens, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(created, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown writes one session's archived transcript as a Markdown file.
func (a *Archive) ExportMarkdown(sessionID int64, title, path string) error {
	msgs, err := a.Messages(sessionID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	if title == "" {
		title = fmt.Sprintf("Session %d", sessionID)
	}
	sb.WriteString("# " + title + "\n\n")
	sb.WriteString("Exported " + time.Now().Format("2006-01-02 15:04") + "\n\n")

	for _, m := range msgs {
		switch m.Role {
		case "user":
			sb.WriteString("## You\n\n")
		case "assistant":
			label := "## Assistant"
			if m.Model != "" {
				label += " (" + m.Model + ")"
			}
			sb.WriteString(label + "\n\n")
		default:
			sb.WriteString("## " + m.Role + "\n\n")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
	}

	return util.AtomicWriteFile(path, []byte(sb.String()), 0o644)
}
