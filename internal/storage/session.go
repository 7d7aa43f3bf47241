package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one chat conversation.
type Session struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const sessionColumns = "id, title, metadata, created_at, updated_at"

// CreateSession creates a session with a fresh ID. Nil metadata is stored as {}.
func (db *DB) CreateSession(title string, metadata json.RawMessage) (*Session, error) {
	return db.CreateSessionWithID(uuid.NewString(), title, metadata)
}

// CreateSessionWithID creates a session with the given ID. It returns
// ErrExists when the ID is taken and ErrInvalidMeta for malformed metadata.
func (db *DB) CreateSessionWithID(id, title string, metadata json.RawMessage) (*Session, error) {
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	if !json.Valid(metadata) {
		return nil, ErrInvalidMeta
	}
	if _, err := db.GetSession(id); err == nil {
		return nil, fmt.Errorf("session %s: %w", id, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	now := time.Now().UTC()

	_, err := db.Exec(
		"INSERT INTO sessions ("+sessionColumns+") VALUES (?, ?, ?, ?, ?)",
		id, title, string(metadata), now, now,
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Title:     title,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetSession returns the session with the given ID or ErrNotFound.
func (db *DB) GetSession(id string) (*Session, error) {
	s, err := scanSession(db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListSessions returns sessions, most recently updated first. A limit of
// zero means no limit.
func (db *DB) ListSessions(limit, offset int) ([]*Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions ORDER BY updated_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session together with its messages and snapshots.
func (db *DB) DeleteSession(id string) error {
	result, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var metadata string
	if err := row.Scan(&s.ID, &s.Title, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Metadata = json.RawMessage(metadata)
	return &s, nil
}
