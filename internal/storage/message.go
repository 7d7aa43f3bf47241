package storage

import (
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"finchat/internal/compaction"
)

// Message is one stored chat turn. Seq orders messages within a session.
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Seq       int64           `json:"seq"`
	Role      compaction.Role `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// AppendMessage appends a user or assistant turn to a session and bumps the
// session's updated_at. It returns ErrInvalidRole for any other role and
// ErrNotFound when the session does not exist.
func (db *DB) AppendMessage(sessionID, role, content string) (*Message, error) {
	r, err := compaction.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyText
	}

	msg := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      r,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err = db.WithTx(func(tx *sql.Tx) error {
		result, err := tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", msg.CreatedAt, sessionID)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}

		result, err = tx.Exec(
			"INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
			msg.ID, sessionID, r.String(), content, msg.CreatedAt,
		)
		if err != nil {
			return err
		}
		msg.Seq, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages returns a session's messages oldest first. A positive limit
// keeps only the most recent ones.
func (db *DB) GetMessages(sessionID string, limit int) ([]*Message, error) {
	query := "SELECT seq, id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq"
	args := []any{sessionID}
	if limit > 0 {
		query += " DESC LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.Seq, &m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.Role, err = compaction.ParseRole(role); err != nil {
			return nil, fmt.Errorf("message %s: %w", m.ID, err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		slices.Reverse(messages)
	}
	return messages, nil
}

// CountMessages returns the number of messages in a session.
func (db *DB) CountMessages(sessionID string) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&n)
	return n, err
}

// CompactionLog loads a session's full log in engine form. It returns
// ErrNotFound when the session does not exist.
func (db *DB) CompactionLog(sessionID string) ([]compaction.Message, error) {
	if _, err := db.GetSession(sessionID); err != nil {
		return nil, err
	}
	stored, err := db.GetMessages(sessionID, 0)
	if err != nil {
		return nil, err
	}

	log := make([]compaction.Message, len(stored))
	for i, m := range stored {
		log[i] = compaction.Message{Role: m.Role, Text: m.Content, Timestamp: m.CreatedAt}
	}
	return log, nil
}
