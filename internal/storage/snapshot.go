package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finchat/internal/compaction"
)

// ContextSnapshot is a compacted context as built for a session at a point
// in its history. MessageCount is the log length it was built from.
type ContextSnapshot struct {
	ID           string           `json:"id"`
	SessionID    string           `json:"session_id"`
	Context      string           `json:"context"`
	Stats        compaction.Stats `json:"stats"`
	MessageCount int              `json:"message_count"`
	CreatedAt    time.Time        `json:"created_at"`
}

// SaveSnapshot stores snap, filling ID and CreatedAt when unset.
func (db *DB) SaveSnapshot(snap *ContextSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	stats, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO context_snapshots (id, session_id, context, stats, message_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SessionID, snap.Context, string(stats), snap.MessageCount, snap.CreatedAt,
	)
	return err
}

// LatestSnapshot returns the newest snapshot of a session or ErrNotFound.
func (db *DB) LatestSnapshot(sessionID string) (*ContextSnapshot, error) {
	var snap ContextSnapshot
	var stats string
	err := db.QueryRow(
		`SELECT id, session_id, context, stats, message_count, created_at
		FROM context_snapshots
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`,
		sessionID,
	).Scan(&snap.ID, &snap.SessionID, &snap.Context, &stats, &snap.MessageCount, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(stats), &snap.Stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &snap, nil
}

// PruneSnapshots keeps the newest keep snapshots of a session and deletes
// the rest. It returns the number of rows removed.
func (db *DB) PruneSnapshots(sessionID string, keep int) (int64, error) {
	result, err := db.Exec(
		`DELETE FROM context_snapshots
		WHERE session_id = ? AND id NOT IN (
			SELECT id FROM context_snapshots
			WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)`,
		sessionID, sessionID, max(keep, 0),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// StaleSessions returns IDs of sessions whose message count is larger than
// the count their latest snapshot was built from, most recently updated
// first. Sessions without messages are never stale.
func (db *DB) StaleSessions(limit int) ([]string, error) {
	query := `SELECT s.id FROM sessions s
		WHERE (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id) >
			COALESCE((
				SELECT cs.message_count FROM context_snapshots cs
				WHERE cs.session_id = s.id
				ORDER BY cs.created_at DESC, cs.rowid DESC
				LIMIT 1
			), 0)
		ORDER BY s.updated_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
