package storage

import (
	"database/sql"
	"errors"
	"time"
)

// KVSet stores a value. A zero ttl never expires.
func (db *DB) KVSet(key, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}

	_, err := db.Exec(
		"INSERT OR REPLACE INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiresAt,
	)
	return err
}

// KVGet returns a value or ErrNotFound if it is missing or expired.
func (db *DB) KVGet(key string) (string, error) {
	var value string
	var expiresAt sql.NullTime

	err := db.QueryRow("SELECT value, expires_at FROM kv_store WHERE key = ?", key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if expiresAt.Valid && expiresAt.Time.Before(time.Now()) {
		_, _ = db.Exec("DELETE FROM kv_store WHERE key = ?", key)
		return "", ErrNotFound
	}
	return value, nil
}

// KVDelete removes a key. Missing keys are not an error.
func (db *DB) KVDelete(key string) error {
	_, err := db.Exec("DELETE FROM kv_store WHERE key = ?", key)
	return err
}
