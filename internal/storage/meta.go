package storage

import (
	"context"
	"database/sql"
	"fmt"
)

func setMeta(ctx context.Context, tx execer, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (db *DB) getMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// LoadSessionState returns the persisted review session blob, or nil when no
// session has been saved yet.
func (db *DB) LoadSessionState(ctx context.Context) ([]byte, error) {
	value, ok, err := db.getMeta(ctx, metaSession)
	if err != nil || !ok {
		return nil, err
	}
	return []byte(value), nil
}

// SaveSessionState stores the review session blob. It does not touch the
// last-modified marker.
func (db *DB) SaveSessionState(ctx context.Context, state []byte) error {
	if err := setMeta(ctx, db.conn, metaSession, string(state)); err != nil {
		return fmt.Errorf("failed to save review session: %w", err)
	}
	return nil
}

// Preference returns a stored user preference and whether it was set.
func (db *DB) Preference(ctx context.Context, name string) (string, bool, error) {
	return db.getMeta(ctx, metaPrefPrefix+name)
}

// SetPreference stores a user preference such as the list sort order.
func (db *DB) SetPreference(ctx context.Context, name, value string) error {
	if err := setMeta(ctx, db.conn, metaPrefPrefix+name, value); err != nil {
		return fmt.Errorf("failed to save preference %s: %w", name, err)
	}
	return nil
}
