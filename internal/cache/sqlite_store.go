package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS items (
		key     TEXT NOT NULL UNIQUE,
		data    BLOB NOT NULL,
		updated TEXT NOT NULL
	)
`

// SQLiteStore is a Store in an embedded SQLite file.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLiteStore creates the items table if needed and wraps db.
func NewSQLiteStore(ctx context.Context, db *sql.DB, clock clockwork.Clock) (*SQLiteStore, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create items table: %w", err)
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

// KeyExists reports whether key has an entry.
func (s *SQLiteStore) KeyExists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query key: %w", err)
	}
	return true, nil
}

// Save upserts the payload for key.
func (s *SQLiteStore) Save(ctx context.Context, key string, payload []byte) error {
	query := `
		INSERT INTO items (key, data, updated) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET data = excluded.data, updated = excluded.updated
	`
	updated := s.clock.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, query, key, payload, updated); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Retrieve returns the payload for key.
func (s *SQLiteStore) Retrieve(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM items WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", key, err)
	}
	return data, nil
}

// KeyUpdated returns the last save time of key.
func (s *SQLiteStore) KeyUpdated(ctx context.Context, key string) (*time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT updated FROM items WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query updated %s: %w", key, err)
	}

	updated, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse updated %s: %w", key, err)
	}
	updated = updated.UTC()
	return &updated, nil
}

// Clear deletes key, or everything when key is empty.
func (s *SQLiteStore) Clear(ctx context.Context, key string) error {
	var err error
	if key == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM items`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key)
	}
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
