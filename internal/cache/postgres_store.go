package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS items (
		key     TEXT PRIMARY KEY,
		data    BYTEA NOT NULL,
		updated TIMESTAMPTZ NOT NULL
	)
`

// PostgresStore is a Store backed by a PostgreSQL table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

// NewPostgresStore creates the items table if needed and wraps pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, clock clockwork.Clock) (*PostgresStore, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create items table: %w", err)
	}
	return &PostgresStore{pool: pool, clock: clock}, nil
}

// KeyExists reports whether key has an entry.
func (r *PostgresStore) KeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query key: %w", err)
	}
	return exists, nil
}

// Save upserts the payload for key.
func (r *PostgresStore) Save(ctx context.Context, key string, payload []byte) error {
	query := `
		INSERT INTO items (key, data, updated) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated = EXCLUDED.updated
	`
	if _, err := r.pool.Exec(ctx, query, key, payload, r.clock.Now().UTC()); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Retrieve returns the payload for key.
func (r *PostgresStore) Retrieve(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM items WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve %s: %w", key, err)
	}
	return data, nil
}

// KeyUpdated returns the last save time of key.
func (r *PostgresStore) KeyUpdated(ctx context.Context, key string) (*time.Time, error) {
	var updated time.Time
	err := r.pool.QueryRow(ctx, `SELECT updated FROM items WHERE key = $1`, key).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query updated %s: %w", key, err)
	}
	updated = updated.UTC()
	return &updated, nil
}

// Clear deletes key, or everything when key is empty.
func (r *PostgresStore) Clear(ctx context.Context, key string) error {
	var err error
	if key == "" {
		_, err = r.pool.Exec(ctx, `DELETE FROM items`)
	} else {
		_, err = r.pool.Exec(ctx, `DELETE FROM items WHERE key = $1`, key)
	}
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *PostgresStore) Close() error {
	r.pool.Close()
	return nil
}
