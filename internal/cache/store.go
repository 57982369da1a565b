// Package cache provides the key/value store that holds serialized
// temperature series, along with the freshness rules applied to it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/openeemeter/eeweather/internal/database"
)

// ErrUnsupportedURL is returned by Open for unknown backend schemes.
var ErrUnsupportedURL = errors.New("unsupported cache url")

// Store is a key/value store of opaque payloads with update timestamps.
// Implementations upsert on Save; keys are unique.
type Store interface {
	// KeyExists reports whether key has an entry.
	KeyExists(ctx context.Context, key string) (bool, error)

	// Save inserts or replaces the payload for key and stamps it with the
	// current time.
	Save(ctx context.Context, key string, payload []byte) error

	// Retrieve returns the payload for key, or nil if there is none.
	Retrieve(ctx context.Context, key string) ([]byte, error)

	// KeyUpdated returns when key was last saved, or nil if there is no entry.
	KeyUpdated(ctx context.Context, key string) (*time.Time, error)

	// Clear deletes key, or every entry when key is empty.
	Clear(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

// Entry is a stored payload with its last update time.
type Entry struct {
	Key     string
	Payload []byte
	Updated time.Time
}

// Config selects and configures a backend.
type Config struct {
	// URL selects the backend: sqlite:///path/cache.db, a bare file path,
	// postgres://..., or memory://.
	URL string

	// Clock stamps saved entries. Defaults to the real clock.
	Clock clockwork.Clock

	Logger zerolog.Logger
}

// Open creates the backend selected by cfg.URL.
func Open(ctx context.Context, cfg Config) (Store, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	switch {
	case strings.HasPrefix(cfg.URL, "memory://"):
		cfg.Logger.Debug().Msg("using in-memory cache")
		return NewMemoryStore(clock), nil

	case database.IsPostgres(cfg.URL):
		pool, err := database.Connect(ctx, database.ConfigFromEnv(cfg.URL))
		if err != nil {
			return nil, fmt.Errorf("connect cache database: %w", err)
		}
		store, err := NewPostgresStore(ctx, pool, clock)
		if err != nil {
			pool.Close()
			return nil, err
		}
		cfg.Logger.Debug().Msg("using postgres cache")
		return store, nil

	case database.IsSQLite(cfg.URL):
		path, err := database.SQLitePath(cfg.URL)
		if err != nil {
			return nil, err
		}
		db, err := database.OpenSQLite(ctx, path, false)
		if err != nil {
			return nil, fmt.Errorf("open cache database: %w", err)
		}
		store, err := NewSQLiteStore(ctx, db, clock)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		cfg.Logger.Debug().Str("path", path).Msg("using sqlite cache")
		return store, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, cfg.URL)
}
