// Package database provides connection management for the PostgreSQL and
// embedded SQLite backends.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// ErrUnsupportedURL is returned for connection URLs with an unknown scheme.
var ErrUnsupportedURL = errors.New("unsupported database url")

// Config holds database connection configuration.
type Config struct {
	// URL is a postgres://, postgresql://, sqlite:// or file path URL.
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv creates a Config for url with pool tuning from environment
// variables.
func ConfigFromEnv(url string) Config {
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "10"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "2"))
	lifetime, _ := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "5m"))

	return Config{
		URL:             url,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
	}
}

// IsPostgres reports whether url points at a PostgreSQL server.
func IsPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// IsSQLite reports whether url points at an SQLite file.
func IsSQLite(url string) bool {
	return strings.HasPrefix(url, "sqlite://") || strings.HasPrefix(url, "file:") || strings.HasPrefix(url, "/")
}

// SQLitePath extracts the file path from an sqlite:// URL. The
// "sqlite:///abs/path.db" form yields "/abs/path.db".
func SQLitePath(rawURL string) (string, error) {
	switch {
	case strings.HasPrefix(rawURL, "/"):
		return rawURL, nil
	case strings.HasPrefix(rawURL, "file:"):
		return strings.TrimPrefix(rawURL, "file:"), nil
	case strings.HasPrefix(rawURL, "sqlite://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Host + u.Path
		if path == "" {
			return "", fmt.Errorf("%w: %q has no path", ErrUnsupportedURL, rawURL)
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
}

// Connect creates a new PostgreSQL connection pool.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // bounded by config
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns) //nolint:gosec // bounded by config
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// OpenSQLite opens an SQLite database file. Writable databases get their
// parent directory created and are limited to a single connection so
// writers never contend for the file lock.
func OpenSQLite(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	dsn := "file:" + path
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		dsn += "?mode=ro"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if !readOnly {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return db, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
