// Package storage opens the SQLite database shared by the features that
// persist state, currently the verification history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DefaultPath is used when Config.Path is empty.
const DefaultPath = "data/contractkit.db"

// Config holds storage configuration
type Config struct {
	// Path is the database file path (default: data/contractkit.db).
	// ":memory:" opens a private in-memory database.
	Path string
}

// SQLite is a SQLite database handle. It is safe for concurrent use.
type SQLite struct {
	db   *sql.DB
	path string
}

// Open creates the database file's directory if needed and opens it.
// WAL mode is enabled for file databases so readers do not block the writer.
func Open(ctx context.Context, cfg Config) (*SQLite, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = "file:" + cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite only allows one writer at a time; a single connection also keeps
	// an in-memory database alive for the life of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLite{db: db, path: cfg.Path}, nil
}

// DB returns the underlying connection pool.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Path returns the database path.
func (s *SQLite) Path() string {
	return s.path
}

// Close releases the connection pool.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
