// ABOUTME: SQL implementation of the Store interface, SQLite flavour via modernc.org/sqlite
// ABOUTME: Provides identity/transcript document persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dialect captures the few places where SQLite and PostgreSQL differ.
type dialect struct {
	name              string
	rebind            func(query string) string
	isUniqueViolation func(err error) bool
}

var sqliteDialect = dialect{
	name:              "sqlite",
	rebind:            func(q string) string { return q },
	isUniqueViolation: isSQLiteConstraintViolation,
}

// SQLStore implements Store on top of database/sql. Transcripts are kept as
// documents: the whole ordered message list lives in one row as a JSON array.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLStore, error) {
	logger := slog.Default().With("component", "store", "driver", "sqlite")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLStore{
		db:      db,
		dialect: sqliteDialect,
		logger:  logger,
	}

	if err := s.createSQLiteSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSQLiteSchema creates the database tables if they don't exist
func (s *SQLStore) createSQLiteSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL,
			age           INTEGER NOT NULL DEFAULT 0,
			gender        TEXT NOT NULL,
			transcript_id TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (role IN ('student', 'retraining', 'teacher', 'management'))
		);

		CREATE TABLE IF NOT EXISTS transcripts (
			id          TEXT PRIMARY KEY,
			identity_id TEXT NOT NULL UNIQUE,
			messages    TEXT NOT NULL DEFAULT '[]',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS completion_usage (
			id                TEXT PRIMARY KEY,
			identity_id       TEXT NOT NULL,
			role              TEXT NOT NULL,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_completion_usage_identity ON completion_usage(identity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// isSQLiteConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isSQLiteConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	s.logger.Info("closing store")
	return s.db.Close()
}
