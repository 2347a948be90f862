package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store manages the SQLite database holding clipboard records.
type Store struct {
	db   *sqlx.DB
	path string
}

// NewStore opens the database at path and brings its schema up to date.
func NewStore(path string) (*Store, error) {
	// busy_timeout is per connection, so it goes in the DSN for every pooled one.
	// Background indexing writes while the CLI reads.
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db, path: path}

	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ListTables returns all table names in the database.
func (s *Store) ListTables() []string {
	var tables []string
	err := s.db.Select(&tables, `
		SELECT name FROM sqlite_master
		WHERE type='table'
		ORDER BY name
	`)
	if err != nil {
		return nil
	}
	return tables
}
