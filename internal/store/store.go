// Package store is the persistence façade over the relational schema in
// §3: typed operations for rules, channels, alerts, notifications,
// metrics, heartbeats, instances, secrets, vulnerabilities, BOM, and
// drift, backed by SQLite.
package store

import (
	"database/sql"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"
)

// Store wraps the connection pool and exposes typed query/command methods
// implemented across the other files in this package.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, applies
// the schema migration, and configures a bounded connection pool.
func Open(path string, maxConns int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := createSchema(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying pool for components (e.g. metrics collectors)
// that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
