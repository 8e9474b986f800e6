package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the per-output sqlite sidecar holding resume state and the
// attachment job ledger.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the sidecar at path with WAL journaling.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping state db: %w", err)
	}
	// Writes come from the media workers too; sqlite serializes them anyway.
	db.SetMaxOpenConns(1)
	return &DB{DB: db, path: path}, nil
}

// Path returns the sidecar file path.
func (db *DB) Path() string {
	return db.path
}
