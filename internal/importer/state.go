package importer

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// StateStore persists the (logical key → last-seen mtime ms) map that
// makes the importer resumable and idempotent.
type StateStore struct {
	db *sql.DB
}

// ArchiveStateKey is the reserved key for the bulk tar.gz archive.
const ArchiveStateKey = "__daily_summaries_archive__"

// OpenStateStore opens (and initialises) the state database.
func OpenStateStore(path string) (*StateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening import state db: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS import_state (
		key TEXT PRIMARY KEY,
		mtime_ms INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising import state db: %w", err)
	}
	return &StateStore{db: db}, nil
}

// Get returns the recorded mtime for a key, or 0 when unseen.
func (s *StateStore) Get(key string) (int64, error) {
	var mtime int64
	err := s.db.QueryRow(`SELECT mtime_ms FROM import_state WHERE key = ?`, key).Scan(&mtime)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return mtime, nil
}

// Put records the mtime for a key.
func (s *StateStore) Put(key string, mtimeMs int64) error {
	_, err := s.db.Exec(`INSERT INTO import_state (key, mtime_ms) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET mtime_ms = excluded.mtime_ms`, key, mtimeMs)
	return err
}

// Close releases the state database.
func (s *StateStore) Close() error {
	return s.db.Close()
}
