package csvstore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Index is the sqlite overlay recording completed units. It exists so
// a rerun can skip finished work even after the CSVs are shipped off
// the machine.
type Index struct {
	db *sql.DB
}

// NewIndex wraps an already-opened database that has Schema applied.
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// OpenIndex opens (creating if needed) the completion database at
// path. Use ":memory:" in tests.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open completion index: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}
	return NewIndex(db), nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) IsComplete(key string) (bool, error) {
	var n int
	err := i.db.QueryRow(
		"SELECT COUNT(*) FROM completed_units WHERE unit_key = ?", key,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkComplete is idempotent; marking a unit twice is not an error.
func (i *Index) MarkComplete(key string) error {
	_, err := i.db.Exec(
		"INSERT OR IGNORE INTO completed_units (unit_key, completed_at) VALUES (?, ?)",
		key, time.Now().Unix(),
	)
	return err
}

// Forget drops a unit from the index so it will be crawled again.
func (i *Index) Forget(key string) error {
	_, err := i.db.Exec("DELETE FROM completed_units WHERE unit_key = ?", key)
	return err
}
