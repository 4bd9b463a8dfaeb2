package pmos

import "fmt"

// Store is the persistence collaborator: it answers whether a unit's
// output already exists and accepts new output. lib/csvstore
// satisfies it.
type Store interface {
	Exists(key string) bool
	Write(key string, header []string, rows [][]string) (string, error)
	Mark(key string) error
}

// Tracker decides which units can be skipped and commits finished
// ones. Commit orders write before mark: a crash between the two
// re-crawls the unit (harmless), whereas the opposite order could
// record a unit complete with no data behind it.
type Tracker struct {
	store Store
	// Force disables skipping, re-crawling units that already exist.
	Force bool
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

func (t *Tracker) IsComplete(key string) bool {
	if t.Force {
		return false
	}
	return t.store.Exists(key)
}

func (t *Tracker) Commit(key string, table Table) error {
	if _, err := t.store.Write(key, table.Header, table.Rows); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	if err := t.store.Mark(key); err != nil {
		return fmt.Errorf("mark %s complete: %w", key, err)
	}
	return nil
}
