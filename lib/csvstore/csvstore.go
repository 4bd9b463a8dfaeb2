// Package csvstore persists crawl results as one CSV file per work
// unit and remembers which units have already been captured. Files are
// the source of truth; the sqlite index is a fast overlay that also
// survives the files being moved elsewhere.
package csvstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Store struct {
	dir   string
	index *Index
}

// Open prepares a store rooted at dir. index may be nil, in which case
// completion is judged from the files alone.
func Open(dir string, index *Index) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Store{dir: dir, index: index}, nil
}

func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key+".csv")
}

// Exists reports whether the unit named by key has already been
// persisted, either as a file on disk or as an index entry.
func (s *Store) Exists(key string) bool {
	if _, err := os.Stat(s.Path(key)); err == nil {
		return true
	}
	if s.index != nil {
		done, err := s.index.IsComplete(key)
		return err == nil && done
	}
	return false
}

// Write persists a unit's table atomically: the bytes go to a temp
// file first and only a successful rename makes the unit visible.
// A crash mid-write can therefore never leave a truncated CSV that
// later runs would mistake for a completed unit.
func (s *Store) Write(key string, header []string, rows [][]string) (string, error) {
	final := s.Path(key)
	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// BOM so the files open cleanly in Excel, which the data's
	// consumers live in
	if _, err := tmp.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write bom: %w", err)
	}
	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("publish csv: %w", err)
	}
	return final, nil
}

// Mark records key in the index. Call only after Write succeeded:
// marking first would let a crash strand a unit as complete-but-empty.
func (s *Store) Mark(key string) error {
	if s.index == nil {
		return nil
	}
	return s.index.MarkComplete(key)
}

// Keys lists the persisted units, sorted, derived from the files on
// disk.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") || strings.HasPrefix(name, ".") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".csv"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Read loads a persisted unit back, stripping the BOM.
func (s *Store) Read(key string) (header []string, rows [][]string, err error) {
	f, err := os.Open(s.Path(key))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", s.Path(key), err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	header = records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	return header, records[1:], nil
}
