package csvstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pmoscrawl/lib/csvstore"
)

func TestWriteReadRoundtrip(t *testing.T) {
	store, err := csvstore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	header := []string{"日期", "时段", "电价(元/MWh)"}
	rows := [][]string{
		{"2025-06-01", "1", "312.5"},
		{"2025-06-01", "2", "-80"},
	}
	path, err := store.Write("demand_2025-06-01", header, rows)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEF, 0xBB, 0xBF}, raw[:3], "file should start with a utf-8 bom")

	gotHeader, gotRows, err := store.Read("demand_2025-06-01")
	require.NoError(t, err)
	require.Equal(t, header, gotHeader, "bom must not leak into the first header cell")
	require.Equal(t, rows, gotRows)
}

func TestExistsFromFile(t *testing.T) {
	store, err := csvstore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	require.False(t, store.Exists("spot_2025-06-01"))
	_, err = store.Write("spot_2025-06-01", []string{"a"}, nil)
	require.NoError(t, err)
	require.True(t, store.Exists("spot_2025-06-01"))
}

func TestExistsFromIndexAfterFileGone(t *testing.T) {
	dir := t.TempDir()
	index, err := csvstore.OpenIndex(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	store, err := csvstore.Open(dir, index)
	require.NoError(t, err)

	path, err := store.Write("spot_2025-06-01", []string{"a"}, [][]string{{"1"}})
	require.NoError(t, err)
	require.NoError(t, store.Mark("spot_2025-06-01"))

	// the files were shipped away; the index still remembers
	require.NoError(t, os.Remove(path))
	require.True(t, store.Exists("spot_2025-06-01"))

	require.NoError(t, index.Forget("spot_2025-06-01"))
	require.False(t, store.Exists("spot_2025-06-01"))
}

func TestMarkIdempotent(t *testing.T) {
	index, err := csvstore.OpenIndex(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	require.NoError(t, index.MarkComplete("k"))
	require.NoError(t, index.MarkComplete("k"))
	done, err := index.IsComplete("k")
	require.NoError(t, err)
	require.True(t, done)
}

func TestKeysSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := csvstore.Open(dir, nil)
	require.NoError(t, err)

	_, err = store.Write("b_unit", []string{"h"}, nil)
	require.NoError(t, err)
	_, err = store.Write("a_unit", []string{"h"}, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".a_unit.123.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	keys, err := store.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"a_unit", "b_unit"}, keys)
}
