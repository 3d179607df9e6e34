package jsonfile

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	N int `json:"n"`
}

func TestTablePersistsCommittedUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rows.json")

	tbl, err := Open[string, row](path)
	require.NoError(t, err)
	_, ok := tbl.Get("a")
	assert.False(t, ok)

	require.NoError(t, tbl.Update(func(rows map[string]row) bool {
		rows["a"] = row{N: 1}
		rows["b"] = row{N: 2}
		return true
	}))
	_, err = os.Stat(path + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Uncommitted changes stay in memory only.
	require.NoError(t, tbl.Update(func(rows map[string]row) bool {
		rows["c"] = row{N: 3}
		return false
	}))

	reopened, err := Open[string, row](path)
	require.NoError(t, err)
	got, ok := reopened.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, got.N)
	keys := reopened.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestOpenEmptyAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	tbl, err := Open[string, row](empty)
	require.NoError(t, err)
	assert.Empty(t, tbl.Keys())

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0o600))
	_, err = Open[string, row](corrupt)
	assert.Error(t, err)
}

func TestInMemoryNeverWrites(t *testing.T) {
	tbl := InMemory[string, row]()
	require.NoError(t, tbl.Update(func(rows map[string]row) bool {
		rows["a"] = row{N: 1}
		return true
	}))
	got, ok := tbl.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got.N)
}
