// Package jsonfile keeps a small keyed table in memory and mirrors it to a JSON document on disk.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Table is a mutex-guarded map. With a path, every committed update rewrites the file atomically
// (temp file + rename); with an empty path it never touches disk.
type Table[K comparable, V any] struct {
	path string
	mu   sync.RWMutex
	rows map[K]V
}

// Open loads path if it exists. A missing or empty file yields an empty table.
func Open[K comparable, V any](path string) (*Table[K, V], error) {
	t := &Table[K, V]{path: path, rows: make(map[K]V)}
	if path == "" {
		return t, nil
	}
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(blob) == 0) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(blob, &t.rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return t, nil
}

// InMemory returns a table that is never persisted.
func InMemory[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{rows: make(map[K]V)}
}

func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[key]
	return v, ok
}

// Keys returns a snapshot of the current keys in no particular order.
func (t *Table[K, V]) Keys() []K {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]K, 0, len(t.rows))
	for k := range t.rows {
		out = append(out, k)
	}
	return out
}

// Update runs fn under the write lock. The table is persisted only when fn reports a change.
func (t *Table[K, V]) Update(fn func(rows map[K]V) (changed bool)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !fn(t.rows) {
		return nil
	}
	return t.persist()
}

func (t *Table[K, V]) persist() error {
	if t.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(t.rows, "", "  ")
	if err != nil {
		return err
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}
