package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/pithecene-io/strata/types"
)

// Memory is an in-process Store. Records do not survive a restart.
type Memory struct {
	mu      sync.RWMutex
	records map[string]string
	closed  bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]string)}
}

// Put inserts or replaces the record for name.
func (m *Memory) Put(_ context.Context, name, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wrap("put", name, ErrClosed)
	}
	m.records[name] = path
	return nil
}

// Get returns the record for name.
func (m *Memory) Get(_ context.Context, name string) (types.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return types.FileRecord{}, wrap("get", name, ErrClosed)
	}
	path, ok := m.records[name]
	if !ok {
		return types.FileRecord{}, wrap("get", name, ErrNotFound)
	}
	return types.FileRecord{Name: name, Path: path}, nil
}

// Delete removes the record for name.
func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wrap("delete", name, ErrClosed)
	}
	if _, ok := m.records[name]; !ok {
		return wrap("delete", name, ErrNotFound)
	}
	delete(m.records, name)
	return nil
}

// List returns every record sorted by name.
func (m *Memory) List(_ context.Context) ([]types.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, wrap("list", "", ErrClosed)
	}
	return sortedRecords(m.records), nil
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func sortedRecords(records map[string]string) []types.FileRecord {
	out := make([]types.FileRecord, 0, len(records))
	for _, name := range slices.Sorted(maps.Keys(records)) {
		out = append(out, types.FileRecord{Name: name, Path: records[name]})
	}
	return out
}

var _ Store = (*Memory)(nil)
