package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/types"
)

// snapshotVersion guards the on-disk layout.
const snapshotVersion = 1

// snapshot is the msgpack document persisted by File.
type snapshot struct {
	Version int                `msgpack:"version"`
	Records []types.FileRecord `msgpack:"records"`
}

// File is a Store persisted as a single msgpack snapshot. Every mutation
// rewrites the snapshot atomically under the store mutex, so a crash leaves
// either the old or the new snapshot.
type File struct {
	path string

	mu      sync.RWMutex
	records map[string]string
	closed  bool
}

// OpenFile loads the snapshot at path, or starts empty if it does not exist.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, records: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, wrap("open", "", err)
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, wrap("open", "", fmt.Errorf("decode snapshot %s: %w", path, err))
	}
	if snap.Version != snapshotVersion {
		return nil, wrap("open", "", fmt.Errorf("snapshot %s: unsupported version %d", path, snap.Version))
	}
	for _, rec := range snap.Records {
		f.records[rec.Name] = rec.Path
	}
	return f, nil
}

// persist writes the current records. Caller holds mu.
func (f *File) persist() error {
	data, err := msgpack.Marshal(&snapshot{
		Version: snapshotVersion,
		Records: sortedRecords(f.records),
	})
	if err != nil {
		return err
	}
	return iox.WriteFileAtomic(f.path, data)
}

// Put inserts or replaces the record for name.
func (f *File) Put(_ context.Context, name, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return wrap("put", name, ErrClosed)
	}

	prev, had := f.records[name]
	f.records[name] = path
	if err := f.persist(); err != nil {
		if had {
			f.records[name] = prev
		} else {
			delete(f.records, name)
		}
		return wrap("put", name, err)
	}
	return nil
}

// Get returns the record for name.
func (f *File) Get(_ context.Context, name string) (types.FileRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return types.FileRecord{}, wrap("get", name, ErrClosed)
	}
	path, ok := f.records[name]
	if !ok {
		return types.FileRecord{}, wrap("get", name, ErrNotFound)
	}
	return types.FileRecord{Name: name, Path: path}, nil
}

// Delete removes the record for name.
func (f *File) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return wrap("delete", name, ErrClosed)
	}

	prev, ok := f.records[name]
	if !ok {
		return wrap("delete", name, ErrNotFound)
	}
	delete(f.records, name)
	if err := f.persist(); err != nil {
		f.records[name] = prev
		return wrap("delete", name, err)
	}
	return nil
}

// List returns every record sorted by name.
func (f *File) List(_ context.Context) ([]types.FileRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, wrap("list", "", ErrClosed)
	}
	return sortedRecords(f.records), nil
}

// Close marks the store closed. The snapshot is already durable.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ Store = (*File)(nil)
