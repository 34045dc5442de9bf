// Package store holds the name → path metadata for archived files.
//
// The Store interface is owned by the session dispatcher and injected into
// every handler; there is no process-wide metadata state. Each backend
// serializes its own writes, so concurrent sessions may share one Store.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/strata/types"
)

// ErrNotFound indicates no record exists for the name.
var ErrNotFound = errors.New("not found")

// ErrClosed indicates the store was used after Close.
var ErrClosed = errors.New("store closed")

// StoreError wraps a backend failure with the operation and record name.
type StoreError struct {
	// Op is the operation that failed (put, get, delete, list, open).
	Op string
	// Name is the record name involved, if any.
	Name string
	// Err is the underlying error.
	Err error
}

func (e *StoreError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrap(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Name: name, Err: err}
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store persists FileRecords keyed by name.
type Store interface {
	// Put inserts or replaces the record for name.
	Put(ctx context.Context, name, path string) error
	// Get returns the record for name, or ErrNotFound.
	Get(ctx context.Context, name string) (types.FileRecord, error)
	// Delete removes the record for name, or returns ErrNotFound.
	Delete(ctx context.Context, name string) error
	// List returns every record sorted by name.
	List(ctx context.Context) ([]types.FileRecord, error)
	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	// Backend is file (default), memory, or redis.
	Backend string
	// Path is the snapshot file for the file backend.
	Path string
	// URL is the redis connection URL.
	URL string
	// Prefix namespaces redis keys (default "strata").
	Prefix string
}

// Open creates the configured backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		if opts.Path == "" {
			return nil, wrap("open", "", errors.New("file backend requires a path"))
		}
		return OpenFile(opts.Path)
	case BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		return NewRedis(RedisConfig{URL: opts.URL, Prefix: opts.Prefix})
	default:
		return nil, wrap("open", "", fmt.Errorf("unknown backend %q", opts.Backend))
	}
}
