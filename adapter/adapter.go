// Package adapter defines the change-notification boundary.
//
// Adapters publish archive change events (uploads and deletes) to downstream
// systems. Publishing happens after the session's protocol exchange, so a
// slow or failing adapter never changes what a client observes.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types.
const (
	EventFileUploaded = "file_uploaded"
	EventFileDeleted  = "file_deleted"
)

// ArchiveEvent is the payload published when the archive changes.
type ArchiveEvent struct {
	ProtocolVersion string `json:"protocol_version"`
	EventType       string `json:"event_type"` // file_uploaded or file_deleted
	Name            string `json:"name"`
	SizeBytes       int64  `json:"size_bytes"`
	SessionID       string `json:"session_id"`
	Remote          string `json:"remote"`
	Timestamp       string `json:"timestamp"` // RFC 3339
}

// Encode returns the JSON body every adapter publishes.
func (e *ArchiveEvent) Encode() ([]byte, error) {
	if e == nil {
		return nil, errors.New("nil event")
	}
	if e.EventType == "" || e.Name == "" {
		return nil, fmt.Errorf("incomplete event: type=%q name=%q", e.EventType, e.Name)
	}
	return json.Marshal(e)
}

// Adapter publishes archive change events to a downstream system.
// Implementations must be safe for concurrent use by sessions.
type Adapter interface {
	// Publish delivers one event, honoring ctx.
	Publish(ctx context.Context, event *ArchiveEvent) error
	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt i (i >= 1):
// 500ms, 1s, 2s, ...
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// permanentError stops Retry early.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs attempt up to 1+retries times with Backoff between tries.
// It stops on success, on a Permanent error, or when ctx is done.
// wait is Sleep when nil; tests substitute a fast one.
func Retry(ctx context.Context, retries int, wait func(context.Context, time.Duration) error, attempt func(context.Context) error) error {
	if wait == nil {
		wait = Sleep
	}
	var last error
	for i := range 1 + retries {
		if i > 0 {
			if err := wait(ctx, Backoff(i)); err != nil {
				return fmt.Errorf("canceled during backoff: %w (last error: %v)", err, last)
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("canceled: %w", err)
		}
		last = attempt(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", 1+retries, last)
}

// Nop discards events. It is the adapter for notify type "none".
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, *ArchiveEvent) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

var _ Adapter = Nop{}
