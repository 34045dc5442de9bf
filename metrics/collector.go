// Package metrics provides server-wide counters for the archive.
//
// The Collector accumulates counters over the lifetime of a server. It is a
// leaf package with no internal dependencies; command names are plain strings
// so it stays free of the types package.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	SessionsActive    int64
	ByCommand         map[string]int64

	// Protocol
	ProtocolErrors int64

	// Payload
	BytesUploaded int64
	FilesDeleted  int64
	Searches      int64
	Matches       int64
	BytesScanned  int64

	// Side channels
	JournalWriteSuccess int64
	JournalWriteFailure int64
	NotifySuccess       int64
	NotifyFailure       int64

	// Dimensions (informational, set at construction)
	StoreBackend   string
	JournalBackend string
}

// Fields flattens the snapshot for structured logging and journaling.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"sessions_started":      s.SessionsStarted,
		"sessions_completed":    s.SessionsCompleted,
		"sessions_failed":       s.SessionsFailed,
		"sessions_active":       s.SessionsActive,
		"sessions_by_command":   s.ByCommand,
		"protocol_errors":       s.ProtocolErrors,
		"bytes_uploaded":        s.BytesUploaded,
		"files_deleted":         s.FilesDeleted,
		"searches":              s.Searches,
		"matches":               s.Matches,
		"bytes_scanned":         s.BytesScanned,
		"journal_write_success": s.JournalWriteSuccess,
		"journal_write_failure": s.JournalWriteFailure,
		"notify_success":        s.NotifySuccess,
		"notify_failure":        s.NotifyFailure,
		"store_backend":         s.StoreBackend,
		"journal_backend":       s.JournalBackend,
	}
}

// Collector accumulates server metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsCompleted int64
	sessionsFailed    int64
	byCommand         map[string]int64

	protocolErrors int64

	bytesUploaded int64
	filesDeleted  int64
	searches      int64
	matches       int64
	bytesScanned  int64

	journalWriteSuccess int64
	journalWriteFailure int64
	notifySuccess       int64
	notifyFailure       int64

	storeBackend   string
	journalBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(storeBackend, journalBackend string) *Collector {
	return &Collector{
		byCommand:      make(map[string]int64),
		storeBackend:   storeBackend,
		journalBackend: journalBackend,
	}
}

// --- Session lifecycle ---

// IncSessionStarted records a session whose command byte was read.
func (c *Collector) IncSessionStarted(command string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsStarted++
	c.byCommand[command]++
	c.mu.Unlock()
}

// IncSessionCompleted records a session that finished its exchange.
func (c *Collector) IncSessionCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsCompleted++
	c.mu.Unlock()
}

// IncSessionFailed records a session that ended in an error.
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsFailed++
	c.mu.Unlock()
}

// IncProtocolError records a peer protocol violation.
func (c *Collector) IncProtocolError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.protocolErrors++
	c.mu.Unlock()
}

// --- Payload ---

// AddBytesUploaded records a completed upload body.
func (c *Collector) AddBytesUploaded(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesUploaded += n
	c.mu.Unlock()
}

// IncFilesDeleted records a committed delete.
func (c *Collector) IncFilesDeleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesDeleted++
	c.mu.Unlock()
}

// RecordSearch records one search and its totals.
func (c *Collector) RecordSearch(matches, bytesScanned int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.searches++
	c.matches += matches
	c.bytesScanned += bytesScanned
	c.mu.Unlock()
}

// --- Side channels ---
// Journal and notification counters are per-call. A failed call is counted
// once, after any adapter-internal retries.

// IncJournalWriteSuccess records a successful journal append.
func (c *Collector) IncJournalWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.journalWriteSuccess++
	c.mu.Unlock()
}

// IncJournalWriteFailure records a failed journal append.
func (c *Collector) IncJournalWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.journalWriteFailure++
	c.mu.Unlock()
}

// IncNotifySuccess records a delivered change notification.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.notifySuccess++
	c.mu.Unlock()
}

// IncNotifyFailure records an undeliverable change notification.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.notifyFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsCompleted: c.sessionsCompleted,
		SessionsFailed:    c.sessionsFailed,
		SessionsActive:    c.sessionsStarted - c.sessionsCompleted - c.sessionsFailed,
		ByCommand:         maps.Clone(c.byCommand),

		ProtocolErrors: c.protocolErrors,

		BytesUploaded: c.bytesUploaded,
		FilesDeleted:  c.filesDeleted,
		Searches:      c.searches,
		Matches:       c.matches,
		BytesScanned:  c.bytesScanned,

		JournalWriteSuccess: c.journalWriteSuccess,
		JournalWriteFailure: c.journalWriteFailure,
		NotifySuccess:       c.notifySuccess,
		NotifyFailure:       c.notifyFailure,

		StoreBackend:   c.storeBackend,
		JournalBackend: c.journalBackend,
	}
}
