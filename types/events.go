package types

import "time"

// EventKind discriminates the messages a server streams back to a client.
type EventKind string

// Event kinds. The text prefix on the wire is the kind followed by ':'.
const (
	EventFoundIn EventKind = "found_in"
	EventFound   EventKind = "found"
	EventUpdate  EventKind = "update"
	EventDone    EventKind = "done"
	EventFile    EventKind = "file"
	EventError   EventKind = "error"
)

// IsTerminal returns true if no further events follow this kind.
func (k EventKind) IsTerminal() bool {
	return k == EventDone || k == EventError
}

// Match is a single search hit.
type Match struct {
	// File is the logical name of the file the match was found in.
	File string
	// Offset is the absolute byte offset of the first matched byte.
	Offset int64
	// Snippet is the matched text plus trailing context, control characters removed.
	Snippet string
}

// Event is the tagged variant for every outgoing search and list message.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// File is set for found_in and file events.
	File string
	// Match is set for found events.
	Match Match
	// Percent is set for update events, in [0, 100].
	Percent float64
	// Elapsed is set for search done events. List done events leave it zero.
	Elapsed time.Duration
	// Message is set for error events.
	Message string
}

// FoundIn announces the file whose matches follow.
func FoundIn(file string) Event { return Event{Kind: EventFoundIn, File: file} }

// Found reports one match.
func Found(m Match) Event { return Event{Kind: EventFound, Match: m} }

// Update reports aggregate progress.
func Update(percent float64) Event { return Event{Kind: EventUpdate, Percent: percent} }

// Done terminates a search or list stream.
func Done(elapsed time.Duration) Event { return Event{Kind: EventDone, Elapsed: elapsed} }

// File reports one stored file in a list stream.
func File(name string) Event { return Event{Kind: EventFile, File: name} }

// Error carries a diagnostic for the peer before the connection closes.
func Error(message string) Event { return Event{Kind: EventError, Message: message} }
