package types

// OutcomeStatus is the final state of one session.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the command's exchange completed.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeProtocolError indicates a malformed frame, bad ack, bad name, or unknown command.
	OutcomeProtocolError OutcomeStatus = "protocol_error"
	// OutcomeIOError indicates a transport or filesystem failure.
	OutcomeIOError OutcomeStatus = "io_error"
	// OutcomeStoreError indicates a metadata persistence failure.
	OutcomeStoreError OutcomeStatus = "store_error"
	// OutcomeNotFound indicates a delete of an unknown name.
	OutcomeNotFound OutcomeStatus = "not_found"
)

// IsFailure returns true for every status except success.
func (s OutcomeStatus) IsFailure() bool {
	return s != OutcomeSuccess
}

// SessionRecord summarizes one connection's command for the journal.
type SessionRecord struct {
	SessionID string        `json:"session_id"`
	Command   string        `json:"command"`
	Remote    string        `json:"remote"`
	Outcome   OutcomeStatus `json:"outcome"`
	// Subject is the file name for upload/delete and the term for search.
	Subject      string `json:"subject,omitempty"`
	Bytes        int64  `json:"bytes"`
	Matches      int64  `json:"matches"`
	FilesScanned int64  `json:"files_scanned"`
	// StartedAt is RFC 3339 UTC.
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}
