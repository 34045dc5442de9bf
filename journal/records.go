package journal

import (
	"encoding/json"
	"time"

	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/types"
)

// sessionRecordMap converts a session record to the stored map, adding the
// record kind and partition keys.
func sessionRecordMap(rec types.SessionRecord) map[string]any {
	started, err := time.Parse(time.RFC3339Nano, rec.StartedAt)
	if err != nil {
		started = time.Now()
	}
	day := DeriveDay(started)

	m := map[string]any{
		"record_kind":   RecordKindSession,
		"session_id":    rec.SessionID,
		"command":       rec.Command,
		"remote":        rec.Remote,
		"outcome":       string(rec.Outcome),
		"bytes":         rec.Bytes,
		"matches":       rec.Matches,
		"files_scanned": rec.FilesScanned,
		"started_at":    rec.StartedAt,
		"duration_ms":   rec.DurationMs,
		"day":           day,
	}
	if rec.Subject != "" {
		m["subject"] = rec.Subject
	}
	if rec.Error != "" {
		m["error"] = rec.Error
	}
	return m
}

// metricsRecordMap converts a metrics snapshot to the stored map.
func metricsRecordMap(snap metrics.Snapshot, at time.Time) map[string]any {
	m := snap.Fields()
	m["record_kind"] = RecordKindMetrics
	m["recorded_at"] = at.UTC().Format(time.RFC3339Nano)
	m["day"] = DeriveDay(at)
	m["command"] = metricsCommand
	return m
}

// decodeSession maps a stored record back to a SessionRecord.
// Numbers arrive as float64 from the JSONL codec; a JSON round trip restores
// the typed fields.
func decodeSession(record map[string]any) (types.SessionRecord, error) {
	var rec types.SessionRecord
	data, err := json.Marshal(record)
	if err != nil {
		return rec, err
	}
	err = json.Unmarshal(data, &rec)
	return rec, err
}
