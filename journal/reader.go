package journal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/strata/types"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// Filter narrows session queries. Empty fields match everything.
type Filter struct {
	Day     string
	Command string
}

// Reader queries a journal dataset.
type Reader struct {
	dataset lode.Dataset
}

// NewReader creates a reader over a store factory, using the same layout as
// the write path.
func NewReader(dataset string, factory lode.StoreFactory) (*Reader, error) {
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, err
	}
	return &Reader{dataset: ds}, nil
}

// OpenReader creates a reader for a location: a local directory, or
// s3://bucket/prefix.
func OpenReader(ctx context.Context, dataset, location string, opts Options) (*Reader, error) {
	if strings.HasPrefix(location, "s3://") {
		opts.Path = location
		factory, err := NewS3Factory(ctx, opts.S3())
		if err != nil {
			return nil, err
		}
		return NewReader(dataset, factory)
	}
	return NewReader(dataset, lode.NewFSFactory(location))
}

// Sessions returns all session records matching f in write order.
func (r *Reader) Sessions(ctx context.Context, f Filter) ([]types.SessionRecord, error) {
	snapshots, err := r.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrapError("read", "snapshots", err)
	}

	var out []types.SessionRecord
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "day", f.Day) || !snapshotMatchesFilter(snap, "command", f.Command) {
			continue
		}
		data, err := r.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapError("read", fmt.Sprintf("snapshot/%s", snap.ID), err)
		}
		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindSession {
				continue
			}
			if f.Day != "" && toString(record["day"]) != f.Day {
				continue
			}
			if f.Command != "" && toString(record["command"]) != f.Command {
				continue
			}
			rec, err := decodeSession(record)
			if err != nil {
				return nil, fmt.Errorf("decode session record: %w", err)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// LatestMetrics returns the most recent metrics record.
func (r *Reader) LatestMetrics(ctx context.Context) (map[string]any, error) {
	snapshots, err := r.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrapError("read", "snapshots", err)
	}

	// Snapshots are ordered by creation time; walk newest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "command", metricsCommand) {
			continue
		}
		data, err := r.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapError("read", fmt.Sprintf("snapshot/%s", snap.ID), err)
		}
		for _, item := range data {
			if record, ok := item.(map[string]any); ok && record["record_kind"] == RecordKindMetrics {
				return record, nil
			}
		}
	}
	return nil, ErrNoMetricsFound
}

// CommandStats aggregates sessions of one command.
type CommandStats struct {
	Command       string  `json:"command" yaml:"command"`
	Sessions      int64   `json:"sessions" yaml:"sessions"`
	Failures      int64   `json:"failures" yaml:"failures"`
	Bytes         int64   `json:"bytes" yaml:"bytes"`
	Matches       int64   `json:"matches" yaml:"matches"`
	AvgDurationMs float64 `json:"avg_duration_ms" yaml:"avg_duration_ms"`
}

// Aggregate groups session records by command, sorted by command name.
func Aggregate(records []types.SessionRecord) []CommandStats {
	byCommand := make(map[string]*CommandStats)
	totals := make(map[string]int64)
	for _, rec := range records {
		s, ok := byCommand[rec.Command]
		if !ok {
			s = &CommandStats{Command: rec.Command}
			byCommand[rec.Command] = s
		}
		s.Sessions++
		if rec.Outcome.IsFailure() {
			s.Failures++
		}
		s.Bytes += rec.Bytes
		s.Matches += rec.Matches
		totals[rec.Command] += rec.DurationMs
	}

	out := make([]CommandStats, 0, len(byCommand))
	for cmd, s := range byCommand {
		s.AvgDurationMs = float64(totals[cmd]) / float64(s.Sessions)
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b CommandStats) int {
		return strings.Compare(a.Command, b.Command)
	})
	return out
}

// snapshotMatchesFilter checks if a snapshot's file paths contain the
// partition key=value. An empty value matches everything.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, avoiding substring false positives.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	return slices.Contains(strings.Split(path, "/"), segment)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
