// Package journal persists one record per archive session to a Lode dataset.
//
// Records are JSONL in a Hive layout partitioned by day and command, on the
// local filesystem or S3. The journal is an audit side channel: a failed
// write never changes what the peer of a session observed.
package journal

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/types"
)

// DefaultDataset is the Lode dataset ID used when none is configured.
const DefaultDataset = "strata"

// Record kinds stored in the dataset.
const (
	RecordKindSession = "session"
	RecordKindMetrics = "metrics"
)

// metricsCommand is the command partition value for metrics records.
const metricsCommand = "_metrics"

// Backend names accepted by Open.
const (
	BackendNone = "none"
	BackendFS   = "fs"
	BackendS3   = "s3"
)

// Journal records completed sessions and server metrics.
type Journal interface {
	// WriteSession appends one session record.
	WriteSession(ctx context.Context, rec types.SessionRecord) error
	// WriteMetrics appends a metrics snapshot taken at the given time.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error
	// Close releases journal resources.
	Close() error
}

// DeriveDay computes the partition day. Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// newDataset creates the dataset with the layout shared by writers and readers.
func newDataset(name string, factory lode.StoreFactory) (lode.Dataset, error) {
	if name == "" {
		name = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(name),
		factory,
		lode.WithHiveLayout("day", "command"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrapError("init", name, err)
	}
	return ds, nil
}

// Lode is a Lode-backed Journal. Writes are serialized; each write becomes
// one snapshot.
type Lode struct {
	mu      sync.Mutex
	dataset lode.Dataset
}

// New creates a journal over a store factory.
// Use lode.NewMemory() behind a shared factory for testing.
func New(dataset string, factory lode.StoreFactory) (*Lode, error) {
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, err
	}
	return &Lode{dataset: ds}, nil
}

// NewFS creates a journal rooted at a local directory, creating it if needed.
func NewFS(dataset, root string) (*Lode, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrapError("init", root, err)
	}
	return New(dataset, lode.NewFSFactory(root))
}

// NewS3 creates a journal in an S3 bucket.
func NewS3(ctx context.Context, dataset string, s3cfg S3Config) (*Lode, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return New(dataset, factory)
}

// WriteSession appends one session record.
func (j *Lode) WriteSession(ctx context.Context, rec types.SessionRecord) error {
	return j.write(ctx, sessionRecordMap(rec))
}

// WriteMetrics appends a metrics snapshot.
func (j *Lode) WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error {
	return j.write(ctx, metricsRecordMap(snap, at))
}

func (j *Lode) write(ctx context.Context, record map[string]any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return wrapError("write", string(j.dataset.ID()), err)
	}
	return nil
}

// Close releases journal resources.
func (j *Lode) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Nop discards everything. It is the journal for backend "none".
type Nop struct{}

// WriteSession does nothing.
func (Nop) WriteSession(context.Context, types.SessionRecord) error { return nil }

// WriteMetrics does nothing.
func (Nop) WriteMetrics(context.Context, metrics.Snapshot, time.Time) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// Options selects and configures a journal backend.
type Options struct {
	// Backend is none (default), fs, or s3.
	Backend string
	// Path is the root directory for fs, or bucket[/prefix] for s3.
	Path string
	// Dataset is the Lode dataset ID (default strata).
	Dataset string
	// Region, Endpoint and UsePathStyle configure s3.
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3 returns the S3 settings derived from the options.
func (o Options) S3() S3Config {
	bucket, prefix := ParseS3Path(o.Path)
	return S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       o.Region,
		Endpoint:     o.Endpoint,
		UsePathStyle: o.UsePathStyle,
	}
}

// Open creates the configured journal.
func Open(ctx context.Context, opts Options) (Journal, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendNone:
		return Nop{}, nil
	case BackendFS:
		if opts.Path == "" {
			return nil, fmt.Errorf("journal: fs backend requires a path")
		}
		return NewFS(opts.Dataset, opts.Path)
	case BackendS3:
		return NewS3(ctx, opts.Dataset, opts.S3())
	default:
		return nil, fmt.Errorf("journal: unknown backend %q", opts.Backend)
	}
}

var (
	_ Journal = (*Lode)(nil)
	_ Journal = Nop{}
)
