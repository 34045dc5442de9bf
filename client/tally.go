package client

import (
	"cmp"
	"slices"
	"time"

	"github.com/pithecene-io/strata/types"
)

// FileHits collects the matches reported for one file.
type FileHits struct {
	Name    string
	Matches []types.Match
}

// Tally folds a search event stream into per-file results.
// It is not safe for concurrent use.
type Tally struct {
	Progress float64
	Elapsed  time.Duration
	Done     bool

	files []*FileHits
	index map[string]*FileHits
	total int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{index: make(map[string]*FileHits)}
}

// Observe applies one event. It always returns nil so it can be used
// directly as an EventHandler.
func (t *Tally) Observe(ev types.Event) error {
	switch ev.Kind {
	case types.EventFoundIn:
		t.file(ev.File)
	case types.EventFound:
		fh := t.file(ev.Match.File)
		fh.Matches = append(fh.Matches, ev.Match)
		t.total++
	case types.EventUpdate:
		t.Progress = ev.Percent
	case types.EventDone:
		t.Done = true
		t.Elapsed = ev.Elapsed
		t.Progress = 100
	}
	return nil
}

func (t *Tally) file(name string) *FileHits {
	if fh, ok := t.index[name]; ok {
		return fh
	}
	fh := &FileHits{Name: name}
	t.index[name] = fh
	t.files = append(t.files, fh)
	return fh
}

// Matches returns the total number of matches seen.
func (t *Tally) Matches() int { return t.total }

// Files returns files in announcement order.
func (t *Tally) Files() []*FileHits { return t.files }

// Ranked returns files ordered by match count, most first. Ties keep
// announcement order.
func (t *Tally) Ranked() []*FileHits {
	ranked := slices.Clone(t.files)
	slices.SortStableFunc(ranked, func(a, b *FileHits) int {
		return cmp.Compare(len(b.Matches), len(a.Matches))
	})
	return ranked
}
