// Package search implements the streaming substring search over the archive
// corpus.
//
// Files are scanned sequentially through a bounded Window so memory is
// independent of file size. Matching is ASCII case-insensitive and offsets
// are exact byte offsets into the stored file. Every occurrence is reported
// exactly once, including occurrences that straddle a read boundary.
package search

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/types"
)

// Defaults.
const (
	DefaultWindowFloor      = 512 * 1024
	DefaultContextBytes     = 20
	DefaultProgressInterval = 200 * time.Millisecond
)

// Emitter receives search events in order.
// An error aborts the search and is returned by Engine.Search.
type Emitter interface {
	Emit(ev types.Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev types.Event) error

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev types.Event) error { return f(ev) }

// Config configures an Engine.
type Config struct {
	// WindowFloor is the minimum half-window size. Zero uses DefaultWindowFloor.
	WindowFloor int
	// ContextBytes is the number of bytes after a match included in its snippet.
	// Negative disables context; zero uses DefaultContextBytes.
	ContextBytes int
	// ProgressInterval is the minimum gap between update events.
	// Zero uses DefaultProgressInterval.
	ProgressInterval time.Duration
	// Clock defaults to time.Now.
	Clock Clock
	// Logger defaults to a no-op logger.
	Logger *log.Logger
}

// Summary describes a completed search.
type Summary struct {
	FilesScanned int
	FilesMatched int
	Matches      int64
	BytesScanned int64
	Elapsed      time.Duration
}

// Engine runs searches. It is safe for concurrent use; all per-search state
// lives on the stack of Search.
type Engine struct {
	windowFloor  int
	contextBytes int
	interval     time.Duration
	now          Clock
	logger       *log.Logger
}

// NewEngine creates an engine, filling zero config values with defaults.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		windowFloor:  cfg.WindowFloor,
		contextBytes: cfg.ContextBytes,
		interval:     cfg.ProgressInterval,
		now:          cfg.Clock,
		logger:       cfg.Logger,
	}
	if e.windowFloor <= 0 {
		e.windowFloor = DefaultWindowFloor
	}
	switch {
	case e.contextBytes == 0:
		e.contextBytes = DefaultContextBytes
	case e.contextBytes < 0:
		e.contextBytes = 0
	}
	if e.interval <= 0 {
		e.interval = DefaultProgressInterval
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = log.NewNop()
	}
	return e
}

// WindowSize returns W for a term: max(WindowFloor, len(term)).
func (e *Engine) WindowSize(term string) int {
	return max(e.windowFloor, len(term))
}

// Search scans corpus in order for term and streams events to em, ending with
// a done event. An empty term matches nothing and completes immediately.
func (e *Engine) Search(ctx context.Context, em Emitter, term string, corpus []types.CorpusEntry) (Summary, error) {
	start := e.now()
	var sum Summary

	if term != "" {
		s := &scan{
			engine:   e,
			em:       em,
			term:     LowerTerm(term),
			window:   e.WindowSize(term),
			throttle: NewThrottle(e.interval, e.now),
			sum:      &sum,
		}
		for _, entry := range corpus {
			s.total += entry.Size
		}
		for _, entry := range corpus {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if err := s.file(ctx, entry); err != nil {
				return sum, err
			}
			s.prior += entry.Size
		}
	}

	sum.Elapsed = e.now().Sub(start)
	if sum.Elapsed <= 0 {
		// A zero elapsed encodes as the list terminator.
		sum.Elapsed = time.Nanosecond
	}
	return sum, em.Emit(types.Done(sum.Elapsed))
}

// scan holds the state of one Search call.
type scan struct {
	engine   *Engine
	em       Emitter
	term     []byte
	window   int
	throttle *Throttle
	total    int64
	prior    int64
	sum      *Summary
}

func (s *scan) file(ctx context.Context, entry types.CorpusEntry) error {
	f, err := os.Open(entry.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.engine.logger.Warn("file vanished before scan", map[string]any{
				"file": entry.Name,
				"path": entry.Path,
			})
			return nil
		}
		return err
	}
	defer f.Close()

	s.sum.FilesScanned++
	w := NewWindow(io.LimitReader(f, entry.Size), s.window)
	announced := false
	termLen := len(s.term)

	for {
		more, err := w.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}

		lower := w.Lower()
		raw := w.Bytes()
		carry := w.CarryLen()
		for i := 0; i+termLen <= len(lower); {
			j := bytes.Index(lower[i:], s.term)
			if j < 0 {
				break
			}
			idx := i + j
			i = idx + 1

			// Matches ending inside the carry were reported by the previous window.
			if idx+termLen <= carry {
				continue
			}

			if !announced {
				announced = true
				s.sum.FilesMatched++
				if err := s.em.Emit(types.FoundIn(entry.Name)); err != nil {
					return err
				}
			}
			end := min(idx+termLen+s.engine.contextBytes, len(raw))
			s.sum.Matches++
			if err := s.em.Emit(types.Found(types.Match{
				File:    entry.Name,
				Offset:  w.Base() + int64(idx),
				Snippet: Snippet(raw[idx:end]),
			})); err != nil {
				return err
			}
		}

		if pct, ok := s.throttle.Next(s.prior+w.End(), s.total); ok {
			if err := s.em.Emit(types.Update(pct)); err != nil {
				return err
			}
		}

		if err := ctx.Err(); err != nil {
			s.sum.BytesScanned += w.End()
			return err
		}
	}
	s.sum.BytesScanned += w.End()
	return nil
}

// Snippet decodes b as lossy UTF-8 and strips control characters.
func Snippet(b []byte) string {
	s := strings.ToValidUTF8(string(b), "�")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
