// Package session implements the connection dispatcher for the archive
// server.
//
// Every accepted connection carries exactly one command. The dispatcher reads
// the command byte, runs the matching straight-line exchange, and closes the
// connection. After the close it records one journal entry, updates metrics,
// and, for uploads and deletes, publishes a change notification.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/pithecene-io/strata/adapter"
	"github.com/pithecene-io/strata/journal"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/search"
	"github.com/pithecene-io/strata/store"
)

// ErrServerClosed is returned by Serve after Shutdown or context cancellation.
var ErrServerClosed = errors.New("session: server closed")

// Accept backoff bounds for transient accept errors.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// DefaultSideChannelTimeout bounds the journal write and notification after a
// session. It covers adapter retries.
const DefaultSideChannelTimeout = 30 * time.Second

// Config wires a Server. Store and StorageDir are required; everything else
// has a default.
type Config struct {
	Store      store.Store
	StorageDir string

	// Engine defaults to search.NewEngine with default settings.
	Engine *search.Engine
	// Scheduler defaults to a PoolScheduler of DefaultWorkers.
	Scheduler Scheduler
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics may be nil; the collector is nil-receiver safe.
	Metrics *metrics.Collector
	// Journal defaults to journal.Nop.
	Journal journal.Journal
	// Notifier defaults to adapter.Nop.
	Notifier adapter.Adapter

	// MaxFileSize rejects larger uploads. Zero means unlimited.
	MaxFileSize int64
	// SideChannelTimeout bounds journal and notification work per session.
	SideChannelTimeout time.Duration
}

// Server accepts connections and dispatches sessions.
type Server struct {
	store      store.Store
	storageDir string
	engine     *search.Engine
	sched      Scheduler
	logger     *log.Logger
	metrics    *metrics.Collector
	journal    journal.Journal
	notifier   adapter.Adapter

	maxFileSize int64
	sideTimeout time.Duration

	mu        sync.Mutex
	closing   bool
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	active    sync.WaitGroup
	stop      chan struct{} // closed when Shutdown begins
	kill      chan struct{} // closed when in-flight sessions must abort
	stopOnce  sync.Once
	killOnce  sync.Once
}

// NewServer validates cfg and fills defaults.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.StorageDir == "" {
		return nil, errors.New("session: storage dir is required")
	}
	dir, err := filepath.Abs(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("session: storage dir: %w", err)
	}

	s := &Server{
		store:       cfg.Store,
		storageDir:  dir,
		engine:      cfg.Engine,
		sched:       cfg.Scheduler,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		journal:     cfg.Journal,
		notifier:    cfg.Notifier,
		maxFileSize: cfg.MaxFileSize,
		sideTimeout: cfg.SideChannelTimeout,
		listeners:   make(map[net.Listener]struct{}),
		conns:       make(map[net.Conn]struct{}),
		stop:        make(chan struct{}),
		kill:        make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = log.NewNop()
	}
	if s.engine == nil {
		s.engine = search.NewEngine(search.Config{Logger: s.logger})
	}
	if s.sched == nil {
		s.sched = NewPoolScheduler(DefaultWorkers)
	}
	if s.journal == nil {
		s.journal = journal.Nop{}
	}
	if s.notifier == nil {
		s.notifier = adapter.Nop{}
	}
	if s.sideTimeout <= 0 {
		s.sideTimeout = DefaultSideChannelTimeout
	}
	return s, nil
}

// StorageDir returns the absolute storage directory.
func (s *Server) StorageDir() string { return s.storageDir }

// Metrics returns a snapshot of the server counters.
func (s *Server) Metrics() metrics.Snapshot { return s.metrics.Snapshot() }

// Serve accepts connections on ln until ctx is cancelled, Shutdown is called,
// or the listener fails permanently. It always returns a non-nil error;
// ErrServerClosed means a clean stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln, true) {
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	// Sessions abort when ctx ends or Shutdown gives up waiting.
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.kill:
			cancel()
		case <-sessCtx.Done():
		}
	}()

	// Submission stops as soon as Shutdown starts or ctx ends.
	submitCtx, cancelSubmit := context.WithCancel(ctx)
	defer cancelSubmit()
	go func() {
		select {
		case <-s.stop:
			cancelSubmit()
		case <-submitCtx.Done():
		}
		_ = ln.Close()
	}()

	s.logger.Info("listening", map[string]any{"addr": ln.Addr().String()})

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if submitCtx.Err() != nil || s.isClosing() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			backoff = nextBackoff(backoff)
			s.logger.Warn("accept failed", map[string]any{
				"error":   err.Error(),
				"backoff": backoff.String(),
			})
			select {
			case <-time.After(backoff):
			case <-submitCtx.Done():
				return ErrServerClosed
			}
			continue
		}
		backoff = 0

		if !s.trackConn(conn, true) {
			_ = conn.Close()
			return ErrServerClosed
		}
		err = s.sched.Submit(submitCtx, func() {
			defer s.trackConn(conn, false)
			s.Handle(sessCtx, conn)
		})
		if err != nil {
			_ = conn.Close()
			s.trackConn(conn, false)
			return ErrServerClosed
		}
	}
}

// nextBackoff doubles the accept backoff within its bounds.
func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(2*d, maxAcceptBackoff)
}

// Shutdown stops accepting, waits for in-flight sessions until ctx ends, then
// closes their connections and waits for them to unwind. The final metrics
// snapshot is logged and journaled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for ln := range s.listeners {
		_ = ln.Close()
	}
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.killOnce.Do(func() { close(s.kill) })
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		<-done
	}
	s.sched.Wait()

	snap := s.metrics.Snapshot()
	s.logger.Info("server stopped", snap.Fields())
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideTimeout)
	defer cancel()
	if jerr := s.journal.WriteMetrics(jctx, snap, time.Now()); jerr != nil {
		s.logger.Warn("journal metrics write failed", map[string]any{"error": jerr.Error()})
	}
	return err
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closing {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

// trackConn registers a connection as in flight. The active count is only
// raised while not closing, so Shutdown's wait never races an Add.
func (s *Server) trackConn(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closing {
			return false
		}
		s.conns[conn] = struct{}{}
		s.active.Add(1)
		return true
	}
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		s.active.Done()
	}
	return true
}
