package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/strata/adapter"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/store"
	"github.com/pithecene-io/strata/transfer"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/wire"
)

// memJournal records journal writes in memory.
type memJournal struct {
	mu       sync.Mutex
	sessions []types.SessionRecord
	metrics  []metrics.Snapshot
}

func (j *memJournal) WriteSession(_ context.Context, rec types.SessionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sessions = append(j.sessions, rec)
	return nil
}

func (j *memJournal) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.metrics = append(j.metrics, snap)
	return nil
}

func (j *memJournal) Close() error { return nil }

func (j *memJournal) outcomes() map[string][]types.OutcomeStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string][]types.OutcomeStatus)
	for _, rec := range j.sessions {
		out[rec.Command] = append(out[rec.Command], rec.Outcome)
	}
	return out
}

// memNotifier records published events.
type memNotifier struct {
	mu     sync.Mutex
	events []adapter.ArchiveEvent
}

func (n *memNotifier) Publish(_ context.Context, ev *adapter.ArchiveEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *ev)
	return nil
}

func (n *memNotifier) Close() error { return nil }

type testEnv struct {
	srv      *Server
	addr     string
	store    *store.Memory
	journal  *memJournal
	notifier *memNotifier
	served   chan error
	stopOnce sync.Once
}

func startServer(t *testing.T) *testEnv {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	env := &testEnv{
		addr:     ln.Addr().String(),
		store:    store.NewMemory(),
		journal:  &memJournal{},
		notifier: &memNotifier{},
		served:   make(chan error, 1),
	}
	env.srv, err = NewServer(Config{
		Store:      env.store,
		StorageDir: t.TempDir(),
		Metrics:    metrics.NewCollector("memory", "test"),
		Journal:    env.journal,
		Notifier:   env.notifier,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	go func() { env.served <- env.srv.Serve(context.Background(), ln) }()
	t.Cleanup(func() { env.stop(t) })
	return env
}

// stop shuts the server down and waits for Serve to return.
func (e *testEnv) stop(t *testing.T) {
	t.Helper()
	e.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
		select {
		case err := <-e.served:
			if !errors.Is(err, ErrServerClosed) {
				t.Errorf("Serve returned %v, want ErrServerClosed", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})
}

func (e *testEnv) dial(t *testing.T, cmd types.Command) net.Conn {
	t.Helper()
	conn, err := e.open(cmd)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (e *testEnv) open(cmd types.Command) (net.Conn, error) {
	conn, err := net.Dial("tcp", e.addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	if err := wire.WriteCommand(conn, cmd); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (e *testEnv) upload(t *testing.T, name string, data []byte) {
	t.Helper()
	if err := e.tryUpload(name, data); err != nil {
		t.Fatalf("upload %s failed: %v", name, err)
	}
}

// tryUpload runs a full upload exchange. Safe to call from any goroutine.
func (e *testEnv) tryUpload(name string, data []byte) error {
	conn, err := e.open(types.CommandUpload)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := wire.WriteMessage(conn, name); err != nil {
		return err
	}
	if err := wire.WaitForAck(conn); err != nil {
		return fmt.Errorf("name ack: %w", err)
	}
	if _, err := transfer.Send(conn, bytes.NewReader(data), int64(len(data)), nil); err != nil {
		return err
	}
	if err := wire.WaitForAck(conn); err != nil {
		return fmt.Errorf("body ack: %w", err)
	}
	var buf [1]byte
	if _, err := conn.Read(buf[:]); err != io.EOF {
		return fmt.Errorf("expected EOF after upload, got %v", err)
	}
	return nil
}

// readUntilDone reads events through the terminating done, then the ack.
func readUntilDone(t *testing.T, conn net.Conn) []types.Event {
	t.Helper()
	var events []types.Event
	for {
		ev, err := wire.ReadEvent(conn)
		if err != nil {
			t.Fatalf("ReadEvent failed after %v: %v", events, err)
		}
		events = append(events, ev)
		if ev.Kind == types.EventError {
			t.Fatalf("unexpected error event: %s", ev.Message)
		}
		if ev.Kind == types.EventDone {
			break
		}
	}
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("final ack failed: %v", err)
	}
	return events
}

func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	var buf [1]byte
	if n, err := conn.Read(buf[:]); err != io.EOF {
		t.Errorf("expected EOF after session, got n=%d err=%v", n, err)
	}
}

func (e *testEnv) list(t *testing.T) []string {
	t.Helper()
	conn := e.dial(t, types.CommandList)
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("list ack failed: %v", err)
	}
	events := readUntilDone(t, conn)
	var names []string
	for _, ev := range events[:len(events)-1] {
		if ev.Kind != types.EventFile {
			t.Fatalf("unexpected event in list: %+v", ev)
		}
		names = append(names, ev.File)
	}
	if last := events[len(events)-1]; last.Elapsed != 0 {
		t.Errorf("list terminator = %+v, want bare done", last)
	}
	return names
}

func TestServer_UploadStoresFile(t *testing.T) {
	env := startServer(t)
	data := []byte("the quick brown fox")

	env.upload(t, "a.txt", data)

	got, err := os.ReadFile(filepath.Join(env.srv.StorageDir(), "a.txt"))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("stored content = %q, want %q", got, data)
	}
	rec, err := env.store.Get(context.Background(), "a.txt")
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.Path != filepath.Join(env.srv.StorageDir(), "a.txt") {
		t.Errorf("record path = %q", rec.Path)
	}
}

func TestServer_UploadEmptyFile(t *testing.T) {
	env := startServer(t)

	env.upload(t, "empty.bin", nil)

	info, err := os.Stat(filepath.Join(env.srv.StorageDir(), "empty.bin"))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestServer_UploadReplaces(t *testing.T) {
	env := startServer(t)

	env.upload(t, "a.txt", []byte("first version"))
	env.upload(t, "a.txt", []byte("second"))

	got, _ := os.ReadFile(filepath.Join(env.srv.StorageDir(), "a.txt"))
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}
	if names := env.list(t); !slices.Equal(names, []string{"a.txt"}) {
		t.Errorf("list = %v", names)
	}
}

func TestServer_UploadInvalidName(t *testing.T) {
	env := startServer(t)
	conn := env.dial(t, types.CommandUpload)
	if err := wire.WriteMessage(conn, "../escape"); err != nil {
		t.Fatalf("write name failed: %v", err)
	}

	ev, err := wire.ReadEvent(conn)
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if ev.Kind != types.EventError {
		t.Errorf("event = %+v, want error", ev)
	}
	expectClosed(t, conn)
}

func TestServer_UploadTruncatedLeavesNothing(t *testing.T) {
	env := startServer(t)
	conn := env.dial(t, types.CommandUpload)
	if err := wire.WriteMessage(conn, "big.bin"); err != nil {
		t.Fatalf("write name failed: %v", err)
	}
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("name ack failed: %v", err)
	}
	if err := wire.WriteLength(conn, 100); err != nil {
		t.Fatalf("WriteLength failed: %v", err)
	}
	if _, err := conn.Write(make([]byte, 10)); err != nil {
		t.Fatalf("write body failed: %v", err)
	}
	_ = conn.Close()

	env.stop(t)

	entries, err := os.ReadDir(env.srv.StorageDir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("storage dir not empty: %v", entries)
	}
	if recs, _ := env.store.List(context.Background()); len(recs) != 0 {
		t.Errorf("records = %v, want none", recs)
	}
	if got := env.journal.outcomes()["upload"]; !slices.Equal(got, []types.OutcomeStatus{types.OutcomeIOError}) {
		t.Errorf("upload outcomes = %v, want [io_error]", got)
	}
}

func TestServer_SearchQuick(t *testing.T) {
	env := startServer(t)
	env.upload(t, "a.txt", []byte("the quick brown fox"))
	env.upload(t, "b.txt", []byte("a QUICK fox jumps"))

	conn := env.dial(t, types.CommandSearch)
	if err := wire.WriteMessage(conn, "quick"); err != nil {
		t.Fatalf("write term failed: %v", err)
	}
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("term ack failed: %v", err)
	}
	events := readUntilDone(t, conn)

	var results []types.Event
	for _, ev := range events {
		if ev.Kind != types.EventUpdate && ev.Kind != types.EventDone {
			results = append(results, ev)
		}
	}
	want := []types.Event{
		types.FoundIn("a.txt"),
		types.Found(types.Match{File: "a.txt", Offset: 4, Snippet: "quick brown fox"}),
		types.FoundIn("b.txt"),
		types.Found(types.Match{File: "b.txt", Offset: 2, Snippet: "QUICK fox jumps"}),
	}
	if !slices.Equal(results, want) {
		t.Errorf("results = %+v\nwant %+v", results, want)
	}
	if last := events[len(events)-1]; last.Elapsed <= 0 {
		t.Errorf("search done = %+v, want positive elapsed", last)
	}
	expectClosed(t, conn)
}

func TestServer_SearchEmptyCorpus(t *testing.T) {
	env := startServer(t)

	conn := env.dial(t, types.CommandSearch)
	if err := wire.WriteMessage(conn, "anything"); err != nil {
		t.Fatalf("write term failed: %v", err)
	}
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("term ack failed: %v", err)
	}
	events := readUntilDone(t, conn)
	if len(events) != 1 || events[0].Kind != types.EventDone {
		t.Errorf("events = %+v, want only done", events)
	}
}

func TestServer_SearchSkipsVanishedFile(t *testing.T) {
	env := startServer(t)
	env.upload(t, "a.txt", []byte("needle"))
	env.upload(t, "b.txt", []byte("needle"))
	if err := os.Remove(filepath.Join(env.srv.StorageDir(), "a.txt")); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	conn := env.dial(t, types.CommandSearch)
	_ = wire.WriteMessage(conn, "needle")
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("term ack failed: %v", err)
	}
	var files []string
	for _, ev := range readUntilDone(t, conn) {
		if ev.Kind == types.EventFoundIn {
			files = append(files, ev.File)
		}
	}
	if !slices.Equal(files, []string{"b.txt"}) {
		t.Errorf("found_in = %v, want [b.txt]", files)
	}
}

func TestServer_DeleteExisting(t *testing.T) {
	env := startServer(t)
	env.upload(t, "a.txt", []byte("hello"))
	env.upload(t, "b.txt", []byte("world"))

	conn := env.dial(t, types.CommandDelete)
	_ = wire.WriteMessage(conn, "a.txt")
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("name ack failed: %v", err)
	}
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("delete ack failed: %v", err)
	}
	expectClosed(t, conn)

	if _, err := os.Stat(filepath.Join(env.srv.StorageDir(), "a.txt")); !os.IsNotExist(err) {
		t.Errorf("file should be removed, stat err = %v", err)
	}
	if names := env.list(t); !slices.Equal(names, []string{"b.txt"}) {
		t.Errorf("list = %v, want [b.txt]", names)
	}
}

func TestServer_DeleteUnknown(t *testing.T) {
	env := startServer(t)

	conn := env.dial(t, types.CommandDelete)
	_ = wire.WriteMessage(conn, "ghost.txt")
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("name ack failed: %v", err)
	}
	ev, err := wire.ReadEvent(conn)
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if ev != types.Error("not found: ghost.txt") {
		t.Errorf("event = %+v, want not found error", ev)
	}
	expectClosed(t, conn)

	env.stop(t)
	if got := env.journal.outcomes()["delete"]; !slices.Equal(got, []types.OutcomeStatus{types.OutcomeNotFound}) {
		t.Errorf("delete outcomes = %v, want [not_found]", got)
	}
}

func TestServer_ListSorted(t *testing.T) {
	env := startServer(t)
	if names := env.list(t); len(names) != 0 {
		t.Errorf("empty archive list = %v", names)
	}
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		env.upload(t, name, []byte(name))
	}
	if names := env.list(t); !slices.Equal(names, []string{"a.txt", "b.txt", "c.txt"}) {
		t.Errorf("list = %v", names)
	}
}

func TestServer_InvalidCommand(t *testing.T) {
	env := startServer(t)

	conn := env.dial(t, types.Command(9))
	ev, err := wire.ReadEvent(conn)
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if ev != types.Error("invalid command: 9") {
		t.Errorf("event = %+v", ev)
	}
	expectClosed(t, conn)

	env.stop(t)
	if env.srv.Metrics().ProtocolErrors != 1 {
		t.Errorf("ProtocolErrors = %d, want 1", env.srv.Metrics().ProtocolErrors)
	}
}

func TestServer_SideChannels(t *testing.T) {
	env := startServer(t)
	env.upload(t, "a.txt", []byte("hello"))

	conn := env.dial(t, types.CommandDelete)
	_ = wire.WriteMessage(conn, "a.txt")
	_ = wire.WaitForAck(conn)
	if err := wire.WaitForAck(conn); err != nil {
		t.Fatalf("delete ack failed: %v", err)
	}
	expectClosed(t, conn)

	env.stop(t)

	env.notifier.mu.Lock()
	events := slices.Clone(env.notifier.events)
	env.notifier.mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("got %d notifications, want 2", len(events))
	}
	if events[0].EventType != adapter.EventFileUploaded || events[0].SizeBytes != 5 {
		t.Errorf("first notification = %+v", events[0])
	}
	if events[1].EventType != adapter.EventFileDeleted || events[1].Name != "a.txt" {
		t.Errorf("second notification = %+v", events[1])
	}
	if events[0].SessionID == events[1].SessionID || events[0].SessionID == "" {
		t.Error("each session should carry its own id")
	}

	outcomes := env.journal.outcomes()
	if !slices.Equal(outcomes["upload"], []types.OutcomeStatus{types.OutcomeSuccess}) ||
		!slices.Equal(outcomes["delete"], []types.OutcomeStatus{types.OutcomeSuccess}) {
		t.Errorf("journal outcomes = %v", outcomes)
	}
	if len(env.journal.metrics) != 1 {
		t.Errorf("metrics snapshots journaled = %d, want 1", len(env.journal.metrics))
	}

	snap := env.srv.Metrics()
	if snap.SessionsCompleted != 2 || snap.BytesUploaded != 5 || snap.FilesDeleted != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.NotifySuccess != 2 || snap.JournalWriteSuccess != 2 {
		t.Errorf("side channel counters = %+v", snap)
	}
}

func TestServer_ConcurrentSessions(t *testing.T) {
	env := startServer(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Go(func() {
			errs <- env.tryUpload(fmt.Sprintf("f%d.txt", i), []byte("payload"))
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent upload failed: %v", err)
		}
	}

	if names := env.list(t); len(names) != 8 {
		t.Errorf("list has %d names, want 8", len(names))
	}
}

func TestServer_ShutdownForcesIdleSessions(t *testing.T) {
	env := startServer(t)

	// Connect without sending a command so the session blocks on read.
	conn, err := net.Dial("tcp", env.addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	env.stopOnce.Do(func() {
		if err := env.srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Shutdown error = %v, want DeadlineExceeded", err)
		}
		if err := <-env.served; !errors.Is(err, ErrServerClosed) {
			t.Errorf("Serve returned %v", err)
		}
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var buf [1]byte
	if _, err := conn.Read(buf[:]); err == nil {
		t.Error("connection should be closed by forced shutdown")
	}
}

func TestServer_ServeAfterShutdown(t *testing.T) {
	srv, err := NewServer(Config{Store: store.NewMemory(), StorageDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	if err := srv.Serve(context.Background(), ln); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Serve error = %v, want ErrServerClosed", err)
	}
}

func TestNewServer_Validation(t *testing.T) {
	if _, err := NewServer(Config{StorageDir: t.TempDir()}); err == nil {
		t.Error("missing store should fail")
	}
	if _, err := NewServer(Config{Store: store.NewMemory()}); err == nil {
		t.Error("missing storage dir should fail")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.OutcomeStatus
	}{
		{"nil", nil, types.OutcomeSuccess},
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), types.OutcomeNotFound},
		{"unknown command", &wire.FrameError{Kind: wire.FrameErrorUnknownCommand, Msg: "invalid command: 9"}, types.OutcomeProtocolError},
		{"partial", &wire.FrameError{Kind: wire.FrameErrorPartial, Msg: "short", Err: io.ErrUnexpectedEOF}, types.OutcomeIOError},
		{"too large", fmt.Errorf("%w: 10 bytes", transfer.ErrTooLarge), types.OutcomeProtocolError},
		{"store", &store.StoreError{Op: "put", Name: "a", Err: errors.New("boom")}, types.OutcomeStoreError},
		{"other", errors.New("connection reset"), types.OutcomeIOError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
