package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/strata/adapter"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/store"
	"github.com/pithecene-io/strata/transfer"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/wire"
)

// result is what a handler reports back for journaling and notification.
type result struct {
	subject      string
	bytes        int64
	matches      int64
	filesScanned int64
	notify       *adapter.ArchiveEvent
}

// session is the per-connection state.
type session struct {
	srv    *Server
	conn   net.Conn
	id     string
	cmd    types.Command
	remote string
	logger *log.Logger
}

// Handle runs one session on conn and closes it. Exposed so that callers with
// their own accept loop (and tests over net.Pipe) can drive sessions.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	started := time.Now()
	remote := remoteAddr(conn)

	cmd, err := wire.ReadCommand(conn)
	if err != nil {
		if !wire.IsKind(err, wire.FrameErrorUnknownCommand) {
			// Peer went away before choosing a command.
			_ = conn.Close()
			s.logger.Debug("connection closed before command", map[string]any{
				"remote": remote,
				"error":  err.Error(),
			})
			return
		}
	}

	sess := &session{
		srv:    s,
		conn:   conn,
		id:     uuid.NewString(),
		cmd:    cmd,
		remote: remote,
	}
	sess.logger = s.logger.WithSession(sess.id, cmd, remote)
	s.metrics.IncSessionStarted(cmd.String())

	var res result
	if err == nil {
		res, err = sess.dispatch(ctx)
	} else {
		sess.sendError(err.Error())
	}
	_ = conn.Close()

	s.finish(ctx, sess, res, err, started)
}

func (sess *session) dispatch(ctx context.Context) (result, error) {
	switch sess.cmd {
	case types.CommandUpload:
		return sess.upload(ctx)
	case types.CommandSearch:
		return sess.search(ctx)
	case types.CommandDelete:
		return sess.delete(ctx)
	case types.CommandList:
		return sess.list(ctx)
	default:
		// ReadCommand already rejected anything else.
		return result{}, &wire.FrameError{Kind: wire.FrameErrorUnknownCommand, Msg: fmt.Sprintf("invalid command: %d", byte(sess.cmd))}
	}
}

// upload: name, ack, body, ack. The record is inserted after the second ack,
// so a store failure at that point is logged but already acknowledged.
func (sess *session) upload(ctx context.Context) (result, error) {
	var res result
	name, err := wire.ReadMessage(sess.conn)
	if err != nil {
		return res, err
	}
	res.subject = name
	if err := types.ValidateName(name); err != nil {
		sess.sendError(err.Error())
		return res, &wire.FrameError{Kind: wire.FrameErrorInvalidName, Msg: "name rejected", Err: err}
	}
	if err := wire.WriteAck(sess.conn); err != nil {
		return res, err
	}

	n, err := transfer.Receive(sess.conn, sess.srv.storageDir, name, transfer.ReceiveOptions{
		MaxFileSize: sess.srv.maxFileSize,
	})
	res.bytes = n
	if err != nil {
		return res, err
	}
	if err := wire.WriteAck(sess.conn); err != nil {
		return res, err
	}

	path := filepath.Join(sess.srv.storageDir, name)
	if err := sess.srv.store.Put(ctx, name, path); err != nil {
		sess.logger.Error("metadata insert failed after acknowledged upload", map[string]any{
			"file":  name,
			"path":  path,
			"error": err.Error(),
		})
		return res, err
	}
	sess.srv.metrics.AddBytesUploaded(n)
	res.notify = sess.event(adapter.EventFileUploaded, name, n)
	return res, nil
}

// search: term, ack, events ending in done, ack.
func (sess *session) search(ctx context.Context) (result, error) {
	var res result
	term, err := wire.ReadMessage(sess.conn)
	if err != nil {
		return res, err
	}
	res.subject = term
	if err := wire.WriteAck(sess.conn); err != nil {
		return res, err
	}

	corpus, err := sess.srv.corpus(ctx, sess.logger)
	if err != nil {
		sess.sendError(err.Error())
		return res, err
	}

	em := &trackingEmitter{w: wire.NewEventWriter(sess.conn)}
	sum, err := sess.srv.engine.Search(ctx, em, term, corpus)
	res.matches = sum.Matches
	res.filesScanned = int64(sum.FilesScanned)
	res.bytes = sum.BytesScanned
	sess.srv.metrics.RecordSearch(sum.Matches, sum.BytesScanned)
	if err != nil {
		if !em.failed {
			sess.sendError(err.Error())
		}
		return res, err
	}
	if err := wire.WriteAck(sess.conn); err != nil {
		return res, err
	}

	sess.logger.Debug("search complete", map[string]any{
		"files_scanned": sum.FilesScanned,
		"files_matched": sum.FilesMatched,
		"matches":       sum.Matches,
		"bytes_scanned": sum.BytesScanned,
		"elapsed_ms":    sum.Elapsed.Milliseconds(),
	})
	return res, nil
}

// delete: name, ack, then ack or error. Deleting an unknown name is an error.
func (sess *session) delete(ctx context.Context) (result, error) {
	var res result
	name, err := wire.ReadMessage(sess.conn)
	if err != nil {
		return res, err
	}
	res.subject = name
	if err := wire.WriteAck(sess.conn); err != nil {
		return res, err
	}
	if err := types.ValidateName(name); err != nil {
		sess.sendError(err.Error())
		return res, &wire.FrameError{Kind: wire.FrameErrorInvalidName, Msg: "name rejected", Err: err}
	}

	rec, err := sess.srv.store.Get(ctx, name)
	if err != nil {
		if store.IsNotFound(err) {
			sess.sendError("not found: " + name)
		} else {
			sess.sendError(err.Error())
		}
		return res, err
	}
	if info, err := os.Stat(rec.Path); err == nil {
		res.bytes = info.Size()
	}

	if err := sess.srv.store.Delete(ctx, name); err != nil {
		sess.sendError(err.Error())
		return res, err
	}
	if err := os.Remove(rec.Path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			sess.sendError(err.Error())
			return res, err
		}
		sess.logger.Warn("stored file already missing", map[string]any{
			"file": name,
			"path": rec.Path,
		})
	}
	if err := wire.WriteAck(sess.conn); err != nil {
		return res, err
	}

	sess.srv.metrics.IncFilesDeleted()
	res.notify = sess.event(adapter.EventFileDeleted, name, res.bytes)
	return res, nil
}

// list: ack, one file event per record, done, ack.
func (sess *session) list(ctx context.Context) (result, error) {
	var res result
	if err := wire.WriteAck(sess.conn); err != nil {
		return res, err
	}

	records, err := sess.srv.store.List(ctx)
	if err != nil {
		sess.sendError(err.Error())
		return res, err
	}
	ew := wire.NewEventWriter(sess.conn)
	for _, rec := range records {
		if err := ew.Emit(types.File(rec.Name)); err != nil {
			return res, err
		}
	}
	res.matches = int64(len(records))
	if err := ew.Emit(types.Done(0)); err != nil {
		return res, err
	}
	return res, wire.WriteAck(sess.conn)
}

// corpus enumerates stored files in name order, stat'ing each so the search
// denominator is fixed before scanning. Files that vanished are skipped.
func (s *Server) corpus(ctx context.Context, logger *log.Logger) ([]types.CorpusEntry, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	corpus := make([]types.CorpusEntry, 0, len(records))
	for _, rec := range records {
		info, err := os.Stat(rec.Path)
		if err != nil {
			logger.Warn("skipping unreadable file", map[string]any{
				"file":  rec.Name,
				"path":  rec.Path,
				"error": err.Error(),
			})
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		corpus = append(corpus, types.CorpusEntry{Name: rec.Name, Path: rec.Path, Size: info.Size()})
	}
	return corpus, nil
}

// sendError writes a best-effort error event. Failures are ignored; the
// connection is about to close anyway.
func (sess *session) sendError(msg string) {
	_ = wire.WriteMessage(sess.conn, wire.EncodeEvent(types.Error(msg)))
}

func (sess *session) event(eventType, name string, size int64) *adapter.ArchiveEvent {
	return &adapter.ArchiveEvent{
		ProtocolVersion: types.ProtocolVersion,
		EventType:       eventType,
		Name:            name,
		SizeBytes:       size,
		SessionID:       sess.id,
		Remote:          sess.remote,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
}

// trackingEmitter remembers whether a write to the peer failed, so that the
// handler does not try to report an error on a dead connection.
type trackingEmitter struct {
	w      *wire.EventWriter
	failed bool
}

func (t *trackingEmitter) Emit(ev types.Event) error {
	if err := t.w.Emit(ev); err != nil {
		t.failed = true
		return err
	}
	return nil
}

// finish records the session outcome after the connection is closed.
func (s *Server) finish(ctx context.Context, sess *session, res result, err error, started time.Time) {
	status := Classify(err)
	elapsed := time.Since(started)

	fields := map[string]any{
		"outcome":     string(status),
		"duration_ms": elapsed.Milliseconds(),
		"bytes":       res.bytes,
	}
	if res.subject != "" {
		fields["subject"] = res.subject
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	switch {
	case status == types.OutcomeSuccess:
		s.metrics.IncSessionCompleted()
		sess.logger.Info("session complete", fields)
	case status == types.OutcomeProtocolError:
		s.metrics.IncSessionFailed()
		s.metrics.IncProtocolError()
		sess.logger.Warn("protocol error", fields)
	case status == types.OutcomeNotFound:
		s.metrics.IncSessionFailed()
		sess.logger.Info("session rejected", fields)
	default:
		s.metrics.IncSessionFailed()
		sess.logger.Error("session failed", fields)
	}

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideTimeout)
	defer cancel()

	rec := types.SessionRecord{
		SessionID:    sess.id,
		Command:      sess.cmd.String(),
		Remote:       sess.remote,
		Outcome:      status,
		Subject:      res.subject,
		Bytes:        res.bytes,
		Matches:      res.matches,
		FilesScanned: res.filesScanned,
		StartedAt:    started.UTC().Format(time.RFC3339Nano),
		DurationMs:   elapsed.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jerr := s.journal.WriteSession(sideCtx, rec); jerr != nil {
		s.metrics.IncJournalWriteFailure()
		sess.logger.Warn("journal write failed", map[string]any{"error": jerr.Error()})
	} else {
		s.metrics.IncJournalWriteSuccess()
	}

	if res.notify != nil && err == nil {
		if nerr := s.notifier.Publish(sideCtx, res.notify); nerr != nil {
			s.metrics.IncNotifyFailure()
			sess.logger.Warn("notification failed", map[string]any{
				"event_type": res.notify.EventType,
				"error":      nerr.Error(),
			})
		} else {
			s.metrics.IncNotifySuccess()
		}
	}
}

// Classify maps a session error onto an outcome status.
func Classify(err error) types.OutcomeStatus {
	var storeErr *store.StoreError
	switch {
	case err == nil:
		return types.OutcomeSuccess
	case store.IsNotFound(err):
		return types.OutcomeNotFound
	case wire.IsProtocolError(err):
		return types.OutcomeProtocolError
	case errors.As(err, &storeErr):
		return types.OutcomeStoreError
	case errors.Is(err, transfer.ErrTooLarge):
		return types.OutcomeProtocolError
	default:
		return types.OutcomeIOError
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
