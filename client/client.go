// Package client speaks the archive protocol from the caller's side.
//
// Each method opens one connection, runs one command, and closes it, which
// mirrors the server's one-command-per-connection model.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/transfer"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/wire"
)

// DefaultDialTimeout bounds connection setup when none is configured.
const DefaultDialTimeout = 5 * time.Second

// readBufferSize sizes the buffered reader over each connection.
const readBufferSize = 16 * 1024

// ErrUnexpectedEvent is returned when the server sends an event that does
// not belong to the running command.
var ErrUnexpectedEvent = errors.New("unexpected event")

// ServerError carries the text of an error event sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server: " + e.Message
}

// IsServerError reports whether err is a server-reported error.
func IsServerError(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}

// Config configures a Client.
type Config struct {
	// Addr is the server host:port.
	Addr string
	// DialTimeout bounds connection setup. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration
}

// Client issues commands against one server.
// A Client holds no connection state and is safe for concurrent use.
type Client struct {
	addr   string
	dialer net.Dialer
}

// New creates a client for cfg.Addr.
func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("client: server address is required")
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Client{addr: cfg.Addr, dialer: net.Dialer{Timeout: timeout}}, nil
}

// Addr returns the server address.
func (c *Client) Addr() string { return c.addr }

// conn is one command exchange. Reads are buffered so that an ack can be told
// apart from an error frame without consuming it.
type conn struct {
	net.Conn
	r    *bufio.Reader
	stop func() bool
}

func (c *Client) open(ctx context.Context, cmd types.Command) (*conn, error) {
	nc, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.addr, err)
	}
	cn := &conn{
		Conn: nc,
		r:    bufio.NewReaderSize(nc, readBufferSize),
		// Closing the socket unblocks any pending read or write.
		stop: context.AfterFunc(ctx, func() { _ = nc.Close() }),
	}
	if err := wire.WriteCommand(nc, cmd); err != nil {
		cn.close()
		return nil, err
	}
	return cn, nil
}

func (cn *conn) close() {
	cn.stop()
	_ = cn.Conn.Close()
}

// expectAck reads an ack. A frame in its place is decoded, and an error
// event becomes a ServerError. Frame length prefixes always start with zero
// bytes, so they can never be mistaken for the ack token.
func (cn *conn) expectAck() error {
	head, err := cn.r.Peek(len(wire.Ack))
	if err != nil {
		return &wire.FrameError{Kind: wire.FrameErrorPartial, Msg: "failed to read ack", Err: err}
	}
	if [2]byte(head) == wire.Ack {
		_, _ = cn.r.Discard(len(wire.Ack))
		return nil
	}
	ev, err := wire.ReadEvent(cn.r)
	if err != nil {
		return err
	}
	return eventError(ev)
}

// eventError converts an event that should not appear here into an error.
func eventError(ev types.Event) error {
	if ev.Kind == types.EventError {
		return &ServerError{Message: ev.Message}
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedEvent, wire.EncodeEvent(ev))
}

// ctxErr prefers the context error when a cancelled context closed the
// socket underneath a read or write.
func ctxErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Upload sends the local file at path under name. If name is empty the base
// name of path is used. progress may be nil.
func (c *Client) Upload(ctx context.Context, path, name string, progress transfer.ProgressFunc) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return c.UploadReader(ctx, name, f, info.Size(), progress)
}

// UploadReader sends exactly size bytes from r under name.
func (c *Client) UploadReader(ctx context.Context, name string, r io.Reader, size int64, progress transfer.ProgressFunc) (int64, error) {
	if err := types.ValidateName(name); err != nil {
		return 0, err
	}
	cn, err := c.open(ctx, types.CommandUpload)
	if err != nil {
		return 0, err
	}
	defer cn.close()

	if err := wire.WriteMessage(cn, name); err != nil {
		return 0, ctxErr(ctx, err)
	}
	if err := cn.expectAck(); err != nil {
		return 0, ctxErr(ctx, err)
	}
	sent, err := transfer.Send(cn, r, size, progress)
	if err != nil {
		return sent, ctxErr(ctx, err)
	}
	if err := cn.expectAck(); err != nil {
		return sent, ctxErr(ctx, err)
	}
	return sent, nil
}

// EventHandler observes streamed events. Returning an error aborts the
// command and closes the connection.
type EventHandler func(types.Event) error

// Search streams the events of a search for term to fn, which may be nil.
// It returns the server-reported elapsed time from the done event.
func (c *Client) Search(ctx context.Context, term string, fn EventHandler) (time.Duration, error) {
	cn, err := c.open(ctx, types.CommandSearch)
	if err != nil {
		return 0, err
	}
	defer cn.close()

	if err := wire.WriteMessage(cn, term); err != nil {
		return 0, ctxErr(ctx, err)
	}
	if err := cn.expectAck(); err != nil {
		return 0, ctxErr(ctx, err)
	}

	for {
		ev, err := wire.ReadEvent(cn.r)
		if err != nil {
			return 0, ctxErr(ctx, err)
		}
		switch ev.Kind {
		case types.EventFoundIn, types.EventFound, types.EventUpdate:
		case types.EventDone:
			if fn != nil {
				if err := fn(ev); err != nil {
					return ev.Elapsed, err
				}
			}
			return ev.Elapsed, ctxErr(ctx, cn.expectAck())
		default:
			return 0, eventError(ev)
		}
		if fn != nil {
			if err := fn(ev); err != nil {
				return 0, err
			}
		}
	}
}

// Delete removes name from the archive. An unknown name yields a
// ServerError.
func (c *Client) Delete(ctx context.Context, name string) error {
	cn, err := c.open(ctx, types.CommandDelete)
	if err != nil {
		return err
	}
	defer cn.close()

	if err := wire.WriteMessage(cn, name); err != nil {
		return ctxErr(ctx, err)
	}
	if err := cn.expectAck(); err != nil {
		return ctxErr(ctx, err)
	}
	return ctxErr(ctx, cn.expectAck())
}

// List returns the stored names in server order.
func (c *Client) List(ctx context.Context) ([]string, error) {
	cn, err := c.open(ctx, types.CommandList)
	if err != nil {
		return nil, err
	}
	defer cn.close()

	if err := cn.expectAck(); err != nil {
		return nil, ctxErr(ctx, err)
	}
	var names []string
	for {
		ev, err := wire.ReadEvent(cn.r)
		if err != nil {
			return names, ctxErr(ctx, err)
		}
		switch ev.Kind {
		case types.EventFile:
			names = append(names, ev.File)
		case types.EventDone:
			return names, ctxErr(ctx, cn.expectAck())
		default:
			return names, eventError(ev)
		}
	}
}
