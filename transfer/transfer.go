// Package transfer moves raw file bodies across a connection.
//
// A body is an 8-byte big-endian length followed by exactly that many bytes.
// Bodies are not frames and are not bound by the frame payload limit.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/wire"
)

// ErrTooLarge is returned when a declared body length exceeds the limit.
var ErrTooLarge = errors.New("file exceeds maximum size")

// copyBufferSize is the chunk size for body copies.
const copyBufferSize = 64 * 1024

// ReceiveOptions configures Receive.
type ReceiveOptions struct {
	// MaxFileSize rejects declared lengths above it. Zero means unlimited.
	MaxFileSize int64
}

// Receive reads a body from r into dir/name and returns the byte count.
//
// The body is written to a temp file in dir and renamed into place only once
// every declared byte has arrived; on any error nothing is left behind. A
// successful return always has received == declared length.
func Receive(r io.Reader, dir, name string, opts ReceiveOptions) (int64, error) {
	if err := types.ValidateName(name); err != nil {
		return 0, &wire.FrameError{Kind: wire.FrameErrorInvalidName, Msg: "name rejected", Err: err}
	}

	declared, err := wire.ReadLength(r)
	if err != nil {
		if err == io.EOF {
			err = &wire.FrameError{Kind: wire.FrameErrorPartial, Msg: "missing body length", Err: io.ErrUnexpectedEOF}
		}
		return 0, err
	}
	if declared > uint64(1<<63-1) {
		return 0, fmt.Errorf("%w: declared %d bytes", ErrTooLarge, declared)
	}
	size := int64(declared)
	if opts.MaxFileSize > 0 && size > opts.MaxFileSize {
		return 0, fmt.Errorf("%w: declared %d bytes, limit %d", ErrTooLarge, size, opts.MaxFileSize)
	}

	af, err := iox.CreateAtomic(filepath.Join(dir, name))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	defer iox.DiscardErr(af.Abort)

	received, err := io.CopyBuffer(af, io.LimitReader(r, size), make([]byte, copyBufferSize))
	if err != nil {
		return received, fmt.Errorf("receive %s: %w", name, err)
	}
	if received != size {
		return received, &wire.FrameError{
			Kind: wire.FrameErrorPartial,
			Msg:  fmt.Sprintf("body truncated at %d of %d bytes", received, size),
			Err:  io.ErrUnexpectedEOF,
		}
	}

	if err := af.Commit(); err != nil {
		return received, err
	}
	return received, nil
}

// ProgressFunc observes bytes sent so far out of total.
type ProgressFunc func(sent, total int64)

// Send writes the length of src followed by exactly size bytes from it.
// progress may be nil.
func Send(w io.Writer, src io.Reader, size int64, progress ProgressFunc) (int64, error) {
	if size < 0 {
		return 0, fmt.Errorf("invalid size %d", size)
	}
	if err := wire.WriteLength(w, uint64(size)); err != nil {
		return 0, err
	}

	buf := make([]byte, copyBufferSize)
	var sent int64
	for sent < size {
		chunk := buf[:min(int64(len(buf)), size-sent)]
		n, err := io.ReadFull(src, chunk)
		if n > 0 {
			if _, werr := w.Write(chunk[:n]); werr != nil {
				return sent, werr
			}
			sent += int64(n)
			if progress != nil {
				progress(sent, size)
			}
		}
		if err != nil {
			return sent, fmt.Errorf("source ended at %d of %d bytes: %w", sent, size, err)
		}
	}
	if f, ok := w.(wire.Flusher); ok {
		if err := f.Flush(); err != nil {
			return sent, err
		}
	}
	if size == 0 && progress != nil {
		progress(0, 0)
	}
	return sent, nil
}

// Percent returns sent/total as a percentage. An empty body is 100% sent.
func Percent(sent, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(sent) / float64(total) * 100
}
