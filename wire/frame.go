// Package wire implements the strata connection protocol: one command byte,
// then length-prefixed frames, with a fixed two-byte acknowledgement token.
//
// Frame layout:
//
//	+----------------------+-----------------+
//	| length (8 bytes, BE) | payload (N)     |
//	+----------------------+-----------------+
//
// The codec never closes connections. Every I/O error is returned to the
// caller, which owns the connection.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pithecene-io/strata/types"
)

// Frame size constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 8
	// MaxPayloadSize is the largest message payload accepted (16 MiB).
	// Raw upload bodies are not frames and are not bound by this limit.
	MaxPayloadSize = 16 * 1024 * 1024
)

// Ack is the acknowledgement token exchanged after each critical step.
var Ack = [2]byte{'O', 'K'}

// FrameErrorKind classifies codec errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated prefix or payload.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a payload exceeding MaxPayloadSize.
	FrameErrorTooLarge
	// FrameErrorMalformed indicates a payload that is not a valid event.
	FrameErrorMalformed
	// FrameErrorInvalidAck indicates the peer sent something other than Ack.
	FrameErrorInvalidAck
	// FrameErrorUnknownCommand indicates a command byte outside the command set.
	FrameErrorUnknownCommand
	// FrameErrorInvalidName indicates a file name outside the flat namespace.
	FrameErrorInvalidName
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorMalformed:
		return "malformed"
	case FrameErrorInvalidAck:
		return "invalid_ack"
	case FrameErrorUnknownCommand:
		return "unknown_command"
	case FrameErrorInvalidName:
		return "invalid_name"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FrameError represents a codec or protocol error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsProtocol returns true if the peer violated the protocol.
// A partial frame is a transport failure, not a protocol violation.
func (e *FrameError) IsProtocol() bool {
	return e.Kind != FrameErrorPartial
}

// IsProtocolError returns true if err is a protocol violation.
func IsProtocolError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsProtocol()
	}
	return false
}

// IsKind reports whether err is a FrameError of the given kind.
func IsKind(err error, kind FrameErrorKind) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == kind
}

// Flusher is implemented by buffered writers that must be flushed per message.
type Flusher interface {
	Flush() error
}

func flush(w io.Writer) error {
	if f, ok := w.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// WriteFrame writes the length prefix and payload as one write, then flushes.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint64(buf[:LengthPrefixSize], uint64(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return flush(w)
}

// ReadFrame reads a single frame from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly before a new frame
//   - *FrameError with Kind=FrameErrorPartial: incomplete prefix or payload
//   - *FrameError with Kind=FrameErrorTooLarge: payload exceeds MaxPayloadSize
func ReadFrame(r io.Reader) ([]byte, error) {
	size, err := ReadLength(r)
	if err != nil {
		return nil, err
	}

	if size > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}
	return payload, nil
}

// WriteMessage frames a text message.
func WriteMessage(w io.Writer, message string) error {
	return WriteFrame(w, []byte(message))
}

// ReadMessage reads a frame and decodes it as UTF-8.
// Invalid sequences are replaced rather than rejected.
func ReadMessage(r io.Reader) (string, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(payload), "�"), nil
}

// WriteLength writes a bare 8-byte big-endian length, as used ahead of raw
// upload bodies.
func WriteLength(w io.Writer, n uint64) error {
	var buf [LengthPrefixSize]byte
	binary.BigEndian.PutUint64(buf[:], n)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	return flush(w)
}

// ReadLength reads a bare 8-byte big-endian length.
// Returns io.EOF only if the stream ended before the first byte.
func ReadLength(r io.Reader) (uint64, error) {
	var buf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteCommand writes the single command byte.
func WriteCommand(w io.Writer, cmd types.Command) error {
	if _, err := w.Write([]byte{byte(cmd)}); err != nil {
		return err
	}
	return flush(w)
}

// ReadCommand reads the single command byte. For a byte outside the command
// set it returns the raw value together with a FrameErrorUnknownCommand.
func ReadCommand(r io.Reader) (types.Command, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	cmd := types.Command(buf[0])
	if !cmd.Valid() {
		return cmd, &FrameError{
			Kind: FrameErrorUnknownCommand,
			Msg:  fmt.Sprintf("invalid command: %d", buf[0]),
		}
	}
	return cmd, nil
}

// WriteAck writes the acknowledgement token and flushes.
func WriteAck(w io.Writer) error {
	if _, err := w.Write(Ack[:]); err != nil {
		return err
	}
	return flush(w)
}

// WaitForAck reads two bytes and fails unless they are the Ack token.
func WaitForAck(r io.Reader) error {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read ack",
			Err:  err,
		}
	}
	if buf != Ack {
		return &FrameError{
			Kind: FrameErrorInvalidAck,
			Msg:  fmt.Sprintf("invalid ack: %q", buf[:]),
		}
	}
	return nil
}
