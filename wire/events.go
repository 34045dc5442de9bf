package wire

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/strata/types"
)

// EncodeEvent renders an event as its wire text.
//
//	found_in: <name>
//	found: <name>, <offset>, <snippet>
//	update: <percent>
//	done: <elapsed>        (search)
//	done:                  (list)
//	file: <name>
//	error: <message>
func EncodeEvent(ev types.Event) string {
	switch ev.Kind {
	case types.EventFoundIn:
		return "found_in: " + ev.File
	case types.EventFound:
		return fmt.Sprintf("found: %s, %d, %s", ev.Match.File, ev.Match.Offset, ev.Match.Snippet)
	case types.EventUpdate:
		return "update: " + strconv.FormatFloat(ev.Percent, 'f', 2, 64)
	case types.EventDone:
		if ev.Elapsed == 0 {
			return "done:"
		}
		return "done: " + ev.Elapsed.Round(time.Microsecond).String()
	case types.EventFile:
		return "file: " + ev.File
	case types.EventError:
		return "error: " + ev.Message
	default:
		return string(ev.Kind) + ":"
	}
}

// ParseEvent parses wire text back into an event.
// Unknown prefixes and malformed fields yield a FrameErrorMalformed.
func ParseEvent(msg string) (types.Event, error) {
	prefix, rest, ok := strings.Cut(msg, ":")
	if !ok {
		return types.Event{}, malformed(msg, nil)
	}
	rest = strings.TrimPrefix(rest, " ")

	switch types.EventKind(prefix) {
	case types.EventFoundIn:
		return types.FoundIn(rest), nil
	case types.EventFound:
		// Names never contain ',' so the first two separators are unambiguous;
		// the snippet may contain anything.
		parts := strings.SplitN(rest, ", ", 3)
		if len(parts) < 2 {
			return types.Event{}, malformed(msg, nil)
		}
		offset, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return types.Event{}, malformed(msg, err)
		}
		m := types.Match{File: parts[0], Offset: offset}
		if len(parts) == 3 {
			m.Snippet = parts[2]
		}
		return types.Found(m), nil
	case types.EventUpdate:
		pct, err := strconv.ParseFloat(strings.TrimSuffix(rest, "%"), 64)
		if err != nil {
			return types.Event{}, malformed(msg, err)
		}
		return types.Update(pct), nil
	case types.EventDone:
		if rest == "" {
			return types.Done(0), nil
		}
		elapsed, err := time.ParseDuration(rest)
		if err != nil {
			return types.Event{}, malformed(msg, err)
		}
		return types.Done(elapsed), nil
	case types.EventFile:
		return types.File(rest), nil
	case types.EventError:
		return types.Error(rest), nil
	default:
		return types.Event{}, malformed(msg, nil)
	}
}

func malformed(msg string, err error) error {
	if len(msg) > 64 {
		msg = msg[:64] + "..."
	}
	return &FrameError{
		Kind: FrameErrorMalformed,
		Msg:  fmt.Sprintf("malformed event %q", msg),
		Err:  err,
	}
}

// EventWriter frames events onto a connection.
type EventWriter struct {
	w io.Writer
}

// NewEventWriter creates an EventWriter over w.
func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{w: w}
}

// Emit encodes and writes a single event.
func (ew *EventWriter) Emit(ev types.Event) error {
	return WriteMessage(ew.w, EncodeEvent(ev))
}

// ReadEvent reads and parses the next event frame.
func ReadEvent(r io.Reader) (types.Event, error) {
	msg, err := ReadMessage(r)
	if err != nil {
		return types.Event{}, err
	}
	return ParseEvent(msg)
}
