package search

import (
	"errors"
	"io"
)

// Window is a fixed-capacity scan buffer of 2W bytes split into a carry
// region (the tail of the previous step) and a fresh region (bytes read this
// step). W must be at least the term length so that any match crossing a read
// boundary lies entirely inside one window.
type Window struct {
	r     io.Reader
	size  int
	buf   []byte
	lower []byte

	base  int64 // absolute offset of buf[0]
	carry int
	fresh int

	started bool
	final   bool
}

// NewWindow creates a window of half-size size over r.
func NewWindow(r io.Reader, size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		r:     r,
		size:  size,
		buf:   make([]byte, 2*size),
		lower: make([]byte, 2*size),
	}
}

// Next advances to the next window. It returns false once the final window
// (the one whose read came up short) has been consumed.
func (w *Window) Next() (bool, error) {
	if w.final {
		return false, nil
	}

	if w.started {
		// Only non-final windows get here, and those had a full fresh region,
		// so the new carry is exactly W bytes.
		w.base += int64(w.carry)
		copy(w.buf, w.buf[w.carry:w.carry+w.fresh])
		w.carry = w.fresh
		w.fresh = 0
	}
	w.started = true

	n, err := io.ReadFull(w.r, w.buf[w.carry:w.carry+w.size])
	w.fresh = n
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		w.final = true
	default:
		return false, err
	}

	asciiLower(w.lower[:w.carry+w.fresh], w.buf[:w.carry+w.fresh])
	return true, nil
}

// Bytes returns the raw window contents, carry then fresh.
func (w *Window) Bytes() []byte { return w.buf[:w.carry+w.fresh] }

// Lower returns the ASCII-lowercased window contents.
func (w *Window) Lower() []byte { return w.lower[:w.carry+w.fresh] }

// Base returns the absolute offset of the first window byte.
func (w *Window) Base() int64 { return w.base }

// CarryLen returns the length of the carry region.
func (w *Window) CarryLen() int { return w.carry }

// End returns the absolute offset just past the last byte read so far.
func (w *Window) End() int64 { return w.base + int64(w.carry+w.fresh) }

// Final reports whether this is the last window for the stream.
func (w *Window) Final() bool { return w.final }

// asciiLower copies src into dst lowercasing only A-Z, so byte offsets in dst
// line up exactly with src.
func asciiLower(dst, src []byte) {
	for i, c := range src {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		dst[i] = c
	}
}

// LowerTerm normalizes a search term the same way window contents are.
func LowerTerm(term string) []byte {
	b := []byte(term)
	asciiLower(b, b)
	return b
}
