// Package iox holds small I/O helpers: cleanup of closers whose errors
// cannot be acted on, and atomic replacement of files.
package iox

import (
	"errors"
	"io"
)

// DiscardClose closes c and drops the error.
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DiscardErr calls fn and drops the error, e.g. defer iox.DiscardErr(logger.Sync).
func DiscardErr(fn func() error) { _ = fn() }

// Stack closes resources in reverse order of acquisition.
// The zero value is ready to use.
type Stack struct {
	closers []io.Closer
}

// Push records c to be closed by Close.
func (s *Stack) Push(c io.Closer) {
	s.closers = append(s.closers, c)
}

// Close closes every pushed resource, last first, and joins the errors.
// The stack is empty afterwards.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
