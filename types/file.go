// Package types defines core domain types for the strata archive.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidName is returned for file names outside the flat namespace.
var ErrInvalidName = errors.New("invalid file name")

// FileRecord maps a logical file name to its storage path.
type FileRecord struct {
	Name string `msgpack:"name" json:"name" yaml:"name"`
	Path string `msgpack:"path" json:"path" yaml:"path"`
}

// CorpusEntry is one file enumerated at the start of a search.
type CorpusEntry struct {
	// Name is the logical file name reported in events.
	Name string
	// Path is where the bytes live on disk.
	Path string
	// Size is the byte count observed at enumeration time.
	Size int64
}

// ValidateName checks that name is usable as a flat storage key.
// Names must be non-empty, contain no path separators or control characters,
// must not be "." or "..", and must not contain ',' which separates fields
// in the event text form.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\,`):
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, name)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: %q contains a control character", ErrInvalidName, name)
	}
	return nil
}
