package iox

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileMode is the permission committed files end up with.
const FileMode os.FileMode = 0o644

// AtomicFile is a file that becomes visible at its final path only on Commit.
// Writes go to a temp file in the same directory, so the rename is atomic.
//
//	af, err := iox.CreateAtomic(path)
//	defer iox.DiscardErr(af.Abort)
//	... write ...
//	return af.Commit()
type AtomicFile struct {
	f    *os.File
	path string
	done bool
}

// CreateAtomic creates a temp file next to path.
func CreateAtomic(path string) (*AtomicFile, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{f: f, path: path}, nil
}

// Write implements io.Writer.
func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

// Commit syncs and closes the temp file and renames it to the final path.
// On failure the temp file is removed.
func (a *AtomicFile) Commit() error {
	if a.done {
		return nil
	}
	a.done = true

	if err := a.f.Chmod(FileMode); err != nil {
		_ = a.f.Close()
		_ = os.Remove(a.f.Name())
		return fmt.Errorf("chmod %s: %w", a.path, err)
	}
	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		_ = os.Remove(a.f.Name())
		return fmt.Errorf("sync %s: %w", a.path, err)
	}
	if err := a.f.Close(); err != nil {
		_ = os.Remove(a.f.Name())
		return fmt.Errorf("close %s: %w", a.path, err)
	}
	if err := os.Rename(a.f.Name(), a.path); err != nil {
		_ = os.Remove(a.f.Name())
		return fmt.Errorf("rename %s: %w", a.path, err)
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	_ = a.f.Close()
	return os.Remove(a.f.Name())
}

// WriteFileAtomic writes data to path through an AtomicFile.
func WriteFileAtomic(path string, data []byte) error {
	af, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if _, err := af.Write(data); err != nil {
		_ = af.Abort()
		return err
	}
	return af.Commit()
}
