package iox

import (
	"os"
	"path/filepath"
	"testing"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestAtomicFile_Commit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	af, err := CreateAtomic(path)
	if err != nil {
		t.Fatalf("CreateAtomic failed: %v", err)
	}
	if _, err := af.Write([]byte("payload")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("final path visible before Commit")
	}
	if err := af.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil || string(got) != "payload" {
		t.Fatalf("ReadFile = %q, %v", got, err)
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("dir contents = %v, want only data.bin", names)
	}
	if err := af.Abort(); err != nil {
		t.Errorf("Abort after Commit should be a no-op, got %v", err)
	}
}

func TestAtomicFile_Abort(t *testing.T) {
	dir := t.TempDir()
	af, err := CreateAtomic(filepath.Join(dir, "data.bin"))
	if err != nil {
		t.Fatalf("CreateAtomic failed: %v", err)
	}
	_, _ = af.Write([]byte("partial"))

	if err := af.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("dir contents = %v, want empty", names)
	}
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap")
	if err := WriteFileAtomic(path, []byte("v1")); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("v2")); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "v2" {
		t.Errorf("content = %q, want v2", got)
	}
}

func TestAtomicFile_CommitMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.txt")
	if err := WriteFileAtomic(path, []byte("x")); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if got := info.Mode().Perm(); got != FileMode {
		t.Errorf("mode = %v, want %v", got, FileMode)
	}
}
