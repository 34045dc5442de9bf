package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("file", "fs")

	c.IncSessionStarted("upload")
	c.IncSessionStarted("search")
	c.IncSessionStarted("search")
	c.IncSessionCompleted()
	c.IncSessionFailed()
	c.IncProtocolError()
	c.AddBytesUploaded(100)
	c.AddBytesUploaded(23)
	c.IncFilesDeleted()
	c.RecordSearch(3, 1000)
	c.RecordSearch(2, 500)
	c.IncJournalWriteSuccess()
	c.IncJournalWriteFailure()
	c.IncNotifySuccess()
	c.IncNotifySuccess()
	c.IncNotifyFailure()

	s := c.Snapshot()

	checks := []struct {
		name      string
		got, want int64
	}{
		{"SessionsStarted", s.SessionsStarted, 3},
		{"SessionsCompleted", s.SessionsCompleted, 1},
		{"SessionsFailed", s.SessionsFailed, 1},
		{"SessionsActive", s.SessionsActive, 1},
		{"ByCommand[search]", s.ByCommand["search"], 2},
		{"ByCommand[upload]", s.ByCommand["upload"], 1},
		{"ProtocolErrors", s.ProtocolErrors, 1},
		{"BytesUploaded", s.BytesUploaded, 123},
		{"FilesDeleted", s.FilesDeleted, 1},
		{"Searches", s.Searches, 2},
		{"Matches", s.Matches, 5},
		{"BytesScanned", s.BytesScanned, 1500},
		{"JournalWriteSuccess", s.JournalWriteSuccess, 1},
		{"JournalWriteFailure", s.JournalWriteFailure, 1},
		{"NotifySuccess", s.NotifySuccess, 2},
		{"NotifyFailure", s.NotifyFailure, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("redis", "s3").Snapshot()

	if s.StoreBackend != "redis" {
		t.Errorf("StoreBackend = %q, want redis", s.StoreBackend)
	}
	if s.JournalBackend != "s3" {
		t.Errorf("JournalBackend = %q, want s3", s.JournalBackend)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("file", "none")
	c.IncSessionStarted("list")

	s1 := c.Snapshot()
	s1.ByCommand["list"] = 99
	c.IncSessionStarted("list")
	s2 := c.Snapshot()

	if s1.SessionsStarted != 1 {
		t.Errorf("s1.SessionsStarted = %d, want 1 (snapshot should not change)", s1.SessionsStarted)
	}
	if s2.ByCommand["list"] != 2 {
		t.Errorf("s2.ByCommand[list] = %d, want 2 (snapshot map must be a copy)", s2.ByCommand["list"])
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncSessionStarted("upload")
	c.IncSessionCompleted()
	c.IncSessionFailed()
	c.IncProtocolError()
	c.AddBytesUploaded(1)
	c.IncFilesDeleted()
	c.RecordSearch(1, 1)
	c.IncJournalWriteSuccess()
	c.IncJournalWriteFailure()
	c.IncNotifySuccess()
	c.IncNotifyFailure()

	s := c.Snapshot()
	if s.SessionsStarted != 0 {
		t.Errorf("nil collector snapshot should be zero, got SessionsStarted=%d", s.SessionsStarted)
	}
	if s.ByCommand != nil {
		t.Errorf("nil collector snapshot ByCommand should be nil, got %v", s.ByCommand)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("memory", "none")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncSessionStarted("search")
				c.RecordSearch(1, 10)
				c.IncSessionCompleted()
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.SessionsStarted != want {
		t.Errorf("SessionsStarted = %d, want %d", s.SessionsStarted, want)
	}
	if s.Matches != want {
		t.Errorf("Matches = %d, want %d", s.Matches, want)
	}
	if s.BytesScanned != want*10 {
		t.Errorf("BytesScanned = %d, want %d", s.BytesScanned, want*10)
	}
	if s.SessionsActive != 0 {
		t.Errorf("SessionsActive = %d, want 0", s.SessionsActive)
	}
}

func TestSnapshot_Fields(t *testing.T) {
	c := NewCollector("file", "fs")
	c.AddBytesUploaded(7)

	f := c.Snapshot().Fields()
	if f["bytes_uploaded"] != int64(7) {
		t.Errorf("bytes_uploaded = %v, want 7", f["bytes_uploaded"])
	}
	if f["store_backend"] != "file" {
		t.Errorf("store_backend = %v, want file", f["store_backend"])
	}
}
