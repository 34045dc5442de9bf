package journal

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		errMsg   string
		wantKind error
	}{
		{"context deadline exceeded", ErrTimeout},
		{"connection timeout after 30s", ErrTimeout},
		{"AccessDenied: you do not have access", ErrPermissionDenied},
		{"open /data/journal: permission denied", ErrPermissionDenied},
		{"write /data: no space left on device", ErrDiskFull},
		{"NoSuchBucket: the bucket does not exist", ErrNotFound},
		{"SlowDown: reduce your request rate", ErrThrottled},
		{"ExpiredToken: the token has expired", ErrAuth},
		{"dial tcp 10.0.0.1:443: connect: connection refused", ErrNetwork},
		{"something unexpected", errUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.errMsg, func(t *testing.T) {
			if got := classifyError(errors.New(tt.errMsg)); got != tt.wantKind {
				t.Errorf("classifyError(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

func TestStorageError_Chain(t *testing.T) {
	cause := errors.New("permission denied")
	err := wrapError("write", "strata", cause)

	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("expected errors.Is(err, ErrPermissionDenied)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected underlying cause in chain")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "write" {
		t.Errorf("expected *StorageError with Op=write, got %#v", err)
	}
	if wrapError("write", "x", err) != err {
		t.Error("wrapping a StorageError again should return it unchanged")
	}
	if wrapError("write", "x", nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}
