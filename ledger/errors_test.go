package ledger

import (
	"errors"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "boom" }
func (timeoutErr) Timeout() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{"typed timeout", timeoutErr{}, ErrTimeout},
		{"deadline exceeded", errors.New("context deadline exceeded"), ErrTimeout},
		{"AccessDenied", errors.New("AccessDenied: you do not have access"), ErrAccessDenied},
		{"HTTP 403", errors.New("received status 403"), ErrAccessDenied},
		{"permission denied", errors.New("open /data: permission denied"), ErrPermissionDenied},
		{"no such file", errors.New("open /x: no such file or directory"), ErrNotFound},
		{"NoSuchKey", errors.New("NoSuchKey: key missing"), ErrNotFound},
		{"ENOSPC", errors.New("ENOSPC: write failed"), ErrDiskFull},
		{"SlowDown", errors.New("SlowDown: reduce your request rate"), ErrThrottled},
		{"expired token", errors.New("ExpiredToken: token expired"), ErrAuth},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9000: connect: connection refused"), ErrNetwork},
		{"unclassified", errors.New("something odd"), errUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.wantKind {
				t.Errorf("classifyError(%q) = %v, want %v", tt.err, got, tt.wantKind)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if wrap("write", "p", nil) != nil {
		t.Error("wrap(nil) != nil")
	}

	cause := errors.New("no space left on device")
	err := wrap("write", "playdl/package=a", cause)
	if !errors.Is(err, ErrDiskFull) {
		t.Errorf("errors.Is(ErrDiskFull) = false for %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost from chain")
	}
	want := "ledger write playdl/package=a: no space left on device: no space left on device"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	// Already classified errors pass through unchanged.
	if again := wrap("read", "other", err); again != err {
		t.Errorf("wrap re-wrapped a StorageError: %v", again)
	}
}
