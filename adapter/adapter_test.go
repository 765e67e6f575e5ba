package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastBackoff(t *testing.T) {
	t.Helper()
	prev := BaseBackoff
	BaseBackoff = time.Millisecond
	t.Cleanup(func() { BaseBackoff = prev })
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	fastBackoff(t)
	calls := 0
	err := Retry(t.Context(), "test", 3, nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_Exhausts(t *testing.T) {
	fastBackoff(t)
	calls := 0
	cause := errors.New("down")
	err := Retry(t.Context(), "test", 2, nil, func(context.Context) error {
		calls++
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("Retry error = %v, want wrapping %v", err, cause)
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("error = %q", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_PermanentStops(t *testing.T) {
	fastBackoff(t)
	calls := 0
	perm := errors.New("bad request")
	err := Retry(t.Context(), "test", 5, func(err error) bool { return errors.Is(err, perm) }, func(context.Context) error {
		calls++
		return perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("Retry error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	called := false
	err := Retry(ctx, "test", 3, nil, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn called after cancellation")
	}
}
