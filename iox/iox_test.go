package iox

import (
	"errors"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

type orderCloser struct {
	id    int
	order *[]int
}

func (o orderCloser) Close() error {
	*o.order = append(*o.order, o.id)
	return nil
}

func TestClosers_ReverseOrder(t *testing.T) {
	var order []int
	var set Closers
	set.Add(orderCloser{1, &order}, orderCloser{2, &order})
	set.Add(orderCloser{3, &order})

	if set.Len() != 3 {
		t.Fatalf("Len = %d, want 3", set.Len())
	}
	if err := set.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	want := []int{3, 2, 1}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("close order = %v, want %v", order, want)
		}
	}
}

func TestClosers_JoinsErrorsAndClosesAll(t *testing.T) {
	a, b := &spyCloser{}, &spyCloser{}
	var set Closers
	set.Add(a, b)

	if err := set.Close(); err == nil {
		t.Fatal("expected joined error")
	}
	if !a.closed || !b.closed {
		t.Fatal("every closer must be called even when one fails")
	}
}

func TestClosers_AddAfterClose(t *testing.T) {
	var set Closers
	_ = set.Close()

	s := &spyCloser{}
	set.Add(s)
	if !s.closed {
		t.Fatal("handle added after Close must be closed immediately")
	}
	if set.Len() != 0 {
		t.Fatalf("Len = %d, want 0", set.Len())
	}
}
