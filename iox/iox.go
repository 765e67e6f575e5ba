// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"errors"
	"io"
	"sync"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Flush) where errors are unactionable:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }

// Closers is a set of handles released together. Handles are closed in
// reverse registration order, each exactly once. Safe for concurrent Add.
//
//	var closers iox.Closers
//	defer closers.Close()
type Closers struct {
	mu     sync.Mutex
	items  []io.Closer
	closed bool
}

// Add registers c. Adding to an already closed set closes c immediately.
func (s *Closers) Add(c ...io.Closer) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		for _, item := range c {
			DiscardClose(item)
		}
		return
	}
	s.items = append(s.items, c...)
	s.mu.Unlock()
}

// Len returns the number of registered handles.
func (s *Closers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close releases every registered handle and joins their errors.
func (s *Closers) Close() error {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		if err := items[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
