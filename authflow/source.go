package authflow

import (
	"context"
	"errors"
	"sync"
)

// ErrSourceClosed is returned by Source.Next once the user closed the
// login surface.
var ErrSourceClosed = errors.New("login surface closed")

// Event is one completed page load.
type Event struct {
	URL string
	// Cookies is the Cookie header value for URL.
	Cookies string
	// Identity is the identity script result, possibly quoted or empty.
	Identity string
}

// Source delivers page-load events from a login surface.
type Source interface {
	// Next blocks for the next event. It returns ErrSourceClosed when the
	// surface was closed.
	Next(ctx context.Context) (Event, error)
	Close() error
}

// StaticSource replays a fixed list of events, then reports closed.
type StaticSource struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewStaticSource creates a source replaying events.
func NewStaticSource(events ...Event) *StaticSource {
	return &StaticSource{events: events}
}

// NewManualSource yields one page event carrying a cookie and identity the
// user copied from a browser.
func NewManualSource(email, cookie string) *StaticSource {
	return NewStaticSource(Event{
		URL:      SetupURL,
		Cookies:  CookieName + "=" + cookie,
		Identity: email,
	})
}

// Next returns the next queued event.
func (s *StaticSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.events) == 0 {
		return Event{}, ErrSourceClosed
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

// Close discards the remaining events.
func (s *StaticSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.events = nil
	s.mu.Unlock()
	return nil
}
