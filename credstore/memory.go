package credstore

import (
	"context"
	"sync"

	"github.com/pithecene-io/playdl/types"
)

// MemoryStore is a process-local Store, used in tests and for --ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	cred   *types.Credential
	writes int
}

// NewMemoryStore creates a store, optionally seeded with a credential.
func NewMemoryStore(seed *types.Credential) *MemoryStore {
	s := &MemoryStore{}
	if seed != nil {
		c := *seed
		s.cred = &c
	}
	return s
}

// Read implements Store.
func (s *MemoryStore) Read(_ context.Context) (*types.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil, nil
	}
	c := *s.cred
	return &c, nil
}

// Write implements Store.
func (s *MemoryStore) Write(_ context.Context, cred types.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &cred
	s.writes++
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}

// Writes returns how many times Write succeeded.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

var _ Store = (*MemoryStore)(nil)
