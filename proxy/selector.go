// Package proxy selects outbound proxies from configured pools.
//
// A Selector holds named pools. Transport wires one pool into an
// http.Transport so every service call and fragment download picks its
// proxy per request.
package proxy

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/types"
)

// Selector manages proxy selection from pools.
// Thread-safe for concurrent access.
type Selector struct {
	mu     sync.Mutex
	pools  map[string]*poolState
	logger *log.Logger
	now    func() time.Time
}

// poolState holds runtime state for a single pool.
type poolState struct {
	pool      *types.ProxyPool
	rrIndex   int64                   // round-robin counter
	stickyMap map[string]*stickyEntry // destination host -> entry
}

type stickyEntry struct {
	endpointIdx int
	expiresAt   *time.Time
}

// NewSelector creates a new proxy selector. logger may be nil.
func NewSelector(logger *log.Logger) *Selector {
	return &Selector{
		pools:  make(map[string]*poolState),
		logger: log.OrNop(logger).Named("proxy"),
		now:    time.Now,
	}
}

// RegisterPool validates and registers a proxy pool.
// Soft warnings are logged, not returned.
func (s *Selector) RegisterPool(pool *types.ProxyPool) error {
	if err := pool.Validate(); err != nil {
		return fmt.Errorf("pool validation failed: %w", err)
	}
	for _, w := range pool.Warnings() {
		s.logger.Warn(w, map[string]any{"pool": pool.Name})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[pool.Name] = &poolState{
		pool:      pool,
		stickyMap: make(map[string]*stickyEntry),
	}
	return nil
}

// Pools returns the registered pool names.
func (s *Selector) Pools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.pools))
	for name := range s.pools {
		names = append(names, name)
	}
	return names
}

// SelectRequest contains parameters for endpoint selection.
type SelectRequest struct {
	// Pool is the pool name to select from.
	Pool string
	// Host is the destination host; the sticky key for sticky pools.
	Host string
	// Commit determines whether to advance rotation state.
	// When false, returns what would be selected without mutating state.
	Commit bool
}

// Select selects a proxy endpoint from the specified pool.
func (s *Selector) Select(req SelectRequest) (*types.ProxyEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.pools[req.Pool]
	if !ok {
		return nil, fmt.Errorf("pool %q not found", req.Pool)
	}

	var idx int
	var err error
	switch state.pool.Strategy {
	case types.ProxyStrategyRoundRobin:
		idx = selectRoundRobin(state, req.Commit)
	case types.ProxyStrategyRandom:
		idx, err = selectRandom(state)
	case types.ProxyStrategySticky:
		idx, err = s.selectSticky(state, req)
	default:
		err = fmt.Errorf("unknown strategy %q", state.pool.Strategy)
	}
	if err != nil {
		return nil, err
	}

	ep := state.pool.Endpoints[idx]
	return &ep, nil
}

// selectRoundRobin increments the counter only when commit is true.
func selectRoundRobin(state *poolState, commit bool) int {
	idx := int(state.rrIndex % int64(len(state.pool.Endpoints)))
	if commit {
		state.rrIndex++
	}
	return idx
}

func selectRandom(state *poolState) (int, error) {
	n := len(state.pool.Endpoints)
	if n == 1 {
		return 0, nil
	}
	bigIdx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random selection failed: %w", err)
	}
	return int(bigIdx.Int64()), nil
}

// selectSticky pins req.Host to an endpoint, stored only when committing.
func (s *Selector) selectSticky(state *poolState, req SelectRequest) (int, error) {
	if req.Host == "" {
		return 0, errors.New("sticky selection requires a destination host")
	}

	now := s.now()
	if entry, ok := state.stickyMap[req.Host]; ok {
		if entry.expiresAt == nil || entry.expiresAt.After(now) {
			return entry.endpointIdx, nil
		}
		delete(state.stickyMap, req.Host)
	}

	idx, err := selectRandom(state)
	if err != nil {
		return 0, err
	}

	if req.Commit {
		entry := &stickyEntry{endpointIdx: idx}
		if state.pool.Sticky != nil && state.pool.Sticky.TTLMs != nil {
			expiresAt := now.Add(time.Duration(*state.pool.Sticky.TTLMs) * time.Millisecond)
			entry.expiresAt = &expiresAt
		}
		state.stickyMap[req.Host] = entry
	}
	return idx, nil
}

// PoolStats reports selection state for a pool.
type PoolStats struct {
	RoundRobinIndex int64
	StickyEntries   int
}

// Stats returns statistics for a pool.
func (s *Selector) Stats(poolName string) (*PoolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.pools[poolName]
	if !ok {
		return nil, fmt.Errorf("pool %q not found", poolName)
	}
	return &PoolStats{
		RoundRobinIndex: state.rrIndex,
		StickyEntries:   len(state.stickyMap),
	}, nil
}

// CleanExpiredSticky removes expired sticky entries from all pools.
func (s *Selector) CleanExpiredSticky() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, state := range s.pools {
		for key, entry := range state.stickyMap {
			if entry.expiresAt != nil && entry.expiresAt.Before(now) {
				delete(state.stickyMap, key)
			}
		}
	}
}
