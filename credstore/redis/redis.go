// Package redis implements a credstore.Store backed by a Redis hash.
//
// Both entries live in one hash at "<prefix><namespace>" and are written
// with a single HSET, so the pair is replaced atomically.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/playdl/credstore"
	"github.com/pithecene-io/playdl/types"
)

// DefaultPrefix is prepended to the namespace to form the hash key.
const DefaultPrefix = "playdl:"

// DefaultTimeout is the default per-command timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis credential store.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Namespace is the store name (default: credentials).
	Namespace string
	// Prefix is the key prefix (default: playdl:).
	Prefix string
	// Timeout is the per-command timeout (default 5s).
	Timeout time.Duration
}

// Store is a Redis-backed credential store.
type Store struct {
	key     string
	timeout time.Duration
	client  *goredis.Client
}

// New creates a Redis credential store from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis credstore requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis credstore: invalid URL: %w", err)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = credstore.DefaultNamespace
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Store{
		key:     cfg.Prefix + cfg.Namespace,
		timeout: cfg.Timeout,
		client:  goredis.NewClient(opts),
	}, nil
}

// Key returns the hash key holding the entries.
func (s *Store) Key() string { return s.key }

// Read implements credstore.Store.
func (s *Store) Read(ctx context.Context) (*types.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vals, err := s.client.HMGet(ctx, s.key, credstore.KeyEmail, credstore.KeyToken).Result()
	if err != nil {
		return nil, fmt.Errorf("redis credstore: read: %w", err)
	}
	email, _ := vals[0].(string)
	token, _ := vals[1].(string)
	if email == "" || token == "" {
		return nil, nil
	}
	return &types.Credential{Email: email, Token: token}, nil
}

// Write implements credstore.Store.
func (s *Store) Write(ctx context.Context, cred types.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.client.HSet(ctx, s.key,
		credstore.KeyEmail, cred.Email,
		credstore.KeyToken, cred.Token,
	).Err()
	if err != nil {
		return fmt.Errorf("redis credstore: write: %w", err)
	}
	return nil
}

// Clear implements credstore.Store.
func (s *Store) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis credstore: clear: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ credstore.Store = (*Store)(nil)
