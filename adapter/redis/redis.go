// Package redis implements a Redis completion adapter.
//
// Each fetch_completed event is PUBLISHed as JSON on a channel and stored
// under its package in a hash of latest outcomes, so consumers that were not
// subscribed can still read the last result per package.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/playdl/adapter"
)

const (
	// DefaultChannel is the pub/sub channel.
	DefaultChannel = "playdl:fetch_completed"
	// DefaultLatestKey is the hash of latest events keyed by package.
	DefaultLatestKey = "playdl:latest"
	// DefaultTimeout bounds one publish attempt.
	DefaultTimeout = 5 * time.Second
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 3
)

// Config configures the adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL     string
	Channel string
	// LatestKey names the latest-outcome hash. "-" disables it.
	LatestKey string
	Timeout   time.Duration
	Retries   int
}

// Adapter publishes fetch completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New validates cfg, applies defaults and creates the client.
// No connection is made until the first Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.LatestKey == "" {
		cfg.LatestKey = DefaultLatestKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

func (a *Adapter) latestEnabled() bool { return a.config.LatestKey != "-" }

// Publish stores the event as the package's latest outcome and publishes it,
// both in one MULTI/EXEC so subscribers never see an event the hash lacks.
func (a *Adapter) Publish(ctx context.Context, event *adapter.FetchCompletedEvent) error {
	if event == nil || event.Package == "" {
		return errors.New("redis: event has no package")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, nil, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		_, err := a.client.TxPipelined(pctx, func(p goredis.Pipeliner) error {
			if a.latestEnabled() {
				p.HSet(pctx, a.config.LatestKey, event.Package, body)
			}
			p.Publish(pctx, a.config.Channel, body)
			return nil
		})
		return err
	})
}

// Latest returns the last event stored for pkg, or nil if none.
func (a *Adapter) Latest(ctx context.Context, pkg string) (*adapter.FetchCompletedEvent, error) {
	if !a.latestEnabled() {
		return nil, errors.New("redis: latest-outcome hash is disabled")
	}
	raw, err := a.client.HGet(ctx, a.config.LatestKey, pkg).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read latest %s: %w", pkg, err)
	}
	var ev adapter.FetchCompletedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("redis: decode latest %s: %w", pkg, err)
	}
	return &ev, nil
}

// Close releases the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
