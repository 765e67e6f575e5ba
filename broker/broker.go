// Package broker serves the cached credential and arbitrates interactive
// login so at most one login runs at a time.
//
// Broker is the in-process service object. Server exposes it on a unix
// socket with length-prefixed msgpack frames, and Client is the remote
// view used by other processes. Both Broker and Client implement Provider.
package broker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pithecene-io/playdl/authflow"
	"github.com/pithecene-io/playdl/credstore"
	"github.com/pithecene-io/playdl/device"
	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/types"
)

// Provider supplies a credential and the device profile to pair it with.
type Provider interface {
	GetCredential(ctx context.Context) (types.Credential, *types.DeviceProfile, error)
}

// LoginFunc runs one interactive login to completion.
type LoginFunc func(ctx context.Context) authflow.Outcome

// Config wires a Broker.
type Config struct {
	Store  credstore.Store
	Device device.Source
	Login  LoginFunc
	// Reauth runs Login even when a credential is already stored. Without
	// it Login returns at once for a stored credential.
	Reauth bool
	// LoginTimeout bounds a single login. Zero means no bound.
	LoginTimeout time.Duration
	Logger       *log.Logger
	Metrics      *metrics.Collector
}

// Broker is the process-wide credential service.
type Broker struct {
	cfg    Config
	logger *log.Logger

	group    singleflight.Group
	inFlight atomic.Bool
	logins   atomic.Int64
}

// New creates a Broker.
func New(cfg Config) *Broker {
	return &Broker{cfg: cfg, logger: log.OrNop(cfg.Logger).Named("broker")}
}

// RetrieveCredential returns the stored credential, or nil.
func (b *Broker) RetrieveCredential(ctx context.Context) (*types.Credential, error) {
	cred, err := b.cfg.Store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("broker: read credential: %w", err)
	}
	return cred, nil
}

// Profile builds a fresh device profile.
func (b *Broker) Profile(ctx context.Context) (*types.DeviceProfile, error) {
	p, err := device.Build(ctx, b.cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("broker: build device profile: %w", err)
	}
	return p, nil
}

// Login runs the interactive login, or joins the one already running.
// The login itself is detached from ctx: a caller that gives up gets
// ctx.Err() while the login continues for everyone else.
//
// The store is read again once the login slot is won, so a caller that saw
// an empty store just before another login finished does not start a
// second one.
func (b *Broker) Login(ctx context.Context) error {
	ch := b.group.DoChan("login", func() (any, error) {
		if !b.cfg.Reauth {
			cred, err := b.cfg.Store.Read(context.WithoutCancel(ctx))
			if err != nil {
				return nil, fmt.Errorf("broker: read credential: %w", err)
			}
			if cred != nil {
				b.logger.Debug("credential stored meanwhile, skipping login", nil)
				return nil, nil
			}
		}

		b.inFlight.Store(true)
		defer b.inFlight.Store(false)
		b.logins.Add(1)

		lctx := context.WithoutCancel(ctx)
		if b.cfg.LoginTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(lctx, b.cfg.LoginTimeout)
			defer cancel()
		}
		b.logger.Info("starting interactive login", nil)
		return nil, outcomeError(b.cfg.Login(lctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			b.logger.Debug("joined in-flight login", nil)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoginInFlight reports whether a login is running.
func (b *Broker) LoginInFlight() bool { return b.inFlight.Load() }

// Logins returns how many logins this broker has started.
func (b *Broker) Logins() int64 { return b.logins.Load() }

// GetCredential returns the cached credential with a fresh profile. With
// no credential stored it runs (or joins) a login and reads again.
func (b *Broker) GetCredential(ctx context.Context) (types.Credential, *types.DeviceProfile, error) {
	return getCredential(ctx, b.RetrieveCredential, b.Login, b.Profile, b.cfg.Metrics)
}

// getCredential is the retrieve, login, retrieve sequence shared by Broker
// and Client.
func getCredential(
	ctx context.Context,
	retrieve func(context.Context) (*types.Credential, error),
	login func(context.Context) error,
	profile func(context.Context) (*types.DeviceProfile, error),
	m *metrics.Collector,
) (types.Credential, *types.DeviceProfile, error) {
	cred, err := retrieve(ctx)
	if err != nil {
		return types.Credential{}, nil, err
	}
	if cred != nil {
		m.IncCredentialHit()
	} else {
		if err := login(ctx); err != nil {
			return types.Credential{}, nil, err
		}
		if cred, err = retrieve(ctx); err != nil {
			return types.Credential{}, nil, err
		}
		if cred == nil {
			return types.Credential{}, nil, ErrNoCredential
		}
	}

	p, err := profile(ctx)
	if err != nil {
		return types.Credential{}, nil, err
	}
	return *cred, p, nil
}

var _ Provider = (*Broker)(nil)
