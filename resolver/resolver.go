// Package resolver turns a package id and optional version into a
// downloadable App.
//
// Metadata lookup errors are downgraded to "not found" and logged with an
// error class, so a transport outage is visible in logs even though it is
// reported to the caller as a missing package. Purchase failures are not
// downgraded.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/playdl/broker"
	"github.com/pithecene-io/playdl/gplay"
	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/types"
)

// ErrNotFound is returned when no matching, free, available package exists.
var ErrNotFound = errors.New("package not found")

// Error classes logged for downgraded lookups.
const (
	ClassNotFound  = "not_found"
	ClassTransport = "transport"
)

// Catalog is the remote metadata and entitlement service.
type Catalog interface {
	Details(ctx context.Context, s types.Session, pkg string) (*types.PackageMetadata, error)
	Purchase(ctx context.Context, s types.Session, pkg string, versionCode int64, offerType int32) ([]types.Fragment, error)
}

// Resolver resolves packages using credentials from a Provider.
type Resolver struct {
	provider broker.Provider
	catalog  Catalog
	logger   *log.Logger
}

// New creates a Resolver.
func New(provider broker.Provider, catalog Catalog, logger *log.Logger) *Resolver {
	return &Resolver{
		provider: provider,
		catalog:  catalog,
		logger:   log.OrNop(logger).Named("resolver"),
	}
}

// Resolve returns the App for pkg. An empty version accepts whatever the
// service reports. Returns ErrNotFound for a missing entry, a lookup error,
// a version mismatch or a paid package. Credential errors from the provider
// and purchase errors are returned as is.
func (r *Resolver) Resolve(ctx context.Context, pkg, version string) (*types.App, error) {
	cred, profile, err := r.provider.GetCredential(ctx)
	if err != nil {
		return nil, err
	}
	session, err := types.NewSession(cred, profile)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	meta, err := r.catalog.Details(ctx, session, pkg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		class := ClassTransport
		if errors.Is(err, gplay.ErrNotFound) {
			class = ClassNotFound
		}
		r.logger.Warn("details lookup failed, treating as not found", map[string]any{
			"package":     pkg,
			"error_class": class,
			"error":       err.Error(),
		})
		return nil, ErrNotFound
	}
	if meta == nil {
		return nil, ErrNotFound
	}

	if version != "" && version != meta.VersionName {
		r.logger.Info("version mismatch", map[string]any{
			"package":   pkg,
			"requested": version,
			"available": meta.VersionName,
		})
		return nil, ErrNotFound
	}
	if !meta.Free {
		r.logger.Info("package is not free", map[string]any{"package": pkg})
		return nil, ErrNotFound
	}

	fragments := withURL(meta.Fragments)
	if len(fragments) == 0 {
		purchased, err := r.catalog.Purchase(ctx, session, pkg, meta.VersionCode, meta.OfferType)
		if err != nil {
			return nil, fmt.Errorf("resolver: purchase %s: %w", pkg, err)
		}
		fragments = withURL(purchased)
	}

	return &types.App{
		PackageName: pkg,
		Version:     meta.VersionName,
		VersionCode: meta.VersionCode,
		Fragments:   fragments,
	}, nil
}

// withURL drops fragments without a download location.
func withURL(in []types.Fragment) []types.Fragment {
	out := make([]types.Fragment, 0, len(in))
	for _, f := range in {
		if f.URL != "" {
			out = append(out, f)
		}
	}
	return out
}
