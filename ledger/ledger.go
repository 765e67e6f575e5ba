// Package ledger records fetch attempts in a lode dataset.
//
// Records are JSONL, hive-partitioned by package and day, on the
// filesystem or S3. Artifacts can be copied into the same store next to
// the dataset. History reads snapshots back, newest first.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/playdl/iox"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "playdl"

// Ledger appends fetch records and artifact copies to a lode store.
type Ledger struct {
	dataset   lode.Dataset
	datasetID string
	backend   string

	factory   lode.StoreFactory
	storeOnce sync.Once
	store     lode.Store
	storeErr  error

	now func() time.Time
}

// NewFS creates a ledger rooted at a local directory.
func NewFS(dataset, root string) (*Ledger, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrap("init", root, err)
	}
	return NewWithFactory(dataset, "fs", lode.NewFSFactory(root))
}

// NewWithFactory creates a ledger over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewWithFactory(dataset, backend string, factory lode.StoreFactory) (*Ledger, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return &Ledger{
		dataset:   ds,
		datasetID: dataset,
		backend:   backend,
		factory:   factory,
		now:       time.Now,
	}, nil
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout("package", "day"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Backend names the storage backend ("fs", "s3", ...).
func (l *Ledger) Backend() string {
	return l.backend
}

// Append writes one record as its own snapshot.
// Zero Ts and Day are filled from the clock.
func (l *Ledger) Append(ctx context.Context, rec Record) error {
	if rec.Package == "" {
		return errors.New("ledger: record package is required")
	}
	if rec.Ts.IsZero() {
		rec.Ts = l.now()
	}
	if rec.Day == "" {
		rec.Day = rec.Ts.UTC().Format(dayFormat)
	}
	_, err := l.dataset.Write(ctx, []any{toRecordMap(rec)}, lode.Metadata{})
	return wrap("write", l.recordPath(rec), err)
}

// PutArtifact copies the file at src into the store and returns its key.
// Format: datasets/<dataset>/artifacts/package=<p>/version=<v>/<sha256>.apk
func (l *Ledger) PutArtifact(ctx context.Context, rec Record, src string) (string, error) {
	if rec.Package == "" || rec.SHA256 == "" {
		return "", errors.New("ledger: artifact needs package and sha256")
	}
	store, err := l.getOrCreateStore()
	if err != nil {
		return "", wrap("init", l.datasetID, err)
	}

	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer iox.DiscardClose(f)

	key := l.artifactKey(rec)
	if err := store.Put(ctx, key, f); err != nil {
		return "", wrap("put", key, err)
	}
	return key, nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (l *Ledger) getOrCreateStore() (lode.Store, error) {
	l.storeOnce.Do(func() {
		l.store, l.storeErr = l.factory()
	})
	return l.store, l.storeErr
}

func (l *Ledger) artifactKey(rec Record) string {
	version := rec.Version
	if version == "" {
		version = "unknown"
	}
	return fmt.Sprintf("datasets/%s/artifacts/package=%s/version=%s/%s.apk",
		l.datasetID, rec.Package, version, rec.SHA256)
}

func (l *Ledger) recordPath(rec Record) string {
	return fmt.Sprintf("%s/package=%s/day=%s", l.datasetID, rec.Package, rec.Day)
}
