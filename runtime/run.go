// Package runtime orchestrates one fetch end to end: resolve the package
// through the credential broker, download and assemble it, then record the
// outcome in the ledger and notify the configured adapter.
package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/pithecene-io/playdl/adapter"
	"github.com/pithecene-io/playdl/assemble"
	"github.com/pithecene-io/playdl/ledger"
	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/types"
)

// finalizeTimeout bounds ledger writes and adapter publishes after the
// fetch itself has finished or been canceled.
const finalizeTimeout = 30 * time.Second

// Resolver abstracts package resolution for testing.
type Resolver interface {
	Resolve(ctx context.Context, pkg, version string) (*types.App, error)
}

// Assembler abstracts the download pipeline for testing.
type Assembler interface {
	Assemble(ctx context.Context, fragments []types.Fragment, dest string) (*assemble.Result, error)
}

// Recorder is the ledger surface the orchestrator writes to.
type Recorder interface {
	Append(ctx context.Context, rec ledger.Record) error
	PutArtifact(ctx context.Context, rec ledger.Record, src string) (string, error)
}

// FetchConfig configures a single fetch.
type FetchConfig struct {
	// InvocationID correlates logs, the ledger record and the event.
	InvocationID string
	// Package is the package id to fetch.
	Package string
	// Version pins the expected version name. Empty accepts any.
	Version string
	// Out is the destination file, or a directory to place <package>.apk in.
	Out string

	Resolver  Resolver
	Assembler Assembler
	// Ledger is optional. If nil, nothing is recorded.
	Ledger Recorder
	// KeepArtifacts copies the written package into the ledger store.
	KeepArtifacts bool
	// Adapter is optional. If nil, no event is published.
	Adapter adapter.Adapter
	// Collector is optional; all Collector methods are nil-safe.
	Collector *metrics.Collector
	Logger    *log.Logger
}

// FetchResult is the result of one fetch.
type FetchResult struct {
	InvocationID string
	Package      string
	App          *types.App
	Assembled    *assemble.Result
	Outcome      Outcome
	// Err is the error the fetch ended with, nil on success.
	Err         error
	ArtifactKey string
	Duration    time.Duration
	Metrics     metrics.Snapshot
}

// FetchOrchestrator runs one fetch.
type FetchOrchestrator struct {
	config *FetchConfig
	logger *log.Logger
}

// NewFetchOrchestrator validates config and creates an orchestrator.
func NewFetchOrchestrator(config *FetchConfig) (*FetchOrchestrator, error) {
	switch {
	case config.Package == "":
		return nil, errors.New("fetch: package is required")
	case config.Resolver == nil:
		return nil, errors.New("fetch: resolver is required")
	case config.Assembler == nil:
		return nil, errors.New("fetch: assembler is required")
	}
	logger := log.OrNop(config.Logger).Named("fetch").With(map[string]any{
		"package": config.Package,
	})
	return &FetchOrchestrator{config: config, logger: logger}, nil
}

// Execute runs the fetch and its bookkeeping. The returned error is
// reserved for setup failures; fetch failures are reported through the
// result's Outcome and Err.
//
// Execution flow:
//  1. Resolve the package (credential, metadata, purchase)
//  2. Assemble it at the destination
//  3. Classify the outcome
//  4. Copy the artifact and append the ledger record (best effort)
//  5. Publish the completion event (best effort)
func (r *FetchOrchestrator) Execute(ctx context.Context) (*FetchResult, error) {
	start := time.Now()
	c := r.config
	c.Collector.IncFetchStarted()

	dest, err := DestPath(c.Out, c.Package)
	if err != nil {
		return nil, err
	}

	r.logger.Info("starting fetch", map[string]any{
		"version": c.Version,
		"out":     dest,
	})

	result := &FetchResult{InvocationID: c.InvocationID, Package: c.Package}
	result.App, result.Err = c.Resolver.Resolve(ctx, c.Package, c.Version)
	if result.Err == nil {
		r.logger.Info("package resolved", map[string]any{
			"version":    result.App.Version,
			"fragments":  len(result.App.Fragments),
			"total_size": result.App.TotalSize(),
		})
		result.Assembled, result.Err = c.Assembler.Assemble(ctx, result.App.Fragments, dest)
	}

	result.Outcome = DetermineOutcome(result.Err)
	result.Duration = time.Since(start)
	r.count(result.Outcome)

	fields := map[string]any{
		"outcome":     result.Outcome.Status,
		"exit_code":   result.Outcome.ExitCode,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Outcome.OK() {
		r.logger.Info("fetch completed", fields)
	} else {
		fields["error_class"] = result.Outcome.Class
		fields["error"] = result.Outcome.Message
		r.logger.Error("fetch failed", fields)
	}

	// Bookkeeping runs even when ctx was canceled; WithoutCancel keeps
	// context values while ignoring the parent's cancellation.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	rec := r.record(fctx, result)
	r.publish(fctx, BuildEvent(rec))

	result.Metrics = c.Collector.Snapshot()
	return result, nil
}

func (r *FetchOrchestrator) count(o Outcome) {
	switch o.Status {
	case ledger.OutcomeCompleted:
		r.config.Collector.IncFetchCompleted()
	case ledger.OutcomeNotFound:
		r.config.Collector.IncFetchNotFound()
	default:
		r.config.Collector.IncFetchFailed(o.Class)
	}
}

// record writes the artifact copy and the ledger record. Failures are
// logged and counted but never change the fetch outcome.
func (r *FetchOrchestrator) record(ctx context.Context, result *FetchResult) ledger.Record {
	c := r.config
	snap := c.Collector.Snapshot()
	rec := BuildRecord(result, &snap)
	if c.Ledger == nil {
		return rec
	}

	if c.KeepArtifacts && result.Assembled != nil {
		key, err := c.Ledger.PutArtifact(ctx, rec, result.Assembled.Path)
		if err != nil {
			r.ledgerFailure("artifact copy failed", err)
		} else {
			rec.ArtifactKey = key
			result.ArtifactKey = key
			r.logger.Info("artifact copied", map[string]any{"key": key})
		}
	}

	if err := c.Ledger.Append(ctx, rec); err != nil {
		r.ledgerFailure("ledger append failed", err)
		return rec
	}
	c.Collector.IncLedgerWriteSuccess()
	return rec
}

func (r *FetchOrchestrator) ledgerFailure(msg string, err error) {
	r.config.Collector.IncLedgerWriteFailure()
	fields := map[string]any{"error": err.Error()}
	var se *ledger.StorageError
	if errors.As(err, &se) {
		fields["error_class"] = se.Class()
	}
	r.logger.Warn(msg, fields)
}

func (r *FetchOrchestrator) publish(ctx context.Context, event *adapter.FetchCompletedEvent) {
	if r.config.Adapter == nil {
		return
	}
	if err := r.config.Adapter.Publish(ctx, event); err != nil {
		r.logger.Warn("adapter publish failed", map[string]any{"error": err.Error()})
		return
	}
	r.logger.Debug("adapter event published", map[string]any{"event_type": event.EventType})
}

// DestPath resolves the output location. An empty out or an existing
// directory yields <package>.apk inside it; anything else is used as is.
func DestPath(out, pkg string) (string, error) {
	name := pkg + ".apk"
	if out == "" {
		return name, nil
	}
	info, err := os.Stat(out)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(out, name), nil
	case err == nil, errors.Is(err, os.ErrNotExist):
		return out, nil
	default:
		return "", err
	}
}
