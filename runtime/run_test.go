package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/playdl/adapter"
	"github.com/pithecene-io/playdl/assemble"
	"github.com/pithecene-io/playdl/broker"
	"github.com/pithecene-io/playdl/ledger"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/resolver"
	"github.com/pithecene-io/playdl/types"
)

type fakeResolver struct {
	app *types.App
	err error

	mu      sync.Mutex
	version string
}

func (f *fakeResolver) Resolve(_ context.Context, pkg, version string) (*types.App, error) {
	f.mu.Lock()
	f.version = version
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	app := *f.app
	app.PackageName = pkg
	return &app, nil
}

// fakeAssembler writes a fixed payload to dest.
type fakeAssembler struct {
	payload []byte
	err     error
	calls   int
	dest    string
}

func (f *fakeAssembler) Assemble(_ context.Context, fragments []types.Fragment, dest string) (*assemble.Result, error) {
	f.calls++
	f.dest = dest
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(dest, f.payload, 0o644); err != nil {
		return nil, err
	}
	return &assemble.Result{
		Path:      dest,
		Size:      int64(len(f.payload)),
		SHA256:    "cafe",
		Merged:    len(fragments) > 1,
		Fragments: len(fragments),
	}, nil
}

type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.FetchCompletedEvent
	err    error
}

func (a *recordingAdapter) Publish(_ context.Context, e *adapter.FetchCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return a.err
}

func (a *recordingAdapter) Close() error { return nil }

type failingRecorder struct{ err error }

func (r failingRecorder) Append(context.Context, ledger.Record) error { return r.err }

func (r failingRecorder) PutArtifact(context.Context, ledger.Record, string) (string, error) {
	return "", r.err
}

func testApp() *types.App {
	return &types.App{
		Version:     "1.2.3",
		VersionCode: 123,
		Fragments: []types.Fragment{
			{Name: "base.apk", URL: "https://dl.example/base", Size: 4, Type: types.FragmentBase},
			{Name: "config.arm64_v8a.apk", URL: "https://dl.example/arm", Size: 4, Type: types.FragmentSplit},
		},
	}
}

func newMemoryLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	store := lode.NewMemory()
	l, err := ledger.NewWithFactory("playdl", "memory", func() (lode.Store, error) { return store, nil })
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}
	return l
}

func TestNewFetchOrchestrator_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config FetchConfig
	}{
		{"no package", FetchConfig{Resolver: &fakeResolver{}, Assembler: &fakeAssembler{}}},
		{"no resolver", FetchConfig{Package: "a", Assembler: &fakeAssembler{}}},
		{"no assembler", FetchConfig{Package: "a", Resolver: &fakeResolver{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFetchOrchestrator(&tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFetchOrchestrator_Success(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	l := newMemoryLedger(t)
	ad := &recordingAdapter{}
	res := &fakeResolver{app: testApp()}
	asm := &fakeAssembler{payload: []byte("PK\x03\x04")}
	collector := metrics.NewCollector("file", "memory", "inv-1")

	orch, err := NewFetchOrchestrator(&FetchConfig{
		InvocationID:  "inv-1",
		Package:       "com.example.app",
		Version:       "1.2.3",
		Out:           dir,
		Resolver:      res,
		Assembler:     asm,
		Ledger:        l,
		KeepArtifacts: true,
		Adapter:       ad,
		Collector:     collector,
	})
	if err != nil {
		t.Fatalf("NewFetchOrchestrator failed: %v", err)
	}

	result, err := orch.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Outcome.OK() {
		t.Fatalf("Outcome = %+v, want completed", result.Outcome)
	}
	if res.version != "1.2.3" {
		t.Errorf("resolver version = %q, want 1.2.3", res.version)
	}
	wantDest := filepath.Join(dir, "com.example.app.apk")
	if asm.dest != wantDest {
		t.Errorf("dest = %q, want %q", asm.dest, wantDest)
	}
	if result.ArtifactKey == "" {
		t.Error("ArtifactKey is empty, want artifact copied")
	}

	if result.Metrics.FetchesStarted != 1 || result.Metrics.FetchesCompleted != 1 {
		t.Errorf("fetch counters = %d/%d, want 1/1", result.Metrics.FetchesStarted, result.Metrics.FetchesCompleted)
	}
	if result.Metrics.LedgerWriteSuccess != 1 {
		t.Errorf("LedgerWriteSuccess = %d, want 1", result.Metrics.LedgerWriteSuccess)
	}

	recs, err := l.History(ctx, ledger.Query{Package: "com.example.app"})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Outcome != ledger.OutcomeCompleted || rec.Version != "1.2.3" || rec.VersionCode != 123 {
		t.Errorf("record = %+v", rec)
	}
	if !rec.Merged || rec.Fragments != 2 || rec.Size != 4 {
		t.Errorf("record artifact fields = merged %v fragments %d size %d", rec.Merged, rec.Fragments, rec.Size)
	}
	if rec.ArtifactKey != result.ArtifactKey {
		t.Errorf("record ArtifactKey = %q, want %q", rec.ArtifactKey, result.ArtifactKey)
	}
	if rec.InvocationID != "inv-1" {
		t.Errorf("record InvocationID = %q, want inv-1", rec.InvocationID)
	}

	if len(ad.events) != 1 {
		t.Fatalf("got %d events, want 1", len(ad.events))
	}
	ev := ad.events[0]
	if ev.EventType != adapter.EventTypeFetchCompleted || ev.Outcome != "completed" || ev.Path != wantDest {
		t.Errorf("event = %+v", ev)
	}
}

func TestFetchOrchestrator_NotFoundSkipsAssembly(t *testing.T) {
	asm := &fakeAssembler{}
	ad := &recordingAdapter{}
	l := newMemoryLedger(t)

	orch, err := NewFetchOrchestrator(&FetchConfig{
		Package:   "com.example.missing",
		Out:       filepath.Join(t.TempDir(), "out.apk"),
		Resolver:  &fakeResolver{err: resolver.ErrNotFound},
		Assembler: asm,
		Ledger:    l,
		Adapter:   ad,
	})
	if err != nil {
		t.Fatalf("NewFetchOrchestrator failed: %v", err)
	}
	result, err := orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if asm.calls != 0 {
		t.Errorf("assembler called %d times, want 0", asm.calls)
	}
	if result.Outcome.ExitCode != ExitCodeNotFound {
		t.Errorf("ExitCode = %d, want %d", result.Outcome.ExitCode, ExitCodeNotFound)
	}
	if !errors.Is(result.Err, resolver.ErrNotFound) {
		t.Errorf("Err = %v, want ErrNotFound", result.Err)
	}

	recs, err := l.History(t.Context(), ledger.Query{Outcome: ledger.OutcomeNotFound})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(recs) != 1 || recs[0].Error != resolver.ErrNotFound.Error() {
		t.Errorf("records = %+v", recs)
	}
	if len(ad.events) != 1 || ad.events[0].Outcome != "not_found" {
		t.Errorf("events = %+v", ad.events)
	}
}

func TestFetchOrchestrator_AuthFailure(t *testing.T) {
	collector := metrics.NewCollector("file", "fs", "inv")
	orch, err := NewFetchOrchestrator(&FetchConfig{
		Package:   "com.example.app",
		Out:       filepath.Join(t.TempDir(), "out.apk"),
		Resolver:  &fakeResolver{err: &broker.AuthError{Message: "token revoked"}},
		Assembler: &fakeAssembler{},
		Collector: collector,
	})
	if err != nil {
		t.Fatalf("NewFetchOrchestrator failed: %v", err)
	}
	result, err := orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Outcome.ExitCode != ExitCodeAuthFailed {
		t.Errorf("ExitCode = %d, want %d", result.Outcome.ExitCode, ExitCodeAuthFailed)
	}
	if result.Metrics.FetchesFailed != 1 || result.Metrics.ErrorsByClass[ClassAuth] != 1 {
		t.Errorf("metrics = %+v", result.Metrics)
	}
}

func TestFetchOrchestrator_LedgerFailureKeepsOutcome(t *testing.T) {
	ad := &recordingAdapter{err: errors.New("webhook down")}
	collector := metrics.NewCollector("file", "fs", "inv")
	orch, err := NewFetchOrchestrator(&FetchConfig{
		Package:       "com.example.app",
		Out:           filepath.Join(t.TempDir(), "out.apk"),
		Resolver:      &fakeResolver{app: testApp()},
		Assembler:     &fakeAssembler{payload: []byte("data")},
		Ledger:        failingRecorder{err: &ledger.StorageError{Kind: ledger.ErrDiskFull, Op: "write", Err: errors.New("no space left on device")}},
		KeepArtifacts: true,
		Adapter:       ad,
		Collector:     collector,
	})
	if err != nil {
		t.Fatalf("NewFetchOrchestrator failed: %v", err)
	}
	result, err := orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Outcome.OK() {
		t.Errorf("Outcome = %+v, want completed", result.Outcome)
	}
	if result.ArtifactKey != "" {
		t.Errorf("ArtifactKey = %q, want empty", result.ArtifactKey)
	}
	if result.Metrics.LedgerWriteFailure != 2 {
		t.Errorf("LedgerWriteFailure = %d, want 2", result.Metrics.LedgerWriteFailure)
	}
	if len(ad.events) != 1 {
		t.Errorf("got %d events, want 1 despite publish error", len(ad.events))
	}
}

func TestFetchOrchestrator_CanceledStillRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	l := newMemoryLedger(t)

	orch, err := NewFetchOrchestrator(&FetchConfig{
		Package:   "com.example.app",
		Out:       filepath.Join(t.TempDir(), "out.apk"),
		Resolver:  &fakeResolver{err: context.Canceled},
		Assembler: &fakeAssembler{},
		Ledger:    l,
	})
	if err != nil {
		t.Fatalf("NewFetchOrchestrator failed: %v", err)
	}
	result, err := orch.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Outcome.Class != ClassCanceled {
		t.Errorf("Class = %q, want %q", result.Outcome.Class, ClassCanceled)
	}

	recs, err := l.History(t.Context(), ledger.Query{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(recs) != 1 || recs[0].ErrorClass != ClassCanceled {
		t.Errorf("records = %+v", recs)
	}
}

func TestDestPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "existing.apk")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		out  string
		want string
	}{
		{"empty", "", "com.example.app.apk"},
		{"directory", dir, filepath.Join(dir, "com.example.app.apk")},
		{"existing file", file, file},
		{"new file", filepath.Join(dir, "new.apk"), filepath.Join(dir, "new.apk")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DestPath(tt.out, "com.example.app")
			if err != nil {
				t.Fatalf("DestPath failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("DestPath = %q, want %q", got, tt.want)
			}
		})
	}
}
