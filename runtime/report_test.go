package runtime

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/playdl/assemble"
	"github.com/pithecene-io/playdl/ledger"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/resolver"
	"github.com/pithecene-io/playdl/types"
)

func newTestFetchResult() *FetchResult {
	return &FetchResult{
		InvocationID: "inv-001",
		Package:      "com.example.app",
		App:          &types.App{PackageName: "com.example.app", Version: "2.0", VersionCode: 200},
		Assembled: &assemble.Result{
			Path:      "/tmp/com.example.app.apk",
			Size:      524288,
			SHA256:    "abcd",
			Merged:    true,
			Fragments: 3,
		},
		Outcome:     DetermineOutcome(nil),
		ArtifactKey: "datasets/playdl/artifacts/package=com.example.app/version=2.0/abcd.apk",
		Duration:    5 * time.Second,
		Metrics: metrics.Snapshot{
			FetchesStarted:   1,
			FetchesCompleted: 1,
			Merges:           1,
			StorageBackend:   "fs",
			InvocationID:     "inv-001",
		},
	}
}

func TestBuildFetchReport_Success(t *testing.T) {
	report := BuildFetchReport(newTestFetchResult())

	if report.InvocationID != "inv-001" {
		t.Errorf("InvocationID = %q, want inv-001", report.InvocationID)
	}
	if report.Outcome != ledger.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", report.Outcome)
	}
	if report.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", report.ExitCode)
	}
	if report.DurationMs != 5000 {
		t.Errorf("DurationMs = %d, want 5000", report.DurationMs)
	}
	if report.Version != "2.0" {
		t.Errorf("Version = %q, want 2.0", report.Version)
	}
	if report.Artifact == nil {
		t.Fatal("Artifact is nil")
	}
	if report.Artifact.Fragments != 3 || !report.Artifact.Merged || report.Artifact.ArtifactKey == "" {
		t.Errorf("Artifact = %+v", report.Artifact)
	}
	if report.Metrics.Merges != 1 {
		t.Errorf("Metrics.Merges = %d, want 1", report.Metrics.Merges)
	}
}

func TestBuildFetchReport_NotFoundOmitsArtifact(t *testing.T) {
	result := newTestFetchResult()
	result.App = nil
	result.Assembled = nil
	result.Err = resolver.ErrNotFound
	result.Outcome = DetermineOutcome(result.Err)

	report := BuildFetchReport(result)
	if report.ExitCode != ExitCodeNotFound {
		t.Errorf("ExitCode = %d, want %d", report.ExitCode, ExitCodeNotFound)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	for _, key := range []string{"artifact", "version"} {
		if _, exists := raw[key]; exists {
			t.Errorf("%s should be omitted", key)
		}
	}
	if raw["error_class"] != ClassNotFound {
		t.Errorf("error_class = %v, want %q", raw["error_class"], ClassNotFound)
	}
}

func TestBuildRecordAndEvent(t *testing.T) {
	result := newTestFetchResult()
	snap := result.Metrics
	rec := BuildRecord(result, &snap)

	if rec.RecordKind != ledger.RecordKindFetch {
		t.Errorf("RecordKind = %q", rec.RecordKind)
	}
	if rec.VersionCode != 200 || rec.SHA256 != "abcd" || rec.Path != "/tmp/com.example.app.apk" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Metrics == nil || rec.Metrics.InvocationID != "inv-001" {
		t.Errorf("record metrics = %+v", rec.Metrics)
	}

	rec.Ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.ArtifactKey = "k"
	ev := BuildEvent(rec)
	if ev.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("Timestamp = %q", ev.Timestamp)
	}
	if ev.ArtifactKey != "k" || ev.VersionCode != 200 || ev.DurationMs != 5000 {
		t.Errorf("event = %+v", ev)
	}
}

func TestBuildRecord_ResolvedButNotAssembled(t *testing.T) {
	result := newTestFetchResult()
	result.App.Fragments = []types.Fragment{{Name: "a"}, {Name: "b"}}
	result.Assembled = nil
	result.Err = assemble.ErrNoFragments
	result.Outcome = DetermineOutcome(result.Err)

	rec := BuildRecord(result, nil)
	if rec.Fragments != 2 {
		t.Errorf("Fragments = %d, want 2", rec.Fragments)
	}
	if rec.Error == "" || rec.ErrorClass != ClassInvalid {
		t.Errorf("Error = %q class = %q", rec.Error, rec.ErrorClass)
	}
}

func TestWriteFetchReport_File(t *testing.T) {
	report := BuildFetchReport(newTestFetchResult())
	path := filepath.Join(t.TempDir(), "report.json")

	if err := WriteFetchReport(report, path); err != nil {
		t.Fatalf("WriteFetchReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var parsed FetchReport
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Package != "com.example.app" {
		t.Errorf("Package = %q", parsed.Package)
	}
}

func TestWriteFetchReport_EmptyPath(t *testing.T) {
	if err := WriteFetchReport(&FetchReport{}, ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestWriteFetchReportTo_TrailingNewline(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFetchReportTo(BuildFetchReport(newTestFetchResult()), &buf); err != nil {
		t.Fatalf("writeFetchReportTo failed: %v", err)
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("}\n")) {
		t.Errorf("report should end with a newline, got %q", buf.String()[buf.Len()-5:])
	}
}
