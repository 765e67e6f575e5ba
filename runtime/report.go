package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/playdl/adapter"
	"github.com/pithecene-io/playdl/ledger"
	"github.com/pithecene-io/playdl/metrics"
)

// FetchReport is the structured JSON report written by --report.
type FetchReport struct {
	InvocationID string         `json:"invocation_id"`
	Package      string         `json:"package"`
	Version      string         `json:"version,omitempty"`
	Outcome      ledger.Outcome `json:"outcome"`
	ErrorClass   string         `json:"error_class,omitempty"`
	Message      string         `json:"message"`
	ExitCode     int            `json:"exit_code"`
	DurationMs   int64          `json:"duration_ms"`

	Artifact *ReportArtifact   `json:"artifact,omitempty"`
	Metrics  *metrics.Snapshot `json:"metrics"`
}

// ReportArtifact describes the written package in the report.
type ReportArtifact struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	Merged      bool   `json:"merged"`
	Fragments   int    `json:"fragments"`
	ArtifactKey string `json:"artifact_key,omitempty"`
}

// BuildFetchReport composes a FetchReport from a FetchResult.
func BuildFetchReport(result *FetchResult) *FetchReport {
	snap := result.Metrics
	report := &FetchReport{
		InvocationID: result.InvocationID,
		Package:      result.Package,
		Outcome:      result.Outcome.Status,
		ErrorClass:   result.Outcome.Class,
		Message:      result.Outcome.Message,
		ExitCode:     result.Outcome.ExitCode,
		DurationMs:   result.Duration.Milliseconds(),
		Metrics:      &snap,
	}
	if result.App != nil {
		report.Version = result.App.Version
	}
	if a := result.Assembled; a != nil {
		report.Artifact = &ReportArtifact{
			Path:        a.Path,
			Size:        a.Size,
			SHA256:      a.SHA256,
			Merged:      a.Merged,
			Fragments:   a.Fragments,
			ArtifactKey: result.ArtifactKey,
		}
	}
	return report
}

// BuildRecord composes the ledger record of a fetch.
func BuildRecord(result *FetchResult, snap *metrics.Snapshot) ledger.Record {
	rec := ledger.Record{
		RecordKind:   ledger.RecordKindFetch,
		InvocationID: result.InvocationID,
		Package:      result.Package,
		Outcome:      result.Outcome.Status,
		ErrorClass:   result.Outcome.Class,
		DurationMS:   result.Duration.Milliseconds(),
		Metrics:      snap,
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}
	if result.App != nil {
		rec.Version = result.App.Version
		rec.VersionCode = result.App.VersionCode
	}
	if a := result.Assembled; a != nil {
		rec.Fragments = a.Fragments
		rec.Merged = a.Merged
		rec.Size = a.Size
		rec.SHA256 = a.SHA256
		rec.Path = a.Path
	} else if result.App != nil {
		rec.Fragments = len(result.App.Fragments)
	}
	return rec
}

// BuildEvent composes the completion event published for a record.
func BuildEvent(rec ledger.Record) *adapter.FetchCompletedEvent {
	ts := rec.Ts
	if ts.IsZero() {
		ts = time.Now()
	}
	return &adapter.FetchCompletedEvent{
		EventType:    adapter.EventTypeFetchCompleted,
		InvocationID: rec.InvocationID,
		Package:      rec.Package,
		Version:      rec.Version,
		VersionCode:  rec.VersionCode,
		Outcome:      string(rec.Outcome),
		ErrorClass:   rec.ErrorClass,
		Path:         rec.Path,
		ArtifactKey:  rec.ArtifactKey,
		Size:         rec.Size,
		SHA256:       rec.SHA256,
		Merged:       rec.Merged,
		Fragments:    rec.Fragments,
		Timestamp:    ts.UTC().Format(time.RFC3339),
		DurationMs:   rec.DurationMS,
	}
}

// WriteFetchReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteFetchReport(report *FetchReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeFetchReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeFetchReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeFetchReportTo(report *FetchReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
