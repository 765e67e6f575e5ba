package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/playdl/metrics"
)

// RecordKindFetch discriminates fetch records from other record kinds.
const RecordKindFetch = "fetch"

// dayFormat is the layout of the "day" partition key.
const dayFormat = "2006-01-02"

// Outcome is the terminal state of one fetch.
type Outcome string

// Fetch outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeFailed    Outcome = "failed"
)

// Record is one fetch attempt as stored in the ledger.
// Partitioned by package and day.
type Record struct {
	RecordKind   string            `json:"record_kind"`
	InvocationID string            `json:"invocation_id"`
	Package      string            `json:"package"`
	Day          string            `json:"day"`
	Version      string            `json:"version,omitempty"`
	VersionCode  int64             `json:"version_code,omitempty"`
	Outcome      Outcome           `json:"outcome"`
	ErrorClass   string            `json:"error_class,omitempty"`
	Error        string            `json:"error,omitempty"`
	Fragments    int               `json:"fragments"`
	Merged       bool              `json:"merged"`
	Size         int64             `json:"size"`
	SHA256       string            `json:"sha256,omitempty"`
	Path         string            `json:"path,omitempty"`
	ArtifactKey  string            `json:"artifact_key,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
	Ts           time.Time         `json:"ts"`
	Metrics      *metrics.Snapshot `json:"metrics,omitempty"`
}

// toRecordMap converts a Record to the map form the hive layout requires.
func toRecordMap(r Record) map[string]any {
	m := map[string]any{
		"record_kind":   RecordKindFetch,
		"invocation_id": r.InvocationID,
		"package":       r.Package, // partition key
		"day":           r.Day,     // partition key
		"outcome":       string(r.Outcome),
		"fragments":     r.Fragments,
		"merged":        r.Merged,
		"size":          r.Size,
		"duration_ms":   r.DurationMS,
		"ts":            r.Ts.UTC().Format(time.RFC3339Nano),
	}
	if r.Version != "" {
		m["version"] = r.Version
	}
	if r.VersionCode != 0 {
		m["version_code"] = r.VersionCode
	}
	if r.ErrorClass != "" {
		m["error_class"] = r.ErrorClass
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.SHA256 != "" {
		m["sha256"] = r.SHA256
	}
	if r.Path != "" {
		m["path"] = r.Path
	}
	if r.ArtifactKey != "" {
		m["artifact_key"] = r.ArtifactKey
	}
	if r.Metrics != nil {
		m["metrics"] = r.Metrics
	}
	return m
}

// fromRecordMap decodes a stored map back into a Record.
func fromRecordMap(m map[string]any) (Record, error) {
	var r Record
	b, err := json.Marshal(m)
	if err != nil {
		return r, fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
