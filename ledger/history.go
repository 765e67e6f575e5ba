package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// Query filters History results. Zero values match everything.
type Query struct {
	Package string
	Outcome Outcome
	// Limit caps the number of records returned; 0 means no cap.
	Limit int
}

// History returns matching records, newest snapshot first.
func (l *Ledger) History(ctx context.Context, q Query) ([]Record, error) {
	snapshots, err := l.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", l.datasetID+"/snapshots", err)
	}

	var out []Record
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "package", q.Package) {
			continue
		}

		data, err := l.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("%s/snapshot/%s", l.datasetID, snap.ID), err)
		}

		// Manifest paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindFetch {
				continue
			}
			rec, err := fromRecordMap(m)
			if err != nil {
				return nil, wrap("read", fmt.Sprintf("%s/snapshot/%s", l.datasetID, snap.ID), err)
			}
			if q.Package != "" && rec.Package != q.Package {
				continue
			}
			if q.Outcome != "" && rec.Outcome != q.Outcome {
				continue
			}
			out = append(out, rec)
			if q.Limit > 0 && len(out) >= q.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// snapshotMatchesFilter checks if any file in the snapshot sits under
// the key=value partition.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue reports whether a hive path contains the exact
// key=value segment (pkg=a.b must not match pkg=a.bc).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
