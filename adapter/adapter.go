// Package adapter defines the completion-notification boundary.
//
// Adapters publish fetch completion events to downstream systems
// (webhook, redis). The CLI owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeFetchCompleted is the event_type of every published event.
const EventTypeFetchCompleted = "fetch_completed"

// FetchCompletedEvent is the payload published when a fetch finishes,
// successfully or not.
type FetchCompletedEvent struct {
	EventType    string `json:"event_type"` // always "fetch_completed"
	InvocationID string `json:"invocation_id"`
	Package      string `json:"package"`
	Version      string `json:"version,omitempty"`
	VersionCode  int64  `json:"version_code,omitempty"`
	Outcome      string `json:"outcome"` // completed, not_found, failed
	ErrorClass   string `json:"error_class,omitempty"`
	Path         string `json:"path,omitempty"`
	ArtifactKey  string `json:"artifact_key,omitempty"`
	Size         int64  `json:"size"`
	SHA256       string `json:"sha256,omitempty"`
	Merged       bool   `json:"merged"`
	Fragments    int    `json:"fragments"`
	Timestamp    string `json:"timestamp"` // RFC 3339
	DurationMs   int64  `json:"duration_ms"`
}

// Adapter publishes fetch completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *FetchCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry; it doubles per attempt.
var BaseBackoff = 500 * time.Millisecond

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. A nil error ends the loop; so does an error for which
// permanent reports true. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
