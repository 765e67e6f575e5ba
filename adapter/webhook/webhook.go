// Package webhook implements an HTTP POST completion adapter.
//
// Events are POSTed as JSON. Every request carries the event type and the
// invocation id (also as Idempotency-Key, stable across retries); with a
// secret configured the body is signed with HMAC-SHA256.
// 5xx, 429 and network errors are retried; other 4xx fail immediately.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/playdl/adapter"
	"github.com/pithecene-io/playdl/iox"
)

const (
	// DefaultTimeout bounds one request.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 3
)

// Request headers.
const (
	HeaderEvent       = "X-Playdl-Event"
	HeaderInvocation  = "X-Playdl-Invocation"
	HeaderSignature   = "X-Playdl-Signature"
	HeaderIdempotency = "Idempotency-Key"
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the endpoint to POST to (required).
	URL string
	// Headers are added to every request after the built-in ones.
	Headers map[string]string
	// Secret, when set, signs the body: X-Playdl-Signature: sha256=<hex>.
	Secret  string
	Timeout time.Duration
	Retries int
	// Transport overrides the HTTP transport (proxy pools).
	Transport http.RoundTripper
}

// Adapter publishes fetch completion events via HTTP POST.
type Adapter struct {
	config Config
	client *http.Client
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
	}, nil
}

// Publish POSTs the event.
func (a *Adapter) Publish(ctx context.Context, event *adapter.FetchCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	headers := a.headers(event, body)
	return adapter.Retry(ctx, "webhook", a.config.Retries, isPermanent, func(ctx context.Context) error {
		return a.post(ctx, body, headers)
	})
}

// Sign returns the signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) headers(event *adapter.FetchCompletedEvent, body []byte) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderEvent, event.EventType)
	if event.InvocationID != "" {
		h.Set(HeaderInvocation, event.InvocationID)
		h.Set(HeaderIdempotency, event.InvocationID)
	}
	if a.config.Secret != "" {
		h.Set(HeaderSignature, Sign(a.config.Secret, body))
	}
	for k, v := range a.config.Headers {
		h.Set(k, v)
	}
	return h
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func isPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

func (a *Adapter) post(ctx context.Context, body []byte, headers http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
