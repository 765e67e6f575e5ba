package gplay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/pithecene-io/playdl/iox"
	"github.com/pithecene-io/playdl/log"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 30 * time.Second

// maxBody caps response bodies read into memory.
const maxBody = 16 << 20

// ErrNotFound is returned when the service has no entry for a package.
var ErrNotFound = errors.New("gplay: not found")

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Endpoint string
	Code     int
	// Body is the start of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("gplay: %s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
	}
	return fmt.Sprintf("gplay: %s: unexpected status %d", e.Endpoint, e.Code)
}

// Endpoints holds the service base URLs. Zero fields use the defaults.
type Endpoints struct {
	Auth    string
	Checkin string
	FDFE    string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.Auth == "" {
		e.Auth = DefaultAuthURL
	}
	if e.Checkin == "" {
		e.Checkin = DefaultCheckinURL
	}
	if e.FDFE == "" {
		e.FDFE = DefaultFDFEURL
	}
	e.FDFE = strings.TrimRight(e.FDFE, "/")
	return e
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithEndpoints overrides the service base URLs.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e.withDefaults() }
}

// WithLocale sets the locale reported to the service.
func WithLocale(tag language.Tag) Option {
	return func(c *Client) { c.locale = tag }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = log.OrNop(l) }
}

// Client talks to the service. Safe for concurrent use.
type Client struct {
	http      *http.Client
	endpoints Endpoints
	locale    language.Tag
	logger    *log.Logger

	mu    sync.Mutex
	auths map[string]*Auth
}

// NewClient creates a client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: DefaultTimeout},
		endpoints: Endpoints{}.withDefaults(),
		locale:    language.AmericanEnglish,
		logger:    log.Nop(),
		auths:     make(map[string]*Auth),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locale returns the configured locale.
func (c *Client) Locale() language.Tag { return c.locale }

// do performs req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gplay: %s: %w", endpoint, err)
	}
	defer iox.DiscardClose(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("gplay: %s: read body: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	return body, nil
}

// postForm sends a raw form body to the auth endpoint.
func (c *Client) postForm(ctx context.Context, url string, pairs []Pair, headers map[string]string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(JoinForm(pairs)))
	if err != nil {
		return nil, fmt.Errorf("gplay: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := c.do(req, "auth")
	if err != nil {
		return nil, err
	}
	return ParseKV(string(body))
}

// postProto sends a protobuf body.
func (c *Client) postProto(ctx context.Context, url, endpoint string, body []byte, headers http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gplay: create request: %w", err)
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	return c.do(req, endpoint)
}
