package assemble

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pithecene-io/playdl/iox"
)

// Fetcher opens a fragment download.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher fetches fragments with a plain GET.
type HTTPFetcher struct {
	// Client defaults to http.DefaultClient.
	Client    *http.Client
	UserAgent string
}

// Fetch issues the request and returns the response body on 2xx.
func (h *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		iox.DiscardClose(resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
