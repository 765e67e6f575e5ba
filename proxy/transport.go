package proxy

import (
	"fmt"
	"net/http"
	"net/url"
)

// Func returns an http.Transport.Proxy function drawing from pool.
// Every call commits, so round-robin advances once per request.
func (s *Selector) Func(pool string) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		ep, err := s.Select(SelectRequest{Pool: pool, Host: req.URL.Hostname(), Commit: true})
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		s.logger.Debug("proxy selected", map[string]any{
			"pool":  pool,
			"host":  req.URL.Hostname(),
			"proxy": ep.Redacted(),
		})
		return ep.URL(), nil
	}
}

// Transport clones http.DefaultTransport and routes it through pool.
// An empty pool name returns the clone unchanged (environment proxies).
func (s *Selector) Transport(pool string) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if pool == "" {
		return t, nil
	}
	if _, err := s.Stats(pool); err != nil {
		return nil, err
	}
	t.Proxy = s.Func(pool)
	return t, nil
}
