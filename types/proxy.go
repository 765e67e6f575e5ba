package types

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ProxyProtocol is the allowed proxy protocol.
type ProxyProtocol string

const (
	ProxyProtocolHTTP   ProxyProtocol = "http"
	ProxyProtocolHTTPS  ProxyProtocol = "https"
	ProxyProtocolSOCKS5 ProxyProtocol = "socks5"
)

// ProxyStrategy is the proxy selection strategy for pools.
type ProxyStrategy string

const (
	ProxyStrategyRoundRobin ProxyStrategy = "round_robin"
	ProxyStrategyRandom     ProxyStrategy = "random"
	// ProxyStrategySticky pins each destination host to one endpoint.
	ProxyStrategySticky ProxyStrategy = "sticky"
)

// ProxyEndpoint is one outbound proxy.
type ProxyEndpoint struct {
	Protocol ProxyProtocol `json:"protocol" yaml:"protocol"`
	Host     string        `json:"host" yaml:"host"`
	Port     int           `json:"port" yaml:"port"`
	Username string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
}

// Validate checks protocol, host, port range and the auth pair.
func (p *ProxyEndpoint) Validate() error {
	switch p.Protocol {
	case ProxyProtocolHTTP, ProxyProtocolHTTPS, ProxyProtocolSOCKS5:
	default:
		return fmt.Errorf("invalid protocol %q: must be http, https, or socks5", p.Protocol)
	}
	if p.Host == "" {
		return fmt.Errorf("proxy host is required")
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", p.Port)
	}
	if (p.Username == "") != (p.Password == "") {
		return fmt.Errorf("username and password must be provided together")
	}
	return nil
}

// URL returns the endpoint as a proxy URL usable by http.Transport.
func (p *ProxyEndpoint) URL() *url.URL {
	u := &url.URL{
		Scheme: string(p.Protocol),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// Redacted renders the endpoint without its password, for logs.
func (p *ProxyEndpoint) Redacted() string {
	u := p.URL()
	if p.Username != "" {
		u.User = url.User(p.Username)
	}
	return u.String()
}

// ProxySticky configures sticky assignment.
type ProxySticky struct {
	// TTLMs expires assignments after this many milliseconds; nil keeps them.
	TTLMs *int64 `json:"ttl_ms,omitempty" yaml:"ttl_ms,omitempty"`
}

// ProxyPool defines a pool and rotation policy.
type ProxyPool struct {
	Name      string          `json:"name" yaml:"name"`
	Strategy  ProxyStrategy   `json:"strategy" yaml:"strategy"`
	Endpoints []ProxyEndpoint `json:"endpoints" yaml:"endpoints"`
	Sticky    *ProxySticky    `json:"sticky,omitempty" yaml:"sticky,omitempty"`
}

// Validate checks the pool definition.
func (p *ProxyPool) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pool name is required")
	}

	switch p.Strategy {
	case ProxyStrategyRoundRobin, ProxyStrategyRandom, ProxyStrategySticky:
	default:
		return fmt.Errorf("invalid strategy %q: must be round_robin, random, or sticky", p.Strategy)
	}

	if len(p.Endpoints) == 0 {
		return fmt.Errorf("pool must have at least one endpoint")
	}
	for i, ep := range p.Endpoints {
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
	}

	if p.Sticky != nil && p.Sticky.TTLMs != nil && *p.Sticky.TTLMs <= 0 {
		return fmt.Errorf("sticky TTL must be positive")
	}
	return nil
}

// LargePoolThreshold is the number of endpoints above which round_robin
// is discouraged in favor of random.
const LargePoolThreshold = 50

// Warnings returns non-fatal issues that should be surfaced to users.
func (p *ProxyPool) Warnings() []string {
	var warnings []string

	if p.Strategy == ProxyStrategyRoundRobin && len(p.Endpoints) > LargePoolThreshold {
		warnings = append(warnings, fmt.Sprintf("pool %q has %d endpoints with round_robin strategy; consider random for large pools", p.Name, len(p.Endpoints)))
	}
	if p.Strategy != ProxyStrategySticky && p.Sticky != nil {
		warnings = append(warnings, fmt.Sprintf("pool %q sets sticky options but uses %s; they are ignored", p.Name, p.Strategy))
	}
	return warnings
}
