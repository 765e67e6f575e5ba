// Package config handles playdl.yaml loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pithecene-io/playdl/types"
)

// Config represents a playdl.yaml configuration file.
// All values are optional; CLI flags always override config values.
type Config struct {
	Credentials CredentialsConfig          `yaml:"credentials"`
	Broker      BrokerConfig               `yaml:"broker"`
	Device      DeviceConfig               `yaml:"device"`
	Login       LoginConfig                `yaml:"login"`
	HTTP        HTTPConfig                 `yaml:"http"`
	Proxies     map[string]ProxyPoolConfig `yaml:"proxies"`
	Proxy       ProxySelection             `yaml:"proxy"`
	Ledger      LedgerConfig               `yaml:"ledger"`
	Adapter     AdapterConfig              `yaml:"adapter"`
}

// CredentialsConfig selects the credential store backend.
type CredentialsConfig struct {
	Backend   string `yaml:"backend"` // file (default) or redis
	Dir       string `yaml:"dir"`
	RedisURL  string `yaml:"redis_url"`
	Namespace string `yaml:"namespace"`
}

// BrokerConfig locates the credential broker socket.
type BrokerConfig struct {
	Socket         string   `yaml:"socket"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// DeviceConfig points at a device profile file; empty uses the built-in device.
type DeviceConfig struct {
	Profile string `yaml:"profile"`
}

// LoginConfig configures the interactive login helper.
type LoginConfig struct {
	Helper     string   `yaml:"helper"`
	HelperArgs []string `yaml:"helper_args,omitempty"`
	Timeout    Duration `yaml:"timeout"`
	Locale     string   `yaml:"locale"`
}

// HTTPConfig holds outbound HTTP defaults.
type HTTPConfig struct {
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

// ProxyPoolConfig is a proxy pool definition within the config file.
// Name is derived from the map key, not stored in the struct.
type ProxyPoolConfig struct {
	Strategy  types.ProxyStrategy   `yaml:"strategy"`
	Endpoints []types.ProxyEndpoint `yaml:"endpoints"`
	Sticky    *types.ProxySticky    `yaml:"sticky,omitempty"`
}

// ProxySelection names the pool outbound requests use.
type ProxySelection struct {
	Pool string `yaml:"pool"`
}

// LedgerConfig holds fetch ledger storage defaults.
type LedgerConfig struct {
	Disabled      bool   `yaml:"disabled"`
	Dataset       string `yaml:"dataset"`
	Backend       string `yaml:"backend"` // fs (default) or s3
	Path          string `yaml:"path"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	S3PathStyle   bool   `yaml:"s3_path_style"`
	KeepArtifacts bool   `yaml:"keep_artifacts"`
}

// AdapterConfig holds completion adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // webhook or redis; empty disables
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	// Secret signs webhook bodies.
	Secret string `yaml:"secret,omitempty"`
	// LatestKey is the redis latest-outcome hash; "-" disables it.
	LatestKey string `yaml:"latest_key,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ProxyPools converts the map-keyed proxy pool config into a slice
// sorted by name.
func (c *Config) ProxyPools() []types.ProxyPool {
	if len(c.Proxies) == 0 {
		return nil
	}

	names := make([]string, 0, len(c.Proxies))
	for name := range c.Proxies {
		names = append(names, name)
	}
	sort.Strings(names)

	pools := make([]types.ProxyPool, 0, len(names))
	for _, name := range names {
		pc := c.Proxies[name]
		pools = append(pools, types.ProxyPool{
			Name:      name,
			Strategy:  pc.Strategy,
			Endpoints: pc.Endpoints,
			Sticky:    pc.Sticky,
		})
	}
	return pools
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Credentials.Backend {
	case "", "file":
	case "redis":
		if c.Credentials.RedisURL == "" {
			return fmt.Errorf("credentials.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("credentials.backend %q: must be file or redis", c.Credentials.Backend)
	}

	switch c.Ledger.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("ledger.backend %q: must be fs or s3", c.Ledger.Backend)
	}
	if c.Ledger.Backend == "s3" && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path (bucket/prefix) is required for the s3 backend")
	}

	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type %q: must be webhook or redis", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required for adapter type %s", c.Adapter.Type)
	}

	if c.Proxy.Pool != "" {
		if _, ok := c.Proxies[c.Proxy.Pool]; !ok {
			return fmt.Errorf("proxy.pool %q is not defined under proxies", c.Proxy.Pool)
		}
	}
	return nil
}

// StateDir returns the directory for local state (credentials, ledger,
// broker socket): $PLAYDL_HOME, else the user config dir.
func StateDir() string {
	if dir := os.Getenv("PLAYDL_HOME"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "playdl")
	}
	return filepath.Join(os.TempDir(), "playdl")
}

// ApplyDefaults fills unset paths relative to StateDir.
func (c *Config) ApplyDefaults() {
	state := StateDir()
	if c.Credentials.Dir == "" {
		c.Credentials.Dir = state
	}
	if c.Broker.Socket == "" {
		c.Broker.Socket = filepath.Join(state, "broker.sock")
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join(state, "ledger")
	}
}
