package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/playdl/types"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `credentials:
  backend: redis
  redis_url: redis://localhost:6379/0
  namespace: work

broker:
  socket: /run/playdl/broker.sock
  connect_timeout: 3s

device:
  profile: ./pixel.yaml

login:
  helper: /usr/local/bin/playdl-login
  helper_args: ["--headless=false"]
  timeout: 5m
  locale: de-AT

http:
  timeout: 45s
  user_agent: playdl/test

proxies:
  pool_a:
    strategy: round_robin
    endpoints:
      - protocol: https
        host: proxy.example.com
        port: 8080

proxy:
  pool: pool_a

ledger:
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true
  keep_artifacts: true

adapter:
  type: webhook
  url: https://hooks.example.com/playdl
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
  secret: ${PLAYDL_T_HOOK_SECRET:-dev-secret}
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "credentials.backend", cfg.Credentials.Backend, "redis")
	assertEqual(t, "credentials.redis_url", cfg.Credentials.RedisURL, "redis://localhost:6379/0")
	assertEqual(t, "credentials.namespace", cfg.Credentials.Namespace, "work")

	assertEqual(t, "broker.socket", cfg.Broker.Socket, "/run/playdl/broker.sock")
	if cfg.Broker.ConnectTimeout.Duration != 3*time.Second {
		t.Errorf("expected broker.connect_timeout=3s, got %v", cfg.Broker.ConnectTimeout.Duration)
	}

	assertEqual(t, "device.profile", cfg.Device.Profile, "./pixel.yaml")

	assertEqual(t, "login.helper", cfg.Login.Helper, "/usr/local/bin/playdl-login")
	assertEqual(t, "login.locale", cfg.Login.Locale, "de-AT")
	if cfg.Login.Timeout.Duration != 5*time.Minute {
		t.Errorf("expected login.timeout=5m, got %v", cfg.Login.Timeout.Duration)
	}
	if len(cfg.Login.HelperArgs) != 1 {
		t.Errorf("expected one helper arg, got %v", cfg.Login.HelperArgs)
	}

	assertEqual(t, "http.user_agent", cfg.HTTP.UserAgent, "playdl/test")
	if cfg.HTTP.Timeout.Duration != 45*time.Second {
		t.Errorf("expected http.timeout=45s, got %v", cfg.HTTP.Timeout.Duration)
	}

	assertEqual(t, "proxy.pool", cfg.Proxy.Pool, "pool_a")

	assertEqual(t, "ledger.backend", cfg.Ledger.Backend, "s3")
	assertEqual(t, "ledger.path", cfg.Ledger.Path, "my-bucket/prefix")
	assertEqual(t, "ledger.region", cfg.Ledger.Region, "us-east-1")
	assertEqual(t, "ledger.endpoint", cfg.Ledger.Endpoint, "https://example.com")
	if !cfg.Ledger.S3PathStyle || !cfg.Ledger.KeepArtifacts {
		t.Error("expected ledger.s3_path_style and ledger.keep_artifacts")
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/playdl")
	assertEqual(t, "adapter.secret", cfg.Adapter.Secret, "dev-secret")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	for _, content := range []string{"", "   \n  \n", "# only a comment\n"} {
		path := writeTemp(t, content)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", content, err)
		}
		if cfg.Credentials.Backend != "" {
			t.Errorf("expected empty backend, got %q", cfg.Credentials.Backend)
		}
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/playdl.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PLAYDL_TEST_REDIS", "redis://cache:6379")
	yaml := `credentials:
  backend: redis
  redis_url: ${PLAYDL_TEST_REDIS}
  namespace: ${PLAYDL_TEST_UNSET:-fallback}
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "credentials.redis_url", cfg.Credentials.RedisURL, "redis://cache:6379")
	assertEqual(t, "credentials.namespace", cfg.Credentials.Namespace, "fallback")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := []struct {
		name, yaml, key string
	}{
		{"top level", "bogus_key: should_fail\n", "bogus_key"},
		{"nested", "ledger:\n  backend: fs\n  unknown_field: bad\n", "unknown_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key, got nil")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention the unknown key, got: %v", err)
			}
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name, yaml string
	}{
		{"redis without url", "credentials:\n  backend: redis\n"},
		{"bad credentials backend", "credentials:\n  backend: vault\n"},
		{"bad ledger backend", "ledger:\n  backend: gcs\n"},
		{"bad adapter type", "adapter:\n  type: kafka\n  url: x\n"},
		{"adapter without url", "adapter:\n  type: webhook\n"},
		{"undefined pool", "proxy:\n  pool: missing\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	yaml := `adapter:
  type: webhook
  url: https://example.com
  retries: 0
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Errorf("expected retries=0 pointer, got %v", cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://x\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected nil retries, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	_, err := Load(writeTemp(t, "http:\n  timeout: ten seconds\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestProxyPools_Conversion(t *testing.T) {
	ttl := int64(60000)
	cfg := &Config{
		Proxies: map[string]ProxyPoolConfig{
			"zeta": {
				Strategy:  types.ProxyStrategyRandom,
				Endpoints: []types.ProxyEndpoint{{Protocol: types.ProxyProtocolHTTP, Host: "z", Port: 1}},
			},
			"alpha": {
				Strategy:  types.ProxyStrategySticky,
				Endpoints: []types.ProxyEndpoint{{Protocol: types.ProxyProtocolHTTP, Host: "a", Port: 1}},
				Sticky:    &types.ProxySticky{TTLMs: &ttl},
			},
		},
	}
	pools := cfg.ProxyPools()
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}
	if pools[0].Name != "alpha" || pools[1].Name != "zeta" {
		t.Errorf("pools not sorted: %q, %q", pools[0].Name, pools[1].Name)
	}
	if pools[0].Sticky == nil || *pools[0].Sticky.TTLMs != 60000 {
		t.Error("sticky config lost in conversion")
	}

	if (&Config{}).ProxyPools() != nil {
		t.Error("expected nil pools for empty config")
	}
}

func TestApplyDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PLAYDL_HOME", home)

	cfg := &Config{Broker: BrokerConfig{Socket: "/custom.sock"}}
	cfg.ApplyDefaults()
	assertEqual(t, "credentials.dir", cfg.Credentials.Dir, home)
	assertEqual(t, "broker.socket", cfg.Broker.Socket, "/custom.sock")
	assertEqual(t, "ledger.path", cfg.Ledger.Path, filepath.Join(home, "ledger"))
}

func TestLoadOptional_NoFile(t *testing.T) {
	t.Setenv("PLAYDL_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := LoadOptional("")
	if err != nil {
		t.Fatalf("LoadOptional failed: %v", err)
	}
	if cfg.Broker.Socket == "" {
		t.Error("defaults not applied")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "playdl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
