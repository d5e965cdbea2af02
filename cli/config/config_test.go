package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/quarry-radius/types"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `instance: radiusd-prod
admin_socket: /tmp/radiusd.sock
library_path:
  - /usr/lib/radiusd

thread_pool:
  max_queue_size: 1024
  queue_priority: eap

trace:
  policy: buffered
  backend: s3
  dataset: radius_traces
  max_buffer_records: 1000
  max_buffer_bytes: 10485760
  s3:
    bucket: my-bucket
    prefix: prefix
    region: us-east-1
    endpoint: https://example.com
    use_path_style: true

proxies:
  pool_a:
    strategy: round_robin
    endpoints:
      - protocol: tls
        host: proxy.example.com
        port: 2083

modules:
  ldap1:
    type: ldapish

adapter:
  type: webhook
  url: https://hooks.example.com/quarry
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Top-level fields
	assertEqual(t, "instance", cfg.Instance, "radiusd-prod")
	assertEqual(t, "admin_socket", cfg.AdminSocket, "/tmp/radiusd.sock")
	if len(cfg.LibraryPath) != 1 || cfg.LibraryPath[0] != "/usr/lib/radiusd" {
		t.Errorf("expected library_path=[/usr/lib/radiusd], got %v", cfg.LibraryPath)
	}

	// Trace storage
	assertEqual(t, "trace.backend", cfg.Trace.Backend, "s3")
	assertEqual(t, "trace.s3.bucket", cfg.Trace.S3.Bucket, "my-bucket")
	assertEqual(t, "trace.s3.region", cfg.Trace.S3.Region, "us-east-1")
	assertEqual(t, "trace.s3.endpoint", cfg.Trace.S3.Endpoint, "https://example.com")
	if !cfg.Trace.S3.UsePathStyle {
		t.Error("expected trace.s3.use_path_style=true")
	}

	// Trace policy and thread pool
	assertEqual(t, "trace.policy", cfg.Trace.Policy, "buffered")
	assertEqual(t, "thread_pool.queue_priority", cfg.ThreadPool.QueuePriority, "eap")
	if cfg.Trace.MaxBufferRecords != 1000 {
		t.Errorf("expected max_buffer_records=1000, got %d", cfg.Trace.MaxBufferRecords)
	}
	if cfg.Trace.MaxBufferBytes != 10485760 {
		t.Errorf("expected max_buffer_bytes=10485760, got %d", cfg.Trace.MaxBufferBytes)
	}

	// Proxy pools and modules
	assertEqual(t, "proxies.pool_a.strategy", string(cfg.Proxies["pool_a"].Strategy), "round_robin")
	assertEqual(t, "modules.ldap1.type", cfg.Modules["ldap1"].Type, "ldapish")

	// Adapter
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/quarry")
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
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Instance != "" {
		t.Errorf("expected empty instance, got %q", cfg.Instance)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/quarry.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_INSTANCE", "expanded-instance")

	yaml := `instance: ${TEST_INSTANCE}`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "instance", cfg.Instance, "expanded-instance")
}

func TestProxyPools_Conversion(t *testing.T) {
	cfg := &Config{
		Proxies: map[string]ProxyPoolConfig{
			"beta_pool": {
				Strategy: types.ProxyStrategyRandom,
				Endpoints: []types.ProxyEndpoint{
					{Protocol: types.ProxyProtocolUDP, Host: "b.example.com", Port: 8080},
				},
			},
			"alpha_pool": {
				Strategy: types.ProxyStrategyRoundRobin,
				Endpoints: []types.ProxyEndpoint{
					{Protocol: types.ProxyProtocolTLS, Host: "a.example.com", Port: 443},
				},
			},
		},
	}

	pools := cfg.ProxyPools()
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}

	// Sorted by name: alpha_pool before beta_pool
	if pools[0].Name != "alpha_pool" {
		t.Errorf("expected first pool name=alpha_pool, got %q", pools[0].Name)
	}
	if pools[1].Name != "beta_pool" {
		t.Errorf("expected second pool name=beta_pool, got %q", pools[1].Name)
	}

	if pools[0].Strategy != types.ProxyStrategyRoundRobin {
		t.Errorf("expected alpha_pool strategy=round_robin, got %q", pools[0].Strategy)
	}
}

func TestProxyPools_Empty(t *testing.T) {
	cfg := &Config{}
	pools := cfg.ProxyPools()
	if pools != nil {
		t.Errorf("expected nil for empty proxies, got %v", pools)
	}
}

func TestProxyPools_WithSticky(t *testing.T) {
	ttl := int64(3600000)
	cfg := &Config{
		Proxies: map[string]ProxyPoolConfig{
			"sticky_pool": {
				Strategy: types.ProxyStrategySticky,
				Sticky: &types.ProxySticky{
					Scope: types.ProxyStickyDomain,
					TTLMs: &ttl,
				},
				Endpoints: []types.ProxyEndpoint{
					{Protocol: types.ProxyProtocolUDP, Host: "proxy.example.com", Port: 8080},
				},
			},
		},
	}

	pools := cfg.ProxyPools()
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(pools))
	}
	if pools[0].Sticky == nil {
		t.Fatal("expected sticky config")
	}
	if pools[0].Sticky.Scope != types.ProxyStickyDomain {
		t.Errorf("expected sticky scope=domain, got %q", pools[0].Sticky.Scope)
	}
	if pools[0].Sticky.TTLMs == nil || *pools[0].Sticky.TTLMs != 3600000 {
		t.Error("expected sticky TTL=3600000")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `instance: radiusd
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `trace:
  backend: fs
  root: ./data
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	yaml := `timeout: 30s`
	path := writeTemp(t, "adapter:\n  "+yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Timeout.Duration != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.Adapter.Timeout.Duration)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "quarry.yaml")
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
