package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/pithecene-io/quarry-radius/types"
)

// Config represents a radiusd.yaml configuration file: the thread pool,
// loaded modules, virtual servers, home-server (proxy) pools, and the
// notification adapter that publishes HUP/telemetry events.
type Config struct {
	Instance       string                          `yaml:"instance"`
	AdminSocket    string                          `yaml:"admin_socket"`
	ThreadPool     ThreadPoolConfig                `yaml:"thread_pool"`
	Modules        map[string]ModuleConfig         `yaml:"modules"`
	VirtualServers map[string]VirtualServerConfig  `yaml:"virtual_servers"`
	Proxies        map[string]ProxyPoolConfig      `yaml:"proxies"`
	Adapter        AdapterConfig                   `yaml:"adapter"`
	Trace          TraceConfig                     `yaml:"trace"`
	LibraryPath    []string                        `yaml:"library_path"`
}

// DefaultAdminSocket is where the admin control socket listens when the
// config file doesn't set admin_socket.
const DefaultAdminSocket = "/var/run/radiusd/radiusd.sock"

// ThreadPoolConfig holds the options recognized by the thread pool, spec
// section 6, with the same field names and defaults named there.
type ThreadPoolConfig struct {
	StartServers         int      `yaml:"start_servers"`
	MaxServers           int      `yaml:"max_servers"`
	MinSpareServers      int      `yaml:"min_spare_servers"`
	MaxSpareServers      int      `yaml:"max_spare_servers"`
	MaxRequestsPerServer int      `yaml:"max_requests_per_server"`
	CleanupDelay         Duration `yaml:"cleanup_delay"`
	MaxQueueSize         int      `yaml:"max_queue_size"`
	QueuePriority        string   `yaml:"queue_priority"` // "default" | "time" | "eap"
	AutoLimitAcct        bool     `yaml:"auto_limit_acct"`
}

// DefaultThreadPoolConfig returns the thread-pool defaults from spec
// section 6.
func DefaultThreadPoolConfig() ThreadPoolConfig {
	return ThreadPoolConfig{
		StartServers:         5,
		MaxServers:           32,
		MinSpareServers:      3,
		MaxSpareServers:      10,
		MaxRequestsPerServer: 0,
		CleanupDelay:         Duration{5 * time.Second},
		MaxQueueSize:         65536,
		QueuePriority:        "default",
		AutoLimitAcct:        false,
	}
}

// ModuleConfig declares one module instance: which code to load it from,
// and the raw configuration section handed to Bootstrap/Instantiate.
// Name is derived from the map key in Config.Modules, not stored here.
type ModuleConfig struct {
	// Type is the module code name, e.g. "ldapish", "eapsim".
	Type string `yaml:"type"`
	// Path is an optional explicit shared-object path for dynamic loading,
	// bypassing the registry's library_path search entirely. Leave empty to
	// have the registry resolve Type against the static registration map
	// first, then search Config.LibraryPath (or FR_LIBRARY_PATH if set) for
	// a "<prefix>_<type>" library, per spec section 4.1.
	Path string `yaml:"path,omitempty"`
	// Config is the raw section body, handed to the module's own
	// schema parser (pass 1) unexamined by the core.
	Config map[string]any `yaml:"config"`
	// SiblingRef, if set, means this instance's configuration is
	// "= other_instance" (spec section 4.2 sibling section resolution).
	SiblingRef string `yaml:"sibling_ref,omitempty"`
}

// VirtualServerConfig names, per component, the module instances a
// default tree (and any named Auth-Type-style sub-blocks) chain together.
// The actual tree shape (group/redundant/load-balance nesting) is a
// SectionCompiler concern; this is the config-file surface a compiler
// consumes, not the compiled Node tree itself.
type VirtualServerConfig struct {
	Sections map[string]SectionConfig `yaml:"sections"` // keyed by component name
}

// SectionConfig is one component's section body: a default chain plus any
// named sub-blocks keyed by subtype name (e.g. "Auth-Type" -> {"PAP": ...}).
type SectionConfig struct {
	Default []string                 `yaml:"default"`
	Named   map[string]NamedSection  `yaml:"named,omitempty"`
}

// NamedSection is one named sub-block's module chain, keyed under its
// subtype dictionary name (e.g. "PAP" under "Auth-Type").
type NamedSection struct {
	Modules []string `yaml:"modules"`
}

// ProxyPoolConfig is a home-server (upstream RADIUS proxy target) pool
// definition within the config file, selected from during pre-proxy.
// Name is derived from the map key, not stored in the struct.
type ProxyPoolConfig struct {
	Strategy      types.ProxyStrategy   `yaml:"strategy"`
	Endpoints     []types.ProxyEndpoint `yaml:"endpoints"`
	Sticky        *types.ProxySticky    `yaml:"sticky,omitempty"`
	RecencyWindow *int                  `yaml:"recency_window,omitempty"`
}

// AdapterConfig configures the notification publisher that emits HUP and
// pool-telemetry events (adapter/webhook or adapter/redis).
type AdapterConfig struct {
	Type    string            `yaml:"type"` // "webhook" | "redis" | ""
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// TraceConfig configures the optional Hive-partitioned dispatch-trace
// archive (package trace). Tracing is disabled when Policy is "" or
// "noop".
type TraceConfig struct {
	// Policy selects the write-policy implementation: "noop" (default),
	// "strict", "buffered", or "streaming".
	Policy string `yaml:"policy"`
	// Backend selects storage: "fs" (default) or "s3".
	Backend string `yaml:"backend"`
	// Root is the filesystem root when Backend is "fs".
	Root string `yaml:"root,omitempty"`
	// S3 holds bucket/prefix/region configuration when Backend is "s3".
	S3 TraceS3Config `yaml:"s3,omitempty"`
	// Dataset overrides the default Lode dataset name.
	Dataset string `yaml:"dataset,omitempty"`
	// Buffered/Streaming tuning, ignored by "strict"/"noop".
	MaxBufferRecords int      `yaml:"max_buffer_records,omitempty"`
	MaxBufferBytes   int64    `yaml:"max_buffer_bytes,omitempty"`
	FlushCount       int      `yaml:"flush_count,omitempty"`
	FlushInterval    Duration `yaml:"flush_interval,omitempty"`
}

// TraceS3Config mirrors trace.S3Config for YAML decoding.
type TraceS3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
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

// ProxyPools converts the map-keyed proxy pool config into a sorted slice
// of types.ProxyPool. Sorting by name ensures deterministic ordering.
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
			Name:          name,
			Strategy:      pc.Strategy,
			Endpoints:     pc.Endpoints,
			Sticky:        pc.Sticky,
			RecencyWindow: pc.RecencyWindow,
		})
	}
	return pools
}

// ModuleNames returns the configured module instance names in sorted
// order, for deterministic bootstrap iteration.
func (c *Config) ModuleNames() []string {
	names := make([]string, 0, len(c.Modules))
	for name := range c.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
