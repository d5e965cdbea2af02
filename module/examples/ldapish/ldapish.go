// Package ldapish is a worked example of a thread-unsafe module instance:
// an LDAP-style directory bind used to authorize a request, backed by a
// small fixed-size connection pool. The underlying directory client is an
// external collaborator (spec section 1 excludes "the LDAP client"
// itself); this package models only the pooled-connection retry/backoff
// pattern the core's module contract needs to reason about, with a
// simulated in-process directory standing in for one so the example
// carries no real network dependency.
//
// Every instance of this module sets module.ThreadUnsafe: the core
// serializes calls into it with the instance mutex, so the pool below
// never needs its own lock.
package ldapish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/quarry-radius/module"
	"github.com/pithecene-io/quarry-radius/types"
)

func init() {
	module.Register(Code())
}

// ErrBindRejected means the directory rejected the credentials outright;
// distinct from a transient connection error, which is retried.
var ErrBindRejected = errors.New("ldapish: bind rejected")

// Conn is one pooled directory connection. A real implementation wraps a
// network connection to the directory server; this package never dials
// one itself.
type Conn interface {
	// Bind attempts to authenticate dn with password. A transient error
	// (connection dropped, timeout) is retried against another pooled
	// connection; ErrBindRejected is not.
	Bind(ctx context.Context, dn, password string) error
	// Close releases the connection back to whatever owns its lifetime.
	Close() error
}

// Dialer opens a new Conn against one of the configured directory
// servers. Instantiate calls it exactly PoolSize times.
type Dialer func(server string) (Conn, error)

// Config is the per-instance directory configuration.
type Config struct {
	Servers    []string
	PoolSize   int
	MaxRetries int
	BaseDelay  time.Duration
	// Dial opens pooled connections. Defaults to a simulated in-process
	// directory when nil, so this module needs no real LDAP server to
	// run.
	Dial Dialer
}

// DefaultConfig returns the module's defaults: a pool of 4 against one
// simulated server, up to 3 retries, 50ms base backoff doubling each
// attempt.
func DefaultConfig() Config {
	return Config{
		Servers:    []string{"sim-directory-0"},
		PoolSize:   4,
		MaxRetries: 3,
		BaseDelay:  50 * time.Millisecond,
	}
}

// yamlConfig is the wire shape of this module's config section.
type yamlConfig struct {
	Servers     []string `yaml:"servers"`
	PoolSize    int      `yaml:"pool_size"`
	MaxRetries  int      `yaml:"max_retries"`
	BaseDelayMs int      `yaml:"base_delay_ms"`
}

// parseConfig decodes rawConfig into a Config, falling back to
// DefaultConfig for every field the section leaves unset. Dial is never
// set from YAML; parseConfig always wires the simulated directory.
func parseConfig(rawConfig []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(rawConfig) == 0 {
		cfg.Dial = simulatedDialer
		return cfg, nil
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(rawConfig, &raw); err != nil {
		return Config{}, fmt.Errorf("ldapish: parse config: %w", err)
	}
	if len(raw.Servers) > 0 {
		cfg.Servers = raw.Servers
	}
	if raw.PoolSize > 0 {
		cfg.PoolSize = raw.PoolSize
	}
	if raw.MaxRetries > 0 {
		cfg.MaxRetries = raw.MaxRetries
	}
	if raw.BaseDelayMs > 0 {
		cfg.BaseDelay = time.Duration(raw.BaseDelayMs) * time.Millisecond
	}
	cfg.Dial = simulatedDialer
	return cfg, nil
}

// data is the per-instance state: a fixed-size ring of pooled
// connections. No mutex: the core guarantees single-flight access via
// the instance's ThreadUnsafe lock.
type data struct {
	cfg    Config
	conns  []Conn
	cursor int
}

// Code returns this module's static descriptor for static registration.
// Not HUPSafe: the pool holds live connections that a concurrent
// Instantiate call would leak or double-close, so a reconfigure requires
// a full instance restart instead.
func Code() *module.Code {
	return &module.Code{
		Name:  "ldapish",
		Flags: module.ThreadUnsafe,
		Instantiate: func(rawConfig []byte, _ any) (any, error) {
			cfg, err := parseConfig(rawConfig)
			if err != nil {
				return nil, err
			}
			return instantiate(cfg)
		},
		Detach: func(d any) error {
			st, ok := d.(*data)
			if !ok {
				return nil
			}
			var firstErr error
			for _, c := range st.conns {
				if c == nil {
					continue
				}
				if err := c.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
		Methods: map[types.Component]module.MethodFunc{
			types.ComponentAuthorize: authorize,
		},
	}
}

func instantiate(cfg Config) (*data, error) {
	if cfg.Dial == nil {
		cfg.Dial = simulatedDialer
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("ldapish: config has no servers")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}

	conns := make([]Conn, cfg.PoolSize)
	for i := range conns {
		server := cfg.Servers[i%len(cfg.Servers)]
		c, err := cfg.Dial(server)
		if err != nil {
			for _, opened := range conns[:i] {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("ldapish: dial %s: %w", server, err)
		}
		conns[i] = c
	}

	return &data{cfg: cfg, conns: conns}, nil
}

// authorize binds the identity named by the request against the pool,
// retrying transient failures against successive pooled connections with
// exponential backoff. The identity itself is an external (codec)
// concern; this example authorizes against a fixed placeholder identity
// to exercise the retry path in isolation.
func authorize(d any, req *types.Request) types.RCode {
	st, ok := d.(*data)
	if !ok || len(st.conns) == 0 {
		return types.RCodeFail
	}

	ctx := context.Background()
	maxRetries := st.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultConfig().MaxRetries
	}
	baseDelay := st.cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultConfig().BaseDelay
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(baseDelay * time.Duration(uint(1)<<uint(attempt-1)))
		}

		conn := st.conns[st.cursor]
		st.cursor = (st.cursor + 1) % len(st.conns)

		err := conn.Bind(ctx, placeholderDN, placeholderPassword)
		if err == nil {
			return types.RCodeOK
		}
		if errors.Is(err, ErrBindRejected) {
			return types.RCodeReject
		}
	}

	return types.RCodeFail
}

const (
	placeholderDN       = "cn=radiusd,ou=services"
	placeholderPassword = ""
)
