package types

import "fmt"

// ProxyProtocol is the transport a home server is reached over.
type ProxyProtocol string

const (
	ProxyProtocolUDP ProxyProtocol = "udp"
	ProxyProtocolTCP ProxyProtocol = "tcp"
	ProxyProtocolTLS ProxyProtocol = "tls" // RadSec
)

// ProxyStrategy is the home-server selection strategy for a pool, used by
// the pre-proxy control node (spec section 4.3's "pre-proxy" component).
type ProxyStrategy string

const (
	ProxyStrategyRoundRobin ProxyStrategy = "round_robin"
	ProxyStrategyRandom     ProxyStrategy = "random"
	ProxyStrategySticky     ProxyStrategy = "sticky"
)

// ProxyStickyScope determines what key is used for sticky assignment, so
// that e.g. every request for one NAS or one realm lands on the same
// home server for the life of a session.
type ProxyStickyScope string

const (
	ProxyStickyJob    ProxyStickyScope = "job" // per-request override key
	ProxyStickyDomain ProxyStickyScope = "domain"
	ProxyStickyOrigin ProxyStickyScope = "origin"
)

// ProxyEndpoint is one resolved RADIUS home server a request may be
// proxied to.
type ProxyEndpoint struct {
	Protocol ProxyProtocol `json:"protocol" msgpack:"protocol"`
	Host     string        `json:"host" msgpack:"host"`
	Port     int           `json:"port" msgpack:"port"`
	// Secret is the shared secret used to sign/verify packets to this
	// home server. Never logged or included in telemetry in cleartext;
	// see Redact.
	Secret string `json:"-" msgpack:"-"`
}

// Validate validates a home server endpoint.
func (p *ProxyEndpoint) Validate() error {
	switch p.Protocol {
	case ProxyProtocolUDP, ProxyProtocolTCP, ProxyProtocolTLS:
	default:
		return fmt.Errorf("invalid protocol %q: must be udp, tcp, or tls", p.Protocol)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", p.Port)
	}
	if p.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// Redact returns a copy of the endpoint without the shared secret, safe
// for logging or the stats admin surface.
func (p *ProxyEndpoint) Redact() ProxyEndpointRedacted {
	return ProxyEndpointRedacted{
		Protocol: p.Protocol,
		Host:     p.Host,
		Port:     p.Port,
	}
}

// ProxyEndpointRedacted is a home server endpoint without its secret.
type ProxyEndpointRedacted struct {
	Protocol ProxyProtocol `json:"protocol" msgpack:"protocol"`
	Host     string        `json:"host" msgpack:"host"`
	Port     int           `json:"port" msgpack:"port"`
}

// ProxySticky is sticky configuration for a home server pool.
type ProxySticky struct {
	Scope ProxyStickyScope `json:"scope" msgpack:"scope"`
	TTLMs *int64           `json:"ttl_ms,omitempty" msgpack:"ttl_ms,omitempty"`
}

// ProxyPool defines a home-server pool and its rotation policy, selected
// from during the pre-proxy control node.
type ProxyPool struct {
	Name          string          `json:"name" msgpack:"name"`
	Strategy      ProxyStrategy   `json:"strategy" msgpack:"strategy"`
	Endpoints     []ProxyEndpoint `json:"endpoints" msgpack:"endpoints"`
	Sticky        *ProxySticky    `json:"sticky,omitempty" msgpack:"sticky,omitempty"`
	RecencyWindow *int            `json:"recency_window,omitempty" msgpack:"recency_window,omitempty"`
}

// Validate validates a home server pool.
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
	if p.Sticky != nil {
		switch p.Sticky.Scope {
		case ProxyStickyJob, ProxyStickyDomain, ProxyStickyOrigin:
		default:
			return fmt.Errorf("invalid sticky scope %q: must be job, domain, or origin", p.Sticky.Scope)
		}
		if p.Sticky.TTLMs != nil && *p.Sticky.TTLMs <= 0 {
			return fmt.Errorf("sticky TTL must be positive")
		}
	}
	return nil
}

// Warnings returns non-fatal advisories about a home server pool's shape.
func (p *ProxyPool) Warnings() []string {
	var warnings []string
	if p.Strategy == ProxyStrategyRoundRobin && len(p.Endpoints) > LargePoolThreshold {
		warnings = append(warnings, fmt.Sprintf("pool %q has %d endpoints with round_robin strategy; consider random for large pools", p.Name, len(p.Endpoints)))
	}
	return warnings
}

// LargePoolThreshold is the endpoint count above which round_robin is
// discouraged in favor of random.
const LargePoolThreshold = 50
