// Package homeproxy is a worked example of a module instance that wires
// proxy.Selector into the pre-proxy control node (spec section 4.3): one
// instance owns one home-server pool and picks an endpoint from it for
// every request that reaches the pre-proxy component of whichever
// virtual server's section chain names this instance.
package homeproxy

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/quarry-radius/module"
	"github.com/pithecene-io/quarry-radius/proxy"
	"github.com/pithecene-io/quarry-radius/types"
)

func init() {
	module.Register(Code())
}

// poolName is the fixed internal pool name this module registers its one
// configured pool under; it never appears in configuration.
const poolName = "home"

// yamlConfig is the wire shape of one homeproxy instance's config
// section: a single home-server pool definition.
type yamlConfig struct {
	Strategy      types.ProxyStrategy   `yaml:"strategy"`
	Endpoints     []types.ProxyEndpoint `yaml:"endpoints"`
	Sticky        *types.ProxySticky    `yaml:"sticky"`
	RecencyWindow *int                  `yaml:"recency_window"`
}

// data is the per-instance state: a Selector holding exactly one pool,
// plus the most recently selected endpoint for admin-surface
// introspection.
type data struct {
	selector *proxy.Selector

	mu   sync.Mutex
	last types.ProxyEndpointRedacted
}

// Last returns the most recently selected home-server endpoint, with its
// shared secret redacted. Safe for concurrent use.
func (d *data) Last() types.ProxyEndpointRedacted {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Code returns this module's static descriptor for static registration.
// HUPSafe: Instantiate builds a brand-new Selector from the fresh config
// buffer every time, so a reconfigure just discards rotation/sticky
// state and starts over — never a problem for a routing decision that is
// made independently per request.
func Code() *module.Code {
	return &module.Code{
		Name:  "homeproxy",
		Flags: module.HUPSafe,
		Instantiate: func(rawConfig []byte, _ any) (any, error) {
			return instantiate(rawConfig)
		},
		Methods: map[types.Component]module.MethodFunc{
			types.ComponentPreProxy: preProxy,
		},
	}
}

func instantiate(rawConfig []byte) (*data, error) {
	var rc yamlConfig
	if err := yaml.Unmarshal(rawConfig, &rc); err != nil {
		return nil, fmt.Errorf("homeproxy: parse config: %w", err)
	}

	pool := &types.ProxyPool{
		Name:          poolName,
		Strategy:      rc.Strategy,
		Endpoints:     rc.Endpoints,
		Sticky:        rc.Sticky,
		RecencyWindow: rc.RecencyWindow,
	}

	sel := proxy.NewSelector()
	if err := sel.RegisterPool(pool); err != nil {
		return nil, fmt.Errorf("homeproxy: %w", err)
	}

	return &data{selector: sel}, nil
}

// preProxy selects a home-server endpoint for req and records it on the
// instance for introspection. The request's own identity (NAS, realm,
// origin) is an external codec concern, so this example keys sticky
// selection off the request's monotonic number — enough to exercise the
// selection strategies without a real wire representation to draw a
// sticky key from.
func preProxy(d any, req *types.Request) types.RCode {
	st, ok := d.(*data)
	if !ok {
		return types.RCodeFail
	}

	ep, err := st.selector.Select(proxy.SelectRequest{
		Pool:      poolName,
		StickyKey: fmt.Sprintf("req-%d", req.Number),
		Commit:    true,
	})
	if err != nil {
		return types.RCodeFail
	}

	st.mu.Lock()
	st.last = ep.Redact()
	st.mu.Unlock()

	return types.RCodeUpdated
}
