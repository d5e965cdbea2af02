package vserver

import (
	"time"

	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/types"
)

// Tracer receives one dispatch outcome per indexed_modcall call. Wired
// optionally; a nil Tracer on Dispatcher means tracing is disabled.
type Tracer interface {
	TraceDispatch(server, component string, index int, module string, rc types.RCode, duration time.Duration, now time.Time)
}

// notFoundRCode is the sentinel rcode returned when a named sub-block
// index was requested but never registered, per spec section 4.3 step 2
// ("implementation picks but must be consistent — the reference uses
// NOOP/FAIL per section"). This implementation uses NOOP: a missing
// sub-block is treated as "this section had nothing to say", not a
// dispatch failure.
const notFoundRCode = types.RCodeNoop

// Dispatcher implements indexed_modcall, spec section 4.3's dispatch
// contract: (vserver, component, subtype-index, Request) -> rcode.
type Dispatcher struct {
	servers *Registry
	log     *log.Logger
	tracer  Tracer
}

// NewDispatcher creates a Dispatcher resolving server names against servers.
func NewDispatcher(servers *Registry, logger *log.Logger) *Dispatcher {
	return &Dispatcher{servers: servers, log: logger}
}

// SetTracer wires a Tracer that records one outcome per Dispatch call.
// Call before serving traffic; not safe to change concurrently with
// in-flight dispatches.
func (d *Dispatcher) SetTracer(t Tracer) {
	d.tracer = t
}

// Dispatch runs Request through the named component's compiled tree for
// the given subtype index, per spec section 4.3 steps 1-4.
func (d *Dispatcher) Dispatch(req *types.Request, component types.Component, index int) types.RCode {
	start := time.Now()
	vs, ok := d.servers.Get(req.Server)
	if !ok {
		d.trace(req.Server, component, index, "", types.RCodeFail, start)
		return types.RCodeFail
	}

	tree, ok := vs.tree(component, index)
	if !ok {
		if d.log != nil {
			d.log.Debug("no compiled tree for section", map[string]any{
				"server": req.Server, "component": component.String(), "index": index,
			})
		}
		d.trace(req.Server, component, index, "", notFoundRCode, start)
		return notFoundRCode
	}

	req.Component = component.String()
	req.Module = ""

	result := tree.Run(component, req)
	module := req.Module

	req.Component = "<core>"
	d.trace(req.Server, component, index, module, result, start)
	return result
}

func (d *Dispatcher) trace(server string, component types.Component, index int, module string, rc types.RCode, start time.Time) {
	if d.tracer == nil {
		return
	}
	now := time.Now()
	d.tracer.TraceDispatch(server, component.String(), index, module, rc, now.Sub(start), now)
}
