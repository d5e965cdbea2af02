// Package vserver implements the virtual-server dispatcher: per-component
// compiled call trees, subtype indexing, and the control-flow nodes a
// SectionCompiler assembles them from, per spec section 4.3.
package vserver

import (
	"math/rand"
	"sync/atomic"

	"github.com/pithecene-io/quarry-radius/types"
)

// Node is one element of a compiled dispatch tree. Leaves are module
// calls; interior nodes are the control-flow constructs named in spec
// section 4.3 (group, load-balance, redundant, redundant-load-balance;
// conditional/unlang control flow is the SectionCompiler's concern and is
// represented here only as an opaque Node a compiler can construct and
// splice in, since the compiler itself is an external collaborator per
// spec section 1).
type Node interface {
	Run(component types.Component, req *types.Request) types.RCode
}

// Call is a leaf node: invoke one module instance's method for this
// component.
type Call struct {
	Instance CallableInstance
}

// Run invokes the bound instance, per the module contract in spec section
// 4.4. An invocation error (instance not yet instantiated) surfaces as
// RCodeFail rather than panicking — the dispatch tree only ever sees rcodes.
func (c *Call) Run(component types.Component, req *types.Request) types.RCode {
	rcode, err := c.Instance.Invoke(component, req)
	if err != nil {
		return types.RCodeFail
	}
	return rcode
}

// Group runs its children in order, stopping (fail-stop) at the first
// child whose rcode is RCodeFail or RCodeReject, per spec section 4.3
// "fail-stop for groups". The group's own rcode is its last child's rcode,
// or RCodeNoop if it has none.
type Group struct {
	Children []Node
}

func (g *Group) Run(component types.Component, req *types.Request) types.RCode {
	result := types.RCodeNoop
	for _, child := range g.Children {
		result = child.Run(component, req)
		if result == types.RCodeFail || result == types.RCodeReject {
			return result
		}
	}
	return result
}

// Redundant tries each child in order until one does not return RCodeFail,
// returning that child's rcode; if every child fails, returns RCodeFail.
// This is the "try the next module on failure" construct; distinct from
// Group's fail-stop, which propagates the first failure immediately.
type Redundant struct {
	Children []Node
}

func (r *Redundant) Run(component types.Component, req *types.Request) types.RCode {
	result := types.RCodeFail
	for _, child := range r.Children {
		result = child.Run(component, req)
		if result != types.RCodeFail {
			return result
		}
	}
	return result
}

// LoadBalance picks exactly one child per call and runs only that child,
// per spec section 4.3 "weighted pick for load-balance": round-robin
// across calls when Weights is nil, weighted random selection otherwise.
// Selection logic is grounded on the same
// round-robin/random approach the proxy pool selector uses, simplified to
// the two strategies unlang load-balance sections actually need.
type LoadBalance struct {
	Children []Node
	Weights  []int // parallel to Children; nil means uniform weight 1 each

	rrCounter atomic.Int64
}

func (lb *LoadBalance) Run(component types.Component, req *types.Request) types.RCode {
	child := lb.pick()
	if child == nil {
		return types.RCodeNoop
	}
	return child.Run(component, req)
}

func (lb *LoadBalance) pick() Node {
	n := len(lb.Children)
	if n == 0 {
		return nil
	}
	if lb.Weights == nil {
		idx := int(lb.rrCounter.Add(1)-1) % n
		return lb.Children[idx]
	}

	total := 0
	for _, w := range lb.Weights {
		total += w
	}
	if total <= 0 {
		return lb.Children[0]
	}
	r := rand.Intn(total)
	for i, w := range lb.Weights {
		if r < w {
			return lb.Children[i]
		}
		r -= w
	}
	return lb.Children[n-1]
}

// RedundantLoadBalance is LoadBalance plus Redundant's failover: it picks a
// starting child the way LoadBalance does, then falls through the remaining
// children in ring order on RCodeFail, exhausting the ring at most once.
type RedundantLoadBalance struct {
	lb LoadBalance
}

// NewRedundantLoadBalance builds a RedundantLoadBalance over children with
// the given weights (nil for uniform).
func NewRedundantLoadBalance(children []Node, weights []int) *RedundantLoadBalance {
	return &RedundantLoadBalance{lb: LoadBalance{Children: children, Weights: weights}}
}

func (r *RedundantLoadBalance) Run(component types.Component, req *types.Request) types.RCode {
	n := len(r.lb.Children)
	if n == 0 {
		return types.RCodeNoop
	}
	start := r.lb.pick()
	startIdx := 0
	for i, c := range r.lb.Children {
		if c == start {
			startIdx = i
			break
		}
	}

	result := types.RCodeFail
	for i := 0; i < n; i++ {
		result = r.lb.Children[(startIdx+i)%n].Run(component, req)
		if result != types.RCodeFail {
			return result
		}
	}
	return result
}
