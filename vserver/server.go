package vserver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pithecene-io/quarry-radius/types"
)

// ErrAttemptedReassign is returned by RegisterSubtype when a non-default
// sub-block tries to claim an index another name already owns, per spec
// section 4.3 ("attempts to create a non-default sub-block under an
// existing index are errors").
var ErrAttemptedReassign = fmt.Errorf("subtype index already assigned to a different name")

// VirtualServer is a named, immutable-after-bootstrap bundle of compiled
// per-component dispatch trees, per spec section 4.3. Structure never
// changes after Compile finishes; HUP only ever replaces module instance
// data, never a VirtualServer's trees.
type VirtualServer struct {
	Name string

	mu sync.RWMutex
	// defaultTrees holds the index-0 tree per component.
	defaultTrees map[types.Component]Node
	// namedTrees holds the (component, subtype-index) trees for named
	// sub-blocks like "authenticate Auth-Type PAP {...}".
	namedTrees map[types.Component]map[int]Node

	// subtypeNames maps a component's sub-block name to its dictionary
	// integer value; subtypeNext is the next non-zero value this server
	// will synthesize if the dictionary collaborator has none on file.
	subtypeNames map[types.Component]map[string]int
	subtypeNext  map[types.Component]int
}

// NewVirtualServer creates an empty server ready for Compile calls.
func NewVirtualServer(name string) *VirtualServer {
	return &VirtualServer{
		Name:         name,
		defaultTrees: make(map[types.Component]Node),
		namedTrees:   make(map[types.Component]map[int]Node),
		subtypeNames: make(map[types.Component]map[string]int),
		subtypeNext:  make(map[types.Component]int),
	}
}

// SetDefault installs the index-0 tree for a component. Idempotent: a
// second call for the same component replaces the tree, matching spec
// section 4.3's "attempts under index 0 are idempotent".
func (vs *VirtualServer) SetDefault(component types.Component, tree Node) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.defaultTrees[component] = tree
}

// SubtypeIndex resolves name to its dictionary integer value for
// component, reusing an existing allocation or synthesizing a new
// non-zero one, per spec section 4.3's compilation rules. The dictionary
// collaborator itself is external (spec section 6); this allocator is the
// core's half of that contract when no dictionary entry exists yet.
func (vs *VirtualServer) SubtypeIndex(component types.Component, name string) int {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	names, ok := vs.subtypeNames[component]
	if !ok {
		names = make(map[string]int)
		vs.subtypeNames[component] = names
	}
	if idx, exists := names[name]; exists {
		return idx
	}

	vs.subtypeNext[component]++
	idx := vs.subtypeNext[component]
	names[name] = idx
	return idx
}

// RegisterNamed installs the compiled tree for a named sub-block at
// (component, index). Returns ErrAttemptedReassign if index already holds
// a different named tree, per spec section 4.3.
func (vs *VirtualServer) RegisterNamed(component types.Component, index int, tree Node) error {
	if index == 0 {
		vs.SetDefault(component, tree)
		return nil
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	trees, ok := vs.namedTrees[component]
	if !ok {
		trees = make(map[int]Node)
		vs.namedTrees[component] = trees
	}
	if existing, exists := trees[index]; exists && existing != nil && existing != tree {
		return fmt.Errorf("%w: %s index %d", ErrAttemptedReassign, component, index)
	}
	trees[index] = tree
	return nil
}

// tree resolves (component, index) to its compiled tree: index 0 is
// always the default; any other index falls back to "not found" if no
// named sub-block was registered.
func (vs *VirtualServer) tree(component types.Component, index int) (Node, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if index == 0 {
		tree, ok := vs.defaultTrees[component]
		return tree, ok
	}
	trees, ok := vs.namedTrees[component]
	if !ok {
		return nil, false
	}
	tree, ok := trees[index]
	return tree, ok
}

// Registry resolves virtual-server names to VirtualServer instances, for
// the Dispatcher's "resolve Request.server" step.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*VirtualServer
}

// NewRegistry creates an empty virtual-server registry.
func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*VirtualServer)}
}

// Add registers a VirtualServer under its own name.
func (r *Registry) Add(vs *VirtualServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[vs.Name] = vs
}

// Get resolves a server name.
func (r *Registry) Get(name string) (*VirtualServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs, ok := r.servers[name]
	return vs, ok
}

// Names returns the registered virtual-server names in sorted order, for
// an admin surface like "radiusd servers list".
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
