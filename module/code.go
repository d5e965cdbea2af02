package module

import "github.com/pithecene-io/quarry-radius/types"

// Flags are the capability bits a Code declares about itself, per spec
// section 4.1/4.2.
type Flags uint8

const (
	// ThreadUnsafe means the core must serialize every call into this
	// module's methods behind a single mutex, regardless of which worker
	// is dispatching.
	ThreadUnsafe Flags = 1 << iota
	// HUPSafe means Instantiate may be re-run against a freshly parsed
	// config buffer while the instance is live, per spec section 4.2
	// "HUP (reconfigure live)".
	HUPSafe
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// MethodFunc is a single component's entry point into a module instance.
// data is the opaque value Instantiate (or Bootstrap, for methods that run
// before instantiation) returned; req is the in-flight request.
type MethodFunc func(data any, req *types.Request) types.RCode

// Code is a module's static descriptor: the name under which it is
// registered, its ABI fingerprint, its lifecycle hooks, and the method
// table the dispatcher invokes for each component it participates in.
//
// A Code is shared read-only state across every ModuleInstance built from
// it; it never holds per-instance data itself (spec section 4.1).
type Code struct {
	// Name is the module type name ("ldapish", "eapsim", ...), distinct
	// from any given instance's name.
	Name string

	// Magic is this build's ABI fingerprint, checked against the host's
	// on Load.
	Magic Magic

	// Flags are this module's capability bits.
	Flags Flags

	// Bootstrap runs once per Code the first time any instance of it is
	// loaded, before any instance's Instantiate. It receives the raw
	// config bytes for the first instance that triggered the load and
	// returns opaque data shared by every instance of this Code. May be
	// nil if the module needs no one-time setup.
	Bootstrap func(rawConfig []byte) (any, error)

	// Instantiate runs once per instance (or again on HUP, if HUPSafe),
	// parsing that instance's config section and returning the opaque
	// data passed to every MethodFunc call for that instance. Required:
	// a Code with a nil Instantiate can never produce a usable instance.
	Instantiate func(rawConfig []byte, bootstrapData any) (any, error)

	// Detach runs once when an instance is torn down (server shutdown or
	// displaced by a successful HUP), releasing whatever Instantiate
	// acquired. May be nil.
	Detach func(data any) error

	// Methods maps a component to the function this module runs for it.
	// A Code need not populate every component; the dispatcher treats an
	// absent entry as RCodeNoop (spec section 4.3).
	Methods map[types.Component]MethodFunc
}

// Method looks up the method function for a component, reporting whether
// this Code participates in it at all.
func (c *Code) Method(component types.Component) (MethodFunc, bool) {
	fn, ok := c.Methods[component]
	return fn, ok
}
