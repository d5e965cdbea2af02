package vserver

import "github.com/pithecene-io/quarry-radius/types"

// SectionCompiler turns configuration-file text for one named section
// (e.g. an `authorize { ... }` block, or a named sub-block like
// `Auth-Type PAP { ... }`) into an executable Node tree. It is an external
// collaborator per spec section 1 ("configuration-file parsing... out of
// scope") and section 6 ("the core never parses files itself") — the core
// only consumes its output via this interface.
type SectionCompiler interface {
	// Compile parses raw section text into a Node tree, resolving module
	// references against resolveInstance.
	Compile(component types.Component, sectionText string, resolveInstance InstanceResolver) (Node, error)
}

// InstanceResolver looks up a module instance by its configured name, for
// a SectionCompiler to bind Call leaves against. Kept as a narrow function
// type rather than importing *module.Manager directly, so vserver does not
// need to know how instances are managed — only that they can be named.
type InstanceResolver func(name string) (CallableInstance, bool)

// CallableInstance is the subset of *module.Instance a Call node needs.
// Declared here (rather than referencing *module.Instance directly in
// Node) only so SectionCompiler implementations outside this module's own
// wiring can satisfy it without importing the module package; the core's
// own wiring uses *module.Instance, which satisfies this interface.
type CallableInstance interface {
	Invoke(component types.Component, req *types.Request) (types.RCode, error)
}
