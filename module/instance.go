package module

import (
	"fmt"
	"sync"

	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/types"
)

// instanceState tracks where an instance sits in its two-pass bootstrap
// lifecycle, including the transient marker sibling-section resolution
// uses to detect cycles (spec section 4.2 "sibling section resolution").
type instanceState int

const (
	stateDeclared instanceState = iota
	stateTransient               // bootstrap/instantiate in progress; seeing this again is a cycle
	stateReady
)

// Instance is one named, configured use of a Code. Multiple instances may
// share a Code (and its Bootstrap data); each gets its own Instantiate
// data and, if ThreadUnsafe, its own dispatch mutex.
type Instance struct {
	Name       string
	Code       *Code
	RawConfig  []byte
	SiblingRef string // non-empty if this instance's config is "= other_instance" (spec 4.2)

	mu    sync.Mutex // serializes calls when Code.Flags has ThreadUnsafe
	state instanceState
	data  any
}

// Invoke runs the method for component against this instance, enforcing
// ThreadUnsafe serialization. Returns ErrNotInstantiated if bootstrap has
// not completed. A Code that does not implement component returns
// RCodeNoop, per spec section 4.3.
func (in *Instance) Invoke(component types.Component, req *types.Request) (types.RCode, error) {
	if in.state != stateReady {
		return types.RCodeFail, fmt.Errorf("%w: %q", ErrNotInstantiated, in.Name)
	}

	fn, ok := in.Code.Method(component)
	if !ok {
		return types.RCodeNoop, nil
	}

	if in.Code.Flags.Has(ThreadUnsafe) {
		in.mu.Lock()
		defer in.mu.Unlock()
	}

	req.Module = in.Name
	defer func() { req.Module = "" }()

	return fn(in.data, req), nil
}

// Manager owns the full set of configured instances plus the registry they
// were loaded from, and runs the bootstrap/instantiate lifecycle described
// in spec section 4.2.
type Manager struct {
	registry *Registry
	log      *log.Logger

	mu          sync.RWMutex
	instances   map[string]*Instance
	bootstraps  map[string]any // Code.Name -> bootstrap data, one per distinct Code
	bootstrapped map[string]bool
}

// NewManager creates a Manager backed by registry.
func NewManager(registry *Registry, logger *log.Logger) *Manager {
	return &Manager{
		registry:     registry,
		log:          logger,
		instances:    make(map[string]*Instance),
		bootstraps:   make(map[string]any),
		bootstrapped: make(map[string]bool),
	}
}

// Declare registers a configured instance by name. codePath is passed
// through to Registry.Load for dynamic resolution; it may be empty for a
// statically registered module type. Returns ErrReservedName or
// ErrDuplicateInstance without touching the registry.
func (m *Manager) Declare(name, codeName, codePath string, rawConfig []byte, siblingRef string) error {
	if IsReservedWord(name) {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateInstance, name)
	}

	code, err := m.registry.Load(codeName, codePath)
	if err != nil {
		return err
	}

	m.instances[name] = &Instance{
		Name:       name,
		Code:       code,
		RawConfig:  rawConfig,
		SiblingRef: siblingRef,
		state:      stateDeclared,
	}
	return nil
}

// Bootstrap runs the two-pass lifecycle for every declared instance:
// Code.Bootstrap once per distinct Code (first instance to need it wins),
// then Code.Instantiate once per instance, resolving sibling-config
// references along the way. An instance whose config is "= other" is
// instantiated using other's raw config and bootstrap data but still gets
// its own Instantiate call and its own opaque data (spec 4.2: "sibling
// section resolution... each gets independent instantiate data").
func (m *Manager) Bootstrap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.instances {
		if err := m.bootstrapOneLocked(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// bootstrapOneLocked resolves and instantiates a single instance, following
// sibling references recursively. path tracks the chain of names visited
// in this resolution so a cycle (A = B, B = A) is caught instead of
// recursing forever. Caller must hold m.mu.
func (m *Manager) bootstrapOneLocked(name string, path map[string]bool) error {
	in, ok := m.instances[name]
	if !ok {
		return fmt.Errorf("%w: sibling reference to %q", ErrNotFound, name)
	}
	if in.state == stateReady {
		return nil
	}
	if in.state == stateTransient {
		return fmt.Errorf("%w: %q", ErrCycle, name)
	}

	rawConfig := in.RawConfig
	if in.SiblingRef != "" {
		if path == nil {
			path = map[string]bool{name: true}
		} else if path[name] {
			return fmt.Errorf("%w: %q", ErrCycle, name)
		}
		path[name] = true

		in.state = stateTransient
		if err := m.bootstrapOneLocked(in.SiblingRef, path); err != nil {
			return err
		}
		sibling := m.instances[in.SiblingRef]
		rawConfig = sibling.RawConfig
	}

	in.state = stateTransient

	bootstrapData, err := m.bootstrapCodeLocked(in.Code, rawConfig)
	if err != nil {
		in.state = stateDeclared
		return err
	}

	data, err := in.Code.Instantiate(rawConfig, bootstrapData)
	if err != nil {
		in.state = stateDeclared
		return fmt.Errorf("%w: instance %q: %v", ErrInstantiateFailed, in.Name, err)
	}

	in.data = data
	in.state = stateReady
	if m.log != nil {
		m.log.Info("module instantiated", map[string]any{"instance": in.Name, "module": in.Code.Name})
	}
	return nil
}

// bootstrapCodeLocked runs Code.Bootstrap exactly once per distinct Code,
// memoizing the result so later instances of the same Code reuse it.
// Caller must hold m.mu.
func (m *Manager) bootstrapCodeLocked(code *Code, rawConfig []byte) (any, error) {
	if m.bootstrapped[code.Name] {
		return m.bootstraps[code.Name], nil
	}
	if code.Bootstrap == nil {
		m.bootstrapped[code.Name] = true
		return nil, nil
	}
	data, err := code.Bootstrap(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: module %q: %v", ErrBootstrapFailed, code.Name, err)
	}
	m.bootstraps[code.Name] = data
	m.bootstrapped[code.Name] = true
	return data, nil
}

// bootstrapDataFor returns the memoized Bootstrap data for a Code by name,
// for HUPController's re-Instantiate path.
func (m *Manager) bootstrapDataFor(codeName string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bootstraps[codeName]
}

// Instance returns the named instance, if declared and ready.
func (m *Manager) Instance(name string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instances[name]
	if !ok || in.state != stateReady {
		return nil, false
	}
	return in, true
}

// Names returns every declared instance name, for admin surfaces.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.instances))
	for name := range m.instances {
		names = append(names, name)
	}
	return names
}

// Detach tears down every instance, in no particular order (module
// instances do not depend on each other outside of sibling config sharing,
// which is resolved entirely during Bootstrap).
func (m *Manager) Detach() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, in := range m.instances {
		if in.state != stateReady || in.Code.Detach == nil {
			continue
		}
		if err := in.Code.Detach(in.data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("instance %q detach: %w", in.Name, err)
		}
		in.state = stateDeclared
	}
	return firstErr
}
