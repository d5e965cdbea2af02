package module

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"runtime"
	"strings"
	"sync"

	"github.com/pithecene-io/quarry-radius/log"
)

// EntryPointSymbol is the exported symbol every dynamically loaded .so must
// provide: a niladic function returning *Code.
const EntryPointSymbol = "QuarryRadiusModule"

// libraryPathEnv is the environment override variable for the dynamic
// module search path, overriding the configured library directory when
// set (spec section 6 "Environment overrides (thread-pool & loader):
// FR_LIBRARY_PATH").
const libraryPathEnv = "FR_LIBRARY_PATH"

// librarySuffix is the platform-specific shared object extension. Go's
// plugin package only supports linux/darwin/freebsd; switched on GOOS the
// same way the teacher's own platform-dependent code does (e.g.
// giantswarm-muster's browser.go, go-ethereum's internal/cli/server/config.go).
func librarySuffix() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// libraryCandidates builds the ordered list of filesystem paths Load should
// try for name, per spec section 4.1's search order:
//
//  1. If explicit is non-empty, the configuration gave an exact shared
//     object path for this instance and nothing else is tried.
//  2. Otherwise the library is named "<prefix>_<name>" with the platform
//     suffix, searched for in each colon-separated directory of the
//     FR_LIBRARY_PATH environment override if set, else each directory of
//     the configured library_path, in order.
//  3. Finally the bare stem is tried unqualified, letting the OS dynamic
//     loader fall back to its own search path (LD_LIBRARY_PATH and
//     friends) exactly as dlopen(3) would.
func (r *Registry) libraryCandidates(name, explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}

	stem := fmt.Sprintf("%s_%s%s", r.host.Prefix, name, librarySuffix())

	var dirs []string
	if override := os.Getenv(libraryPathEnv); override != "" {
		dirs = strings.Split(override, ":")
	} else {
		dirs = r.libraryPath
	}

	candidates := make([]string, 0, len(dirs)+1)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, stem))
	}
	return append(candidates, stem)
}

// staticCodes holds modules embedded into the host binary at build time.
// Registry.Load tries this map before ever touching the filesystem, so a
// statically linked module always wins over a shared object of the same
// name (spec section 4.1 "statically embedded modules are tried first").
var (
	staticMu    sync.RWMutex
	staticCodes = map[string]*Code{}
)

// Register adds a statically embedded Code under its own name. Intended to
// be called from an example module's package init(). Panics on duplicate
// registration, the same way database/sql driver registration does: a
// second static registration under one name is a build-time programming
// error, not a runtime condition to recover from.
func Register(code *Code) {
	staticMu.Lock()
	defer staticMu.Unlock()
	if _, exists := staticCodes[code.Name]; exists {
		panic(fmt.Sprintf("module: Register called twice for %q", code.Name))
	}
	staticCodes[code.Name] = code
}

// Registry resolves module type names to Codes, caching shared-object loads
// so that two instances of the same module type never dlopen it twice.
type Registry struct {
	host        Magic
	libraryPath []string
	log         *log.Logger

	mu      sync.Mutex
	loaded  map[string]*Code
	plugins map[string]*plugin.Plugin // path -> handle, kept for symmetry with C's dlclose bookkeeping; plugin has no Close
}

// NewRegistry builds a Registry that checks every loaded Code's magic
// against host, searching libraryPath (the configured library_path
// directories, spec section 4.1) for dynamically loaded modules whose
// configuration gave no explicit path.
func NewRegistry(host Magic, libraryPath []string, logger *log.Logger) *Registry {
	return &Registry{
		host:        host,
		libraryPath: libraryPath,
		log:         logger,
		loaded:      make(map[string]*Code),
		plugins:     make(map[string]*plugin.Plugin),
	}
}

// Load resolves name to a Code: first against the static registration map,
// then against a dynamically loaded shared object. path, if non-empty, is
// an explicit override naming the exact shared object to open; otherwise
// the library is located by searching libraryCandidates (spec section 4.1's
// search order: FR_LIBRARY_PATH override, else the configured library_path
// directories, else the dynamic loader's own search path). The result is
// cached by name; a second Load of the same name returns the cached Code
// without re-opening anything.
func (r *Registry) Load(name, path string) (*Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.loaded[name]; ok {
		return code, nil
	}

	if code := r.lookupStatic(name); code != nil {
		// A statically registered Code is compiled into this very binary,
		// so its ABI can never actually drift from the host's: the magic
		// fingerprint check below exists for .so modules built and shipped
		// separately, not for these.
		r.loaded[name] = code
		if r.log != nil {
			r.log.Info("module loaded (static)", map[string]any{"module": name})
		}
		return code, nil
	}

	code, err := r.loadDynamic(name, path)
	if err != nil {
		return nil, err
	}
	if err := code.Magic.Check(r.host); err != nil {
		return nil, err
	}
	r.loaded[name] = code
	if r.log != nil {
		r.log.Info("module loaded (dynamic)", map[string]any{"module": name, "path": path})
	}
	return code, nil
}

func (r *Registry) lookupStatic(name string) *Code {
	staticMu.RLock()
	defer staticMu.RUnlock()
	return staticCodes[name]
}

// loadDynamic resolves name to a shared object and invokes its exported
// entry point, trying each of libraryCandidates(name, path) in order and
// returning the first that opens. Caller must hold r.mu.
func (r *Registry) loadDynamic(name, path string) (*Code, error) {
	candidates := r.libraryCandidates(name, path)

	var openErrs []string
	for _, candidate := range candidates {
		code, err := r.loadDynamicAt(name, candidate)
		if err != nil {
			openErrs = append(openErrs, err.Error())
			continue
		}
		return code, nil
	}
	return nil, fmt.Errorf("%w: %q: %s", ErrNotFound, name, strings.Join(openErrs, "; "))
}

// loadDynamicAt opens the shared object at path (or reuses a cached
// handle) and resolves its entry point. Caller must hold r.mu.
func (r *Registry) loadDynamicAt(name, path string) (*Code, error) {
	p, ok := r.plugins[path]
	if !ok {
		var err error
		p, err = plugin.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %q: %v", path, err)
		}
		r.plugins[path] = p
	}

	sym, err := p.Lookup(EntryPointSymbol)
	if err != nil {
		return nil, fmt.Errorf("%q missing symbol %s: %v", path, EntryPointSymbol, err)
	}
	entry, ok := sym.(func() *Code)
	if !ok {
		return nil, fmt.Errorf("%q symbol %s has the wrong type", path, EntryPointSymbol)
	}

	code := entry()
	if code == nil {
		return nil, fmt.Errorf("%q entry point returned nil", path)
	}
	if code.Name != name {
		return nil, fmt.Errorf("%q declares name %q, configuration asked for %q", path, code.Name, name)
	}
	return code, nil
}

// Loaded returns the names of every Code resolved so far, for admin
// surfaces like "radiusd modules list".
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}
	return names
}
