package module

import "errors"

// Sentinel errors for the module lifecycle, following the teacher's
// sentinel-plus-%w-wrapping idiom (policy/buffered.go ErrBufferFull,
// lode/errors.go).
var (
	// ErrMagicPrefix, ErrMagicVersion, ErrMagicCommit are the three
	// sub-kinds of LoadError from spec section 4.1/7.
	ErrMagicPrefix  = errors.New("module ABI prefix mismatch")
	ErrMagicVersion = errors.New("module ABI version mismatch")
	ErrMagicCommit  = errors.New("module ABI commit mismatch")

	// ErrNotFound means no shared library or statically-embedded code was
	// found under the given name.
	ErrNotFound = errors.New("module not found")

	// ErrDuplicateInstance means two instances were declared with the same
	// name within the same modules-section (spec section 4.2 step 2).
	ErrDuplicateInstance = errors.New("duplicate module instance name")

	// ErrReservedName means an instance name collides with a reserved word
	// of the configuration language (spec section 4.2 step 1).
	ErrReservedName = errors.New("module instance name is reserved")

	// ErrCycle means sibling-section resolution detected a cycle (spec
	// section 4.2 "sibling section resolution").
	ErrCycle = errors.New("cyclic sibling section reference")

	// ErrNotInstantiated means a caller tried to dispatch through an
	// instance before Instantiate ran.
	ErrNotInstantiated = errors.New("module instance not instantiated")

	// ErrHUPNotSafe means HUP was requested on an instance whose code is
	// not HUP_SAFE, has a bootstrap hook, or has no instantiate hook (spec
	// section 4.2 "HUP (reconfigure live)").
	ErrHUPNotSafe = errors.New("module instance is not HUP-safe")

	// errHUPTooSoon means the only reason HUP is not eligible is the
	// minHUPInterval gate; unlike every other eligibility failure this is
	// not reported to the caller as an error (spec section 8: "HUP twice
	// within 2s: second call returns success but is a no-op").
	errHUPTooSoon = errors.New("module instance HUPed too recently")

	// ErrBootstrapFailed and ErrInstantiateFailed wrap the underlying
	// error returned by a module's Bootstrap/Instantiate hook.
	ErrBootstrapFailed   = errors.New("module bootstrap failed")
	ErrInstantiateFailed = errors.New("module instantiate failed")
)

// reservedWords are configuration-language keywords an instance name must
// not collide with, per spec section 4.2 step 1. Grounded on the small,
// fixed keyword sets the teacher validates against (cli/config/config.go
// FlushMode enum, proxy ProxyStrategy enum) — a short closed list, not a
// full parser.
var reservedWords = map[string]bool{
	"group": true, "redundant": true, "load-balance": true,
	"redundant-load-balance": true, "if": true, "else": true, "elsif": true,
	"switch": true, "case": true, "foreach": true, "return": true,
	"update": true, "map": true,
}

// IsReservedWord reports whether name collides with a configuration
// language keyword.
func IsReservedWord(name string) bool {
	return reservedWords[name]
}
