package types

// RCode is the closed set of per-module/per-section return codes a module
// method or a compiled dispatch tree produces.
type RCode int

// The RCode enumeration, per spec section 4.3.
const (
	// RCodeOK means the module succeeded unambiguously.
	RCodeOK RCode = iota
	// RCodeHandled means the module handled the request; no further
	// processing in this section is required.
	RCodeHandled
	// RCodeReject means the module rejected the request outright.
	RCodeReject
	// RCodeFail means the module failed (internal error, collaborator
	// unavailable); distinct from an authoritative reject.
	RCodeFail
	// RCodeNoop means the module had nothing to do.
	RCodeNoop
	// RCodeNotFound means the module could not find the referenced entity.
	RCodeNotFound
	// RCodeInvalid means the request was malformed for this module.
	RCodeInvalid
	// RCodeUserLock means the identified user/session is administratively locked.
	RCodeUserLock
	// RCodeUpdated means the module updated state as a side effect.
	RCodeUpdated
	// RCodeDisallow means the module explicitly disallows the request.
	RCodeDisallow
)

var rcodeNames = [...]string{
	"ok", "handled", "reject", "fail", "noop",
	"notfound", "invalid", "userlock", "updated", "disallow",
}

// String renders the symbolic rcode name.
func (r RCode) String() string {
	if r < 0 || int(r) >= len(rcodeNames) {
		return "unknown"
	}
	return rcodeNames[r]
}
