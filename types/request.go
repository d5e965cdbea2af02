package types

import "time"

// PacketCode is the protocol opcode of the inbound packet (access-request,
// accounting-request, ...). The core only distinguishes accounting packets
// (for admission control, spec section 4.5) from everything else; the exact
// enumeration is an external (codec) concern per spec section 1.
type PacketCode int

// The subset of packet codes the core cares about.
const (
	PacketCodeAccessRequest PacketCode = iota
	PacketCodeAccountingRequest
	PacketCodeCoARequest
	PacketCodeDisconnectRequest
	PacketCodeStatusServer
)

// ChildState is the worker-visible lifecycle state of a Request.
type ChildState int

const (
	// ChildQueued means the request is sitting in the priority heap or has
	// just been handed to the listener's caller; no worker owns it yet.
	ChildQueued ChildState = iota
	// ChildRunning means a worker is actively dispatching it.
	ChildRunning
	// ChildDone means the core will never touch the request again.
	ChildDone
)

// MasterState is written by the listener to request cooperative
// cancellation of a still-queued request.
type MasterState int

const (
	// MasterProcessing is the normal state: the core may dispatch the request.
	MasterProcessing MasterState = iota
	// MasterStopProcessing means the listener wants this request dropped
	// without dispatch, the next time the core looks at it.
	MasterStopProcessing
)

// ProcessAction distinguishes a worker's first invocation of a request from
// a resumption (a listener-defined continuation may want to know which).
type ProcessAction int

const (
	// ActionRun is the only action the core core itself issues today; the
	// listener's process continuation may define richer resumption actions
	// (e.g. proxy reply, timeout) that are opaque to the core.
	ActionRun ProcessAction = iota
)

// Processor is the listener-supplied continuation a worker invokes to
// actually run a request through the dispatcher. It is the external
// collaborator named in spec section 4.6.2 step 3.
type Processor func(req *Request, action ProcessAction) RCode

// Request is a transient value owned by the listener that submitted it via
// Core.Enqueue. The fields below are the ones the core itself reads or
// writes; everything else (packet bytes, attributes, reply construction)
// belongs to the listener and the codec and is invisible to the core.
//
// Invariant: once ChildState == ChildDone the core will never touch the
// request again (spec section 3).
type Request struct {
	// Number is a monotonic identifier assigned by the listener.
	Number uint64

	// Priority is the scheduling priority; lower values are more urgent.
	Priority int

	// Timestamp is the high-resolution arrival time, used for FIFO
	// tie-breaking and for the blocked-request diagnostic (spec section 4.5).
	Timestamp time.Time

	// Rounds is an EAP-style progress counter; higher means "further along",
	// used only by the "eap" queue comparator.
	Rounds int

	// PacketCode is the protocol opcode of the inbound packet.
	PacketCode PacketCode

	// Server is the name of the virtual server this request dispatches
	// through. Resolved by the Dispatcher on every call.
	Server string

	// Component is the current dispatch section name. Written by the
	// dispatcher on entry and restored to "<core>" on exit (spec section 4.3).
	Component string

	// Module is the current module instance name, written by
	// module.Instance.Invoke immediately before invoking a module method
	// (spec section 4.4) and cleared when that method returns.
	Module string

	// ChildState is the worker-visible lifecycle state.
	ChildState ChildState

	// MasterState is written by the listener to request cancellation.
	MasterState MasterState

	// Process is the listener-supplied continuation a worker calls to
	// actually run the request (spec section 4.6.2 step 3). Required.
	Process Processor

	// HeapIndex is scratch state for the priority heap (spec's heap_id);
	// it is exported only so the queue package (a sibling, not a subpackage)
	// can maintain it — callers must never read or write it themselves.
	HeapIndex int

	// HasPendingProxyReply distinguishes a request still waiting on an
	// upstream proxy reply from one that has simply sat in the queue too
	// long; used by the blocked-request diagnostic (spec section 4.5).
	HasPendingProxyReply bool
}

// IsAccounting reports whether this request is subject to the accounting
// admission-control path (spec section 4.5).
func (r *Request) IsAccounting() bool {
	return r.PacketCode == PacketCodeAccountingRequest
}
