// Package reaper implements the optional ChildReaper, spec section 4.7: a
// PID registry for helper processes a policy module forks/execs (mirroring
// the detached-process bookkeeping in runtime/browser_reuse.go, generalized
// from "one browser server PID" to an arbitrary hashed map of PIDs), plus
// a non-blocking reap sweep and a bounded wait-for-exit poll.
package reaper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/reaper/ipc"
)

// entry tracks one forked child's state.
type entry struct {
	proc    *os.Process
	exited  bool
	status  int
	exitErr error

	// lastHelperStatus is the most recent status a helper reported of
	// itself over the optional IPC protocol, empty if the helper never
	// opened one (e.g. a bare exec with no pipe back to the core).
	lastHelperStatus ipc.HelperStatus
}

// Reaper is the core's PID registry. A policy module that exec's a helper
// registers the resulting PID here; the core periodically drains exited
// children without blocking the dispatch path.
type Reaper struct {
	log *log.Logger

	mu      sync.Mutex
	entries map[int]*entry
}

// New creates an empty Reaper.
func New(logger *log.Logger) *Reaper {
	return &Reaper{log: logger, entries: make(map[int]*entry)}
}

// Track registers proc's PID so the core's reap sweep and WaitFor will
// notice its exit.
func (r *Reaper) Track(proc *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[proc.Pid] = &entry{proc: proc}
}

// Reap drains exited children without blocking, per spec section 4.7
// "reap_children() drains waitpid(0, ..., WNOHANG)". Go's os.Process has
// no portable non-blocking wait, so this polls each tracked, not-yet-exited
// child's liveness via Signal(0) — a child that no longer exists is
// reaped; a still-live child is left tracked. This runs from the worker
// loop per spec section 4.6.2 step 4, so it must never block.
func (r *Reaper) Reap() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pid, e := range r.entries {
		if e.exited {
			continue
		}
		if err := e.proc.Signal(syscall.Signal(0)); err != nil {
			e.exited = true
			if r.log != nil {
				r.log.Debug("child reaped", map[string]any{"pid": pid})
			}
		}
	}
}

// WaitFor polls for pid's exit for up to 10s in 100ms slices, then gives
// up, per spec section 4.7 "wait_for(pid) polls for up to 10s in 100ms
// slices". Returns true if the child was observed to exit within the
// deadline, or if pid is not tracked at all.
func (r *Reaper) WaitFor(pid int) bool {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		e, ok := r.entries[pid]
		exited := ok && e.exited
		r.mu.Unlock()
		if !ok || exited {
			return true
		}
		time.Sleep(100 * time.Millisecond)
		r.Reap()
	}
	return false
}

// ListenHelper reads HelperMessage frames from r (the read end of a pipe
// to the child registered under pid) until the stream ends or a fatal
// framing error occurs, updating that child's tracked status as
// messages arrive. A HelperStatusDone or HelperStatusFailed message
// marks the child exited immediately, without waiting for Reap's
// liveness poll to notice the process has gone away. Intended to run in
// its own goroutine for the lifetime of the pipe; returns when the pipe
// closes.
func (r *Reaper) ListenHelper(pid int, rd io.Reader) {
	dec := ipc.NewFrameDecoder(rd)
	for {
		msg, err := dec.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && r.log != nil {
				r.log.Debug("helper ipc stream ended", map[string]any{"pid": pid, "error": err.Error()})
			}
			return
		}
		r.recordHelperMessage(pid, msg)
	}
}

func (r *Reaper) recordHelperMessage(pid int, msg *ipc.HelperMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[pid]
	if !ok {
		return
	}
	e.lastHelperStatus = msg.Status
	switch msg.Status {
	case ipc.HelperStatusFailed:
		e.exited = true
		e.exitErr = fmt.Errorf("helper %d: %s", pid, msg.Detail)
	case ipc.HelperStatusDone:
		e.exited = true
	}
}

// Forget removes pid from the registry regardless of exit state, for the
// case spec section 4.7 describes as giving up: "the PID remains a
// zombie for the OS but the core stops tracking it".
func (r *Reaper) Forget(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, pid)
}

// Tracked reports how many tracked children have not yet been seen to
// exit, for telemetry.
func (r *Reaper) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.exited {
			n++
		}
	}
	return n
}
