// Package metrics provides process-lifetime metrics collection for a
// radiusd instance: requests accepted/dropped, HUP reconfigure outcomes,
// and the absorbed dispatch-trace write policy stats.
//
// Grounded on the teacher's metrics/collector.go, which accumulated
// per-run counters for a scrape job. A radiusd instance has no notion of
// a "run" — it is a long-lived process — so lifecycle counters are
// reframed around HUP (the RADIUS analogue of a restart) instead of
// run start/complete/fail/crash, and "Lode write" becomes "trace write"
// against the dispatch-trace archive.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of collector counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Requests
	RequestsAccepted int64
	RequestsDropped  int64

	// HUP (reconfigure) outcomes
	HUPSucceeded int64
	HUPFailed    int64

	// Trace archive writes (absorbed from policy.Stats and live write calls)
	TraceWriteSuccess int64
	TraceWriteFailure int64

	DispatchRecordsReceived  int64
	DispatchRecordsPersisted int64
	DispatchRecordsDropped   int64

	// Dimensions (informational, set at construction)
	Policy         string
	StorageBackend string
	Instance       string
}

// Collector accumulates metrics for the lifetime of a radiusd instance.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe
// so a Collector may be wired optionally (metrics disabled == nil).
type Collector struct {
	mu sync.Mutex

	requestsAccepted int64
	requestsDropped  int64

	hupSucceeded int64
	hupFailed    int64

	traceWriteSuccess int64
	traceWriteFailure int64

	dispatchReceived  int64
	dispatchPersisted int64
	dispatchDropped   int64

	policy         string
	storageBackend string
	instance       string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, storageBackend, instance string) *Collector {
	return &Collector{
		policy:         policy,
		storageBackend: storageBackend,
		instance:       instance,
	}
}

// --- Requests ---

// IncRequestsAccepted records a request the pool accepted for dispatch.
func (c *Collector) IncRequestsAccepted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsAccepted++
	c.mu.Unlock()
}

// IncRequestsDropped records a request the queue or pool dropped (queue
// full at max_queue_size, or an accounting packet dropped by admission
// control).
func (c *Collector) IncRequestsDropped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsDropped++
	c.mu.Unlock()
}

// --- HUP ---

// IncHUPSucceeded records a successful SIGHUP reconfigure.
func (c *Collector) IncHUPSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.hupSucceeded++
	c.mu.Unlock()
}

// IncHUPFailed records a failed SIGHUP reconfigure (instance left running
// the prior configuration per the spec's HUP-failure-is-non-fatal rule).
func (c *Collector) IncHUPFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.hupFailed++
	c.mu.Unlock()
}

// --- Trace archive ---
// Trace counters are per-call, not per-record: a single WriteDispatchRecords
// call with N records counts as one success. Per-record granularity is
// tracked separately via AbsorbPolicyStats.

// IncTraceWriteSuccess records a successful trace-archive write call.
// Satisfies trace.Collector, so a *Collector can back trace.InstrumentedSink.
func (c *Collector) IncTraceWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.traceWriteSuccess++
	c.mu.Unlock()
}

// IncTraceWriteFailure records a failed trace-archive write call.
func (c *Collector) IncTraceWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.traceWriteFailure++
	c.mu.Unlock()
}

// --- Policy absorption ---

// AbsorbPolicyStats copies dispatch-record counters from policy.Stats into
// the collector. Called periodically (or at shutdown) with the latest
// policy stats snapshot.
func (c *Collector) AbsorbPolicyStats(received, persisted, dropped int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.dispatchReceived = received
	c.dispatchPersisted = persisted
	c.dispatchDropped = dropped
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RequestsAccepted: c.requestsAccepted,
		RequestsDropped:  c.requestsDropped,

		HUPSucceeded: c.hupSucceeded,
		HUPFailed:    c.hupFailed,

		TraceWriteSuccess: c.traceWriteSuccess,
		TraceWriteFailure: c.traceWriteFailure,

		DispatchRecordsReceived:  c.dispatchReceived,
		DispatchRecordsPersisted: c.dispatchPersisted,
		DispatchRecordsDropped:   c.dispatchDropped,

		Policy:         c.policy,
		StorageBackend: c.storageBackend,
		Instance:       c.instance,
	}
}
