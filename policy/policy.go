// Package policy defines the dispatch-trace write policy: how
// trace.DispatchTraceRecord and trace.PoolStatsRecord values are buffered,
// dropped, and persisted as they flow out of the vserver dispatch loop.
//
// Grounded on the teacher's policy/ package, which governed scraper event
// envelope and artifact-chunk ingestion under the same
// buffer/drop/flush shape. RADIUS dispatch has a single append-only
// record stream rather than the teacher's event-stream-plus-binary-artifact
// pair, so the two-phase-commit flush modes (chunks-first, two-phase) have
// no reason to exist here — a trace record is never "committed after" a
// companion blob the way an artifact chunk was.
package policy

import (
	"context"

	"github.com/pithecene-io/quarry-radius/trace"
)

// Policy controls buffering, dropping, and persistence of trace records.
//
//   - May drop: any dispatch record whose rcode is not in trace's notable
//     set (see trace.IsNotable).
//   - Must NOT drop: notable dispatch records (reject/fail/user-lock/
//     disallow outcomes) and pool-stats snapshots.
//   - Policy failure (a non-nil error from IngestDispatchRecord/
//     IngestPoolStats/Flush) is returned to the caller; the core's dispatch
//     tracer logs it and the dispatch itself carries on.
type Policy interface {
	// IngestDispatchRecord handles one dispatch-trace record. May drop
	// droppable (non-notable) records under backpressure; must not drop
	// notable ones — return an error to terminate instead.
	IngestDispatchRecord(ctx context.Context, record *trace.DispatchTraceRecord) error

	// IngestPoolStats handles one pool-telemetry snapshot. Never dropped.
	IngestPoolStats(ctx context.Context, record *trace.PoolStatsRecord) error

	// Flush flushes any buffered data. Called periodically and on shutdown.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns an atomic snapshot of policy metrics.
	Stats() Stats
}

// Stats reports policy observability metrics.
type Stats struct {
	TotalDispatchRecords     int64
	DispatchRecordsPersisted int64
	DispatchRecordsDropped   int64
	TotalPoolStats           int64
	PoolStatsPersisted       int64
	BufferSize               int64
	FlushCount               int64
	Errors                   int64
}

// statsRecorder is a plain stats accumulator for policies that buffer.
// Mutation happens only while the owning policy holds its own buffer
// mutex, so statsRecorder itself needs no lock.
type statsRecorder struct {
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

// --- Locked methods for policies that hold their own buffer mutex ---

func (r *statsRecorder) incTotalDispatchLocked() { r.stats.TotalDispatchRecords++ }
func (r *statsRecorder) incDispatchPersistedLocked(n int64) {
	r.stats.DispatchRecordsPersisted += n
}
func (r *statsRecorder) incDispatchDroppedLocked() { r.stats.DispatchRecordsDropped++ }
func (r *statsRecorder) incTotalPoolStatsLocked()  { r.stats.TotalPoolStats++ }
func (r *statsRecorder) incPoolStatsPersistedLocked(n int64) {
	r.stats.PoolStatsPersisted += n
}
func (r *statsRecorder) incErrorsLocked()            { r.stats.Errors++ }
func (r *statsRecorder) incFlushLocked()             { r.stats.FlushCount++ }
func (r *statsRecorder) setBufferSizeLocked(n int64) { r.stats.BufferSize = n }

func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	return s
}

// IsDroppable reports whether record may be dropped by a lossy Policy.
// trace.NewDispatchTraceRecord already stamps Notable from the dispatch
// rcode; policies trust that flag rather than re-deriving it.
func IsDroppable(record *trace.DispatchTraceRecord) bool {
	return !record.Notable
}
