// Package trace implements an optional Hive-partitioned dispatch-trace
// archive: a durable, queryable record of what indexed_modcall dispatched,
// to which server/component, and with what outcome. Grounded on
// the teacher's lode/ package (justapithecus/lode), adapted from
// artifact/event ingestion to a single append-only trace-record stream —
// RADIUS dispatch has no analogue of the teacher's binary artifact chunks
// or multi-phase commit, so that machinery is dropped rather than carried
// along unused.
package trace

import (
	"time"

	"github.com/pithecene-io/quarry-radius/types"
)

// RecordKind discriminates the two record shapes written to the archive.
const (
	RecordKindDispatch = "dispatch"
	RecordKindPoolStats = "pool_stats"
)

// DispatchTraceRecord is one indexed_modcall dispatch outcome, spec section
// 4.3/4.4. Emitted by the vserver.Dispatcher when tracing is enabled.
type DispatchTraceRecord struct {
	RecordKind string `json:"record_kind"`

	RequestID string `json:"request_id"`
	Server    string `json:"server"`
	Component string `json:"component"`
	Index     int    `json:"index"`
	// Module is the Request's Module value when the dispatch tree returns.
	// module.Instance.Invoke clears that value when each method returns,
	// so records of calls into module instances carry an empty Module.
	Module    string `json:"module,omitempty"`
	RCode     string `json:"rcode"`
	DurationUs int64  `json:"duration_us"`
	Timestamp string `json:"timestamp"`

	// Notable records (a reject, fail, userlock or disallow outcome; see
	// IsNotable) are never dropped by a lossy Policy, mirroring the
	// teacher's "must not drop: item, artifact, ..." distinction but keyed
	// off rcode rather than an event-type allowlist.
	Notable bool `json:"notable"`
}

// notableRCodes mirrors droppableTypes in the teacher's policy package: the
// small set of outcomes a lossy policy must never discard.
var notableRCodes = map[types.RCode]bool{
	types.RCodeReject:   true,
	types.RCodeFail:     true,
	types.RCodeUserLock: true,
	types.RCodeDisallow: true,
}

// IsNotable reports whether rc must never be dropped by a lossy Policy.
func IsNotable(rc types.RCode) bool {
	return notableRCodes[rc]
}

// NewDispatchTraceRecord builds a trace record for one dispatch outcome.
func NewDispatchTraceRecord(requestID, server, component string, index int, module string, rc types.RCode, duration time.Duration, now time.Time) *DispatchTraceRecord {
	return &DispatchTraceRecord{
		RecordKind: RecordKindDispatch,
		RequestID:  requestID,
		Server:     server,
		Component:  component,
		Index:      index,
		Module:     module,
		RCode:      rc.String(),
		DurationUs: duration.Microseconds(),
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
		Notable:    IsNotable(rc),
	}
}

// DeriveDay computes the Hive "day" partition value from a timestamp.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// PoolStatsRecord is a periodic telemetry snapshot, the trace-archive
// counterpart of adapter.EventPoolStats.
type PoolStatsRecord struct {
	RecordKind string `json:"record_kind"`

	Timestamp    string  `json:"timestamp"`
	QueueLength  int     `json:"queue_length"`
	InputPPS     float64 `json:"input_pps"`
	OutputPPS    float64 `json:"output_pps"`
	TotalBlocked uint64  `json:"total_blocked"`
	PoolTotal    int     `json:"pool_total"`
	PoolIdle     int     `json:"pool_idle"`
	PoolActive   int     `json:"pool_active"`
}
