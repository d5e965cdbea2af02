package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/quarry-radius/trace"
)

// Sink abstracts persistence for policies. Implementations write to the
// trace archive or stub for testing. Methods are batch-oriented to support
// both strict (batch of 1) and buffered policies.
type Sink interface {
	// WriteDispatchRecords persists a batch of dispatch-trace records.
	// Must preserve ordering within the batch.
	WriteDispatchRecords(ctx context.Context, records []*trace.DispatchTraceRecord) error

	// WritePoolStats persists a batch of pool-stats snapshots.
	WritePoolStats(ctx context.Context, records []*trace.PoolStatsRecord) error

	// Close releases any resources held by the sink.
	Close() error
}

// WriteOp records a write operation for ordering verification in tests.
type WriteOp struct {
	Type      string // "dispatch" or "pool_stats"
	Dispatch  []*trace.DispatchTraceRecord
	PoolStats []*trace.PoolStatsRecord
}

// StubSink is a test sink that accepts writes without persisting.
type StubSink struct {
	mu sync.Mutex

	DispatchWritten  int64
	PoolStatsWritten int64
	DispatchBatches  int64
	PoolStatsBatches int64
	Closed           bool

	WrittenDispatch  []*trace.DispatchTraceRecord
	WrittenPoolStats []*trace.PoolStatsRecord
	WriteOrder       []WriteOp

	// ErrorOnWrite, if non-nil, is returned by both write methods.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

func (s *StubSink) WriteDispatchRecords(_ context.Context, records []*trace.DispatchTraceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.DispatchBatches++
	s.DispatchWritten += int64(len(records))
	s.WrittenDispatch = append(s.WrittenDispatch, records...)
	s.WriteOrder = append(s.WriteOrder, WriteOp{Type: "dispatch", Dispatch: records})
	return nil
}

func (s *StubSink) WritePoolStats(_ context.Context, records []*trace.PoolStatsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.PoolStatsBatches++
	s.PoolStatsWritten += int64(len(records))
	s.WrittenPoolStats = append(s.WrittenPoolStats, records...)
	s.WriteOrder = append(s.WriteOrder, WriteOp{Type: "pool_stats", PoolStats: records})
	return nil
}

func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		DispatchWritten:  s.DispatchWritten,
		PoolStatsWritten: s.PoolStatsWritten,
		DispatchBatches:  s.DispatchBatches,
		PoolStatsBatches: s.PoolStatsBatches,
		Closed:           s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	DispatchWritten  int64
	PoolStatsWritten int64
	DispatchBatches  int64
	PoolStatsBatches int64
	Closed           bool
}

// Verify trace.Sink and trace.InstrumentedSink satisfy policy.Sink.
var _ Sink = (*trace.Sink)(nil)
var _ Sink = (*trace.InstrumentedSink)(nil)
