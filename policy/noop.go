package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/quarry-radius/trace"
)

// NoopPolicy accepts all records but does not persist them. Used for
// testing and for instances that run with tracing disabled.
//
// Droppable dispatch records are counted as dropped; notable ones and all
// pool-stats snapshots are counted as persisted, even though noop doesn't
// actually persist anything — this keeps Stats semantics identical to a
// real policy's.
type NoopPolicy struct {
	mu    sync.Mutex
	stats Stats
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{}
}

func (p *NoopPolicy) IngestDispatchRecord(_ context.Context, record *trace.DispatchTraceRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalDispatchRecords++
	if IsDroppable(record) {
		p.stats.DispatchRecordsDropped++
	} else {
		p.stats.DispatchRecordsPersisted++
	}
	return nil
}

func (p *NoopPolicy) IngestPoolStats(_ context.Context, _ *trace.PoolStatsRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalPoolStats++
	p.stats.PoolStatsPersisted++
	return nil
}

func (p *NoopPolicy) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.FlushCount++
	return nil
}

func (p *NoopPolicy) Close() error { return nil }

func (p *NoopPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

var _ Policy = (*NoopPolicy)(nil)
