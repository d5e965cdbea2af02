package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/quarry-radius/trace"
)

// StrictPolicy implements synchronous, unbuffered persistence: every record
// is written immediately (batch of 1), nothing is dropped, and the caller
// blocks on sink latency. Sink errors fail the policy.
type StrictPolicy struct {
	sink Sink

	mu    sync.Mutex
	stats Stats
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink}
}

func (p *StrictPolicy) IngestDispatchRecord(ctx context.Context, record *trace.DispatchTraceRecord) error {
	p.mu.Lock()
	p.stats.TotalDispatchRecords++
	p.mu.Unlock()

	if err := p.sink.WriteDispatchRecords(ctx, []*trace.DispatchTraceRecord{record}); err != nil {
		p.mu.Lock()
		p.stats.Errors++
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.stats.DispatchRecordsPersisted++
	p.mu.Unlock()
	return nil
}

func (p *StrictPolicy) IngestPoolStats(ctx context.Context, record *trace.PoolStatsRecord) error {
	p.mu.Lock()
	p.stats.TotalPoolStats++
	p.mu.Unlock()

	if err := p.sink.WritePoolStats(ctx, []*trace.PoolStatsRecord{record}); err != nil {
		p.mu.Lock()
		p.stats.Errors++
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.stats.PoolStatsPersisted++
	p.mu.Unlock()
	return nil
}

// Flush is a no-op: StrictPolicy never buffers.
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.FlushCount++
	return nil
}

func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

func (p *StrictPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

var _ Policy = (*StrictPolicy)(nil)
