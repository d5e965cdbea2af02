package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/trace"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferRecords is the maximum number of dispatch records to buffer.
	// Zero means no limit (use MaxBufferBytes instead).
	MaxBufferRecords int

	// MaxBufferBytes is the maximum buffer size in bytes (estimated).
	// Zero means no limit (use MaxBufferRecords instead).
	// At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferRecords: 1000,
		MaxBufferBytes:   10 * 1024 * 1024,
	}
}

// ErrBufferFull is returned when the buffer is full and the incoming
// dispatch record is notable (must not be dropped).
var ErrBufferFull = errors.New("buffer full: cannot accept notable dispatch record")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferRecords or MaxBufferBytes must be set")

// BufferedPolicy implements buffered persistence with drop rules.
//
//   - Bounded buffer with explicit limits.
//   - May drop droppable dispatch records (see IsDroppable) when full.
//   - Must NOT drop notable dispatch records or pool-stats snapshots.
//   - Batch writes on flush.
//
// Unlike the teacher's buffered policy, there is a single record stream —
// no artifact-chunk/event ordering invariant to preserve across buffers.
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu              sync.Mutex
	dispatchBuffer  []*trace.DispatchTraceRecord
	poolStatsBuffer []*trace.PoolStatsRecord
	bufferBytes     int64
	stats           *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy writing to sink.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferRecords <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:            sink,
		config:          config,
		logger:          config.Logger,
		dispatchBuffer:  make([]*trace.DispatchTraceRecord, 0, max(config.MaxBufferRecords, 100)),
		poolStatsBuffer: make([]*trace.PoolStatsRecord, 0, 16),
		stats:           newStatsRecorder(),
	}, nil
}

// IngestDispatchRecord buffers the record, applying drop rules if full.
//
// Drop strategy when full:
//   - Incoming record droppable: drop it, record in stats.
//   - Incoming record notable and buffer has droppable records: evict
//     oldest droppable to make room.
//   - Incoming record notable and no droppable records to evict: error
//     (policy failure).
func (p *BufferedPolicy) IngestDispatchRecord(_ context.Context, record *trace.DispatchTraceRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalDispatchLocked()

	size := p.estimateRecordSize(record)

	if p.hasRoomForRecord(size) {
		p.appendRecord(record, size)
		return nil
	}

	if IsDroppable(record) {
		p.stats.incDispatchDroppedLocked()
		p.logDrop("buffer_full")
		return nil
	}

	if p.dropOldestDroppable() && p.hasRoomForBytes(size) {
		p.appendRecord(record, size)
		return nil
	}

	p.stats.incErrorsLocked()
	p.logBufferOverflow()
	return ErrBufferFull
}

func (p *BufferedPolicy) appendRecord(record *trace.DispatchTraceRecord, size int64) {
	p.dispatchBuffer = append(p.dispatchBuffer, record)
	p.bufferBytes += size
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

// IngestPoolStats buffers the snapshot. Pool-stats records are never
// dropped; if the byte limit would be exceeded the policy fails.
func (p *BufferedPolicy) IngestPoolStats(_ context.Context, record *trace.PoolStatsRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalPoolStatsLocked()

	const estSize = 200
	if p.config.MaxBufferBytes > 0 && p.bufferBytes+estSize > p.config.MaxBufferBytes {
		p.stats.incErrorsLocked()
		return ErrBufferFull
	}

	p.poolStatsBuffer = append(p.poolStatsBuffer, record)
	p.bufferBytes += estSize
	p.stats.setBufferSizeLocked(p.bufferBytes)
	return nil
}

// Flush writes all buffered records to the sink, preserving both buffers
// on any failure (prefer duplicates on retry over data loss).
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.stats.incFlushLocked()
	dispatch := p.dispatchBuffer
	poolStats := p.poolStatsBuffer
	p.mu.Unlock()

	if len(dispatch) > 0 {
		if err := p.sink.WriteDispatchRecords(ctx, dispatch); err != nil {
			p.mu.Lock()
			p.stats.incErrorsLocked()
			p.mu.Unlock()
			p.logFlushFailure("dispatch", err)
			return err
		}
		p.mu.Lock()
		p.stats.incDispatchPersistedLocked(int64(len(dispatch)))
		p.mu.Unlock()
	}

	if len(poolStats) > 0 {
		if err := p.sink.WritePoolStats(ctx, poolStats); err != nil {
			p.mu.Lock()
			p.stats.incErrorsLocked()
			p.mu.Unlock()
			p.logFlushFailure("pool_stats", err)
			return err
		}
		p.mu.Lock()
		p.stats.incPoolStatsPersistedLocked(int64(len(poolStats)))
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.clearBuffers()
	p.mu.Unlock()
	return nil
}

func (p *BufferedPolicy) clearBuffers() {
	p.dispatchBuffer = make([]*trace.DispatchTraceRecord, 0, max(p.config.MaxBufferRecords, 100))
	p.poolStatsBuffer = make([]*trace.PoolStatsRecord, 0, 16)
	p.recalculateBufferBytes()
}

func (p *BufferedPolicy) recalculateBufferBytes() {
	var total int64
	for _, r := range p.dispatchBuffer {
		total += p.estimateRecordSize(r)
	}
	total += int64(len(p.poolStatsBuffer)) * 200
	p.bufferBytes = total
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

// Close flushes remaining data and closes the sink.
func (p *BufferedPolicy) Close() error {
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of policy metrics.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(p.bufferBytes)
}

func (p *BufferedPolicy) hasRoomForRecord(size int64) bool {
	if p.config.MaxBufferRecords > 0 && len(p.dispatchBuffer) >= p.config.MaxBufferRecords {
		return false
	}
	return p.hasRoomForBytes(size)
}

func (p *BufferedPolicy) hasRoomForBytes(size int64) bool {
	if p.config.MaxBufferBytes > 0 && p.bufferBytes+size > p.config.MaxBufferBytes {
		return false
	}
	return true
}

// dropOldestDroppable removes the oldest droppable dispatch record from the
// buffer. Returns true if a record was dropped. Caller must hold mu.
func (p *BufferedPolicy) dropOldestDroppable() bool {
	for i, r := range p.dispatchBuffer {
		if IsDroppable(r) {
			size := p.estimateRecordSize(r)
			p.dispatchBuffer = append(p.dispatchBuffer[:i], p.dispatchBuffer[i+1:]...)
			p.bufferBytes -= size
			p.stats.setBufferSizeLocked(p.bufferBytes)
			p.stats.incDispatchDroppedLocked()
			p.logDrop("evicted_for_notable")
			return true
		}
	}
	return false
}

// estimateRecordSize returns an estimated size in bytes for a dispatch
// record, used for buffer accounting.
func (p *BufferedPolicy) estimateRecordSize(_ *trace.DispatchTraceRecord) int64 {
	return 200
}

func (p *BufferedPolicy) logDrop(reason string) {
	if p.logger == nil {
		return
	}
	p.logger.Warn("dispatch record dropped", map[string]any{
		"reason": reason,
		"policy": "buffered",
	})
}

func (p *BufferedPolicy) logBufferOverflow() {
	if p.logger == nil {
		return
	}
	p.logger.Error("buffer overflow", map[string]any{
		"policy": "buffered",
	})
}

func (p *BufferedPolicy) logFlushFailure(bufferType string, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"buffer_type": bufferType,
		"error":       err.Error(),
		"policy":      "buffered",
	})
}

var _ Policy = (*BufferedPolicy)(nil)
