package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/trace"
)

// StreamingConfig configures a StreamingPolicy.
type StreamingConfig struct {
	// FlushCount triggers a flush after N dispatch records accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	FlushTriggerCount       FlushTrigger = "count"
	FlushTriggerInterval    FlushTrigger = "interval"
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrStreamingInvalidConfig is returned when StreamingConfig is invalid.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount or FlushInterval must be set")

// StreamingPolicy implements continuous persistence with batched writes.
//
//   - No drops: every dispatch record and pool-stats snapshot is persisted.
//   - In-memory buffer: records accumulate until a flush trigger fires;
//     the buffer itself has no size limit.
//   - Periodic flush: buffer flushed when any trigger fires.
//
// Thread safety mirrors the teacher's streaming policy: mu guards buffer
// state, flushMu serializes flush operations against the interval goroutine
// and count-triggered flushes racing each other.
type StreamingPolicy struct {
	sink   Sink
	config StreamingConfig
	logger *log.Logger

	mu              sync.Mutex
	dispatchBuffer  []*trace.DispatchTraceRecord
	poolStatsBuffer []*trace.PoolStatsRecord
	bufferBytes     int64
	stats           *statsRecorder

	flushMu sync.Mutex

	flushByCount       int64
	flushByInterval    int64
	flushByTermination int64

	stopCh  chan struct{}
	stopped bool
}

// NewStreamingPolicy creates a new streaming policy.
func NewStreamingPolicy(sink Sink, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrStreamingInvalidConfig
	}

	p := &StreamingPolicy{
		sink:           sink,
		config:         config,
		logger:         config.Logger,
		dispatchBuffer: make([]*trace.DispatchTraceRecord, 0, 128),
		stats:          newStatsRecorder(),
		stopCh:         make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go p.intervalLoop()
	}

	return p, nil
}

// IngestDispatchRecord adds the record to the buffer. Never drops. If the
// count threshold is reached, triggers a flush.
func (p *StreamingPolicy) IngestDispatchRecord(ctx context.Context, record *trace.DispatchTraceRecord) error {
	p.mu.Lock()
	p.stats.incTotalDispatchLocked()
	p.dispatchBuffer = append(p.dispatchBuffer, record)
	p.bufferBytes += 200
	p.stats.setBufferSizeLocked(p.bufferBytes)
	shouldFlush := p.config.FlushCount > 0 && len(p.dispatchBuffer) >= p.config.FlushCount
	p.mu.Unlock()

	if shouldFlush {
		return p.triggerFlush(ctx, FlushTriggerCount)
	}
	return nil
}

// IngestPoolStats adds the snapshot to the buffer. Never dropped.
func (p *StreamingPolicy) IngestPoolStats(_ context.Context, record *trace.PoolStatsRecord) error {
	p.mu.Lock()
	p.stats.incTotalPoolStatsLocked()
	p.poolStatsBuffer = append(p.poolStatsBuffer, record)
	p.bufferBytes += 200
	p.stats.setBufferSizeLocked(p.bufferBytes)
	p.mu.Unlock()
	return nil
}

// Flush flushes all buffered data (run-termination trigger).
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.triggerFlush(ctx, FlushTriggerTermination)
}

// triggerFlush performs a flush with the given trigger reason, serialized
// by flushMu. Buffers are swapped under mu and written outside it so
// ingestion can keep appending to fresh buffers during the write.
func (p *StreamingPolicy) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	switch trigger {
	case FlushTriggerCount:
		p.flushByCount++
	case FlushTriggerInterval:
		p.flushByInterval++
	case FlushTriggerTermination:
		p.flushByTermination++
	}
	p.stats.incFlushLocked()

	dispatch := p.dispatchBuffer
	poolStats := p.poolStatsBuffer

	if len(dispatch) == 0 && len(poolStats) == 0 {
		p.mu.Unlock()
		return nil
	}

	p.dispatchBuffer = make([]*trace.DispatchTraceRecord, 0, 128)
	p.poolStatsBuffer = nil
	p.recalculateBufferBytes()
	p.mu.Unlock()

	if len(dispatch) > 0 {
		if err := p.sink.WriteDispatchRecords(ctx, dispatch); err != nil {
			p.mu.Lock()
			p.stats.incErrorsLocked()
			p.dispatchBuffer = append(dispatch, p.dispatchBuffer...)
			p.recalculateBufferBytes()
			p.mu.Unlock()
			p.logFlushFailure("dispatch", trigger, err)
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
			p.poolStatsBuffer = append(poolStats, p.poolStatsBuffer...)
			p.recalculateBufferBytes()
			p.mu.Unlock()
			p.logFlushFailure("pool_stats", trigger, err)
			return err
		}
		p.mu.Lock()
		p.stats.incPoolStatsPersistedLocked(int64(len(poolStats)))
		p.mu.Unlock()
	}

	p.logFlush(trigger, len(dispatch), len(poolStats))
	return nil
}

// Close stops the interval goroutine and closes the sink.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()

	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of policy metrics.
func (p *StreamingPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(p.bufferBytes)
}

// FlushTriggerStats returns per-trigger flush counts for observability.
func (p *StreamingPolicy) FlushTriggerStats() map[FlushTrigger]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[FlushTrigger]int64{
		FlushTriggerCount:       p.flushByCount,
		FlushTriggerInterval:    p.flushByInterval,
		FlushTriggerTermination: p.flushByTermination,
	}
}

func (p *StreamingPolicy) intervalLoop() {
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			hasData := len(p.dispatchBuffer) > 0 || len(p.poolStatsBuffer) > 0
			p.mu.Unlock()

			if hasData {
				_ = p.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *StreamingPolicy) recalculateBufferBytes() {
	total := int64(len(p.dispatchBuffer))*200 + int64(len(p.poolStatsBuffer))*200
	p.bufferBytes = total
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

func (p *StreamingPolicy) logFlush(trigger FlushTrigger, dispatch, poolStats int) {
	if p.logger == nil {
		return
	}
	p.logger.Info("streaming flush", map[string]any{
		"trigger":    string(trigger),
		"dispatch":   dispatch,
		"pool_stats": poolStats,
		"policy":     "streaming",
	})
}

func (p *StreamingPolicy) logFlushFailure(bufferType string, trigger FlushTrigger, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("streaming flush failed", map[string]any{
		"buffer_type": bufferType,
		"trigger":     string(trigger),
		"error":       err.Error(),
		"policy":      "streaming",
	})
}

var _ Policy = (*StreamingPolicy)(nil)
