package trace

import "context"

// Collector is the narrow metrics interface InstrumentedSink depends on,
// satisfied by *metrics.Collector, so trace does not import the metrics
// package.
type Collector interface {
	IncTraceWriteSuccess()
	IncTraceWriteFailure()
}

// InstrumentedSink wraps a Sink and records write outcomes on a Collector,
// grounded on lode/instrumented_sink.go (teacher).
type InstrumentedSink struct {
	inner     *Sink
	collector Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner *Sink, collector Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

func (s *InstrumentedSink) WriteDispatchRecords(ctx context.Context, records []*DispatchTraceRecord) error {
	err := s.inner.WriteDispatchRecords(ctx, records)
	s.record(err)
	return err
}

func (s *InstrumentedSink) WritePoolStats(ctx context.Context, records []*PoolStatsRecord) error {
	err := s.inner.WritePoolStats(ctx, records)
	s.record(err)
	return err
}

func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

func (s *InstrumentedSink) record(err error) {
	if err != nil {
		s.collector.IncTraceWriteFailure()
	} else {
		s.collector.IncTraceWriteSuccess()
	}
}
