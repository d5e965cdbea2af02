package trace

import (
	"context"
)

// StorageClient abstracts the Lode-backed storage client. Real
// implementations connect to Lode (filesystem or S3); StubStorageClient is
// used for testing.
type StorageClient interface {
	WriteDispatchRecords(ctx context.Context, records []*DispatchTraceRecord) error
	WritePoolStats(ctx context.Context, records []*PoolStatsRecord) error
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink, grounded on
// lode/sink.go (teacher).
type Sink struct {
	config Config
	client StorageClient
}

// NewSink creates a new trace sink.
func NewSink(config Config, client StorageClient) *Sink {
	return &Sink{config: config, client: client}
}

// WriteDispatchRecords implements policy.Sink.
func (s *Sink) WriteDispatchRecords(ctx context.Context, records []*DispatchTraceRecord) error {
	return s.client.WriteDispatchRecords(ctx, records)
}

// WritePoolStats implements policy.Sink.
func (s *Sink) WritePoolStats(ctx context.Context, records []*PoolStatsRecord) error {
	return s.client.WritePoolStats(ctx, records)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

// StubStorageClient is a test client that accepts writes without
// persisting, grounded on lode/sink.go's StubClient.
type StubStorageClient struct {
	Dispatch  []*DispatchTraceRecord
	PoolStats []*PoolStatsRecord
	Closed    bool
}

// NewStubStorageClient creates a new stub client.
func NewStubStorageClient() *StubStorageClient {
	return &StubStorageClient{}
}

func (c *StubStorageClient) WriteDispatchRecords(_ context.Context, records []*DispatchTraceRecord) error {
	c.Dispatch = append(c.Dispatch, records...)
	return nil
}

func (c *StubStorageClient) WritePoolStats(_ context.Context, records []*PoolStatsRecord) error {
	c.PoolStats = append(c.PoolStats, records...)
	return nil
}

func (c *StubStorageClient) Close() error {
	c.Closed = true
	return nil
}

var _ StorageClient = (*StubStorageClient)(nil)
