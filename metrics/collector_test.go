package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("strict", "fs", "inner-tunnel")

	c.IncRequestsAccepted()
	c.IncRequestsAccepted()
	c.IncRequestsDropped()
	c.IncHUPSucceeded()
	c.IncHUPFailed()
	c.IncHUPFailed()
	c.IncTraceWriteSuccess()
	c.IncTraceWriteSuccess()
	c.IncTraceWriteFailure()

	s := c.Snapshot()

	if s.RequestsAccepted != 2 {
		t.Errorf("RequestsAccepted = %d, want 2", s.RequestsAccepted)
	}
	if s.RequestsDropped != 1 {
		t.Errorf("RequestsDropped = %d, want 1", s.RequestsDropped)
	}
	if s.HUPSucceeded != 1 {
		t.Errorf("HUPSucceeded = %d, want 1", s.HUPSucceeded)
	}
	if s.HUPFailed != 2 {
		t.Errorf("HUPFailed = %d, want 2", s.HUPFailed)
	}
	if s.TraceWriteSuccess != 2 {
		t.Errorf("TraceWriteSuccess = %d, want 2", s.TraceWriteSuccess)
	}
	if s.TraceWriteFailure != 1 {
		t.Errorf("TraceWriteFailure = %d, want 1", s.TraceWriteFailure)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("buffered", "s3", "inner-tunnel")
	s := c.Snapshot()

	if s.Policy != "buffered" {
		t.Errorf("Policy = %q, want %q", s.Policy, "buffered")
	}
	if s.StorageBackend != "s3" {
		t.Errorf("StorageBackend = %q, want %q", s.StorageBackend, "s3")
	}
	if s.Instance != "inner-tunnel" {
		t.Errorf("Instance = %q, want %q", s.Instance, "inner-tunnel")
	}
}

func TestCollector_AbsorbPolicyStats(t *testing.T) {
	c := NewCollector("strict", "fs", "inner-tunnel")

	c.AbsorbPolicyStats(100, 92, 8)

	s := c.Snapshot()

	if s.DispatchRecordsReceived != 100 {
		t.Errorf("DispatchRecordsReceived = %d, want 100", s.DispatchRecordsReceived)
	}
	if s.DispatchRecordsPersisted != 92 {
		t.Errorf("DispatchRecordsPersisted = %d, want 92", s.DispatchRecordsPersisted)
	}
	if s.DispatchRecordsDropped != 8 {
		t.Errorf("DispatchRecordsDropped = %d, want 8", s.DispatchRecordsDropped)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("strict", "fs", "inner-tunnel")
	c.IncRequestsAccepted()
	c.IncTraceWriteSuccess()

	s1 := c.Snapshot()

	c.IncRequestsAccepted()
	c.IncTraceWriteSuccess()
	c.IncTraceWriteSuccess()

	if s1.RequestsAccepted != 1 {
		t.Errorf("s1.RequestsAccepted = %d, want 1 (snapshot should be frozen)", s1.RequestsAccepted)
	}
	if s1.TraceWriteSuccess != 1 {
		t.Errorf("s1.TraceWriteSuccess = %d, want 1 (snapshot should be frozen)", s1.TraceWriteSuccess)
	}

	s2 := c.Snapshot()
	if s2.RequestsAccepted != 2 {
		t.Errorf("s2.RequestsAccepted = %d, want 2", s2.RequestsAccepted)
	}
	if s2.TraceWriteSuccess != 3 {
		t.Errorf("s2.TraceWriteSuccess = %d, want 3", s2.TraceWriteSuccess)
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	c.IncRequestsAccepted()
	c.IncRequestsDropped()
	c.IncHUPSucceeded()
	c.IncHUPFailed()
	c.IncTraceWriteSuccess()
	c.IncTraceWriteFailure()
	c.AbsorbPolicyStats(10, 8, 2)

	s := c.Snapshot()
	if s.RequestsAccepted != 0 {
		t.Errorf("nil collector snapshot RequestsAccepted = %d, want 0", s.RequestsAccepted)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("strict", "fs", "inner-tunnel")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncRequestsAccepted()
				c.IncTraceWriteSuccess()
				c.IncHUPSucceeded()
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.RequestsAccepted != want {
		t.Errorf("RequestsAccepted = %d, want %d", s.RequestsAccepted, want)
	}
	if s.TraceWriteSuccess != want {
		t.Errorf("TraceWriteSuccess = %d, want %d", s.TraceWriteSuccess, want)
	}
	if s.HUPSucceeded != want {
		t.Errorf("HUPSucceeded = %d, want %d", s.HUPSucceeded, want)
	}
}

func TestCollector_ZeroValueSnapshot(t *testing.T) {
	c := NewCollector("strict", "fs", "inner-tunnel")
	s := c.Snapshot()

	if s.RequestsAccepted != 0 || s.RequestsDropped != 0 {
		t.Error("fresh collector should have zero request counters")
	}
	if s.HUPSucceeded != 0 || s.HUPFailed != 0 {
		t.Error("fresh collector should have zero HUP counters")
	}
	if s.TraceWriteSuccess != 0 || s.TraceWriteFailure != 0 {
		t.Error("fresh collector should have zero trace-write counters")
	}
	if s.DispatchRecordsReceived != 0 || s.DispatchRecordsPersisted != 0 || s.DispatchRecordsDropped != 0 {
		t.Error("fresh collector should have zero dispatch-record counters")
	}
}
