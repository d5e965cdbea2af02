package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/quarry-radius/queue"
	"github.com/pithecene-io/quarry-radius/types"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	q := queue.New(queue.Config{MaxSize: 1024}, time.Now())
	p := New(cfg, q, nil)
	t.Cleanup(p.Shutdown)
	return p
}

// blockingProcess returns a Processor that signals handled on a channel
// and blocks until release is closed, so tests can hold a worker ACTIVE
// deterministically instead of racing a goroutine.
func blockingProcess(handled chan<- *types.Request, release <-chan struct{}) types.Processor {
	return func(req *types.Request, _ types.ProcessAction) types.RCode {
		handled <- req
		<-release
		req.ChildState = types.ChildDone
		return types.RCodeOK
	}
}

func instantProcess(order *[]uint64, mu *sync.Mutex) types.Processor {
	return func(req *types.Request, _ types.ProcessAction) types.RCode {
		mu.Lock()
		*order = append(*order, req.Number)
		mu.Unlock()
		req.ChildState = types.ChildDone
		return types.RCodeOK
	}
}

func TestPool_FastPath_BindsIdleWorkerDirectly(t *testing.T) {
	p := newTestPool(t, Config{StartWorkers: 2, MaxWorkers: 2, MinSpareWorkers: 0, MaxSpareWorkers: 2})
	p.Start()

	var mu sync.Mutex
	var order []uint64
	done := make(chan struct{})

	r := &types.Request{Number: 1, MasterState: types.MasterProcessing, Process: func(req *types.Request, a types.ProcessAction) types.RCode {
		defer close(done)
		mu.Lock()
		order = append(order, req.Number)
		mu.Unlock()
		req.ChildState = types.ChildDone
		return types.RCodeOK
	}}

	ok := p.Enqueue(r, time.Now())
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("request was never dispatched")
	}

	require.Eventually(t, func() bool {
		return p.Stats().Idle == 2
	}, time.Second, time.Millisecond)
}

func TestPool_FastPath_SameWorkerHandlesNextRequest(t *testing.T) {
	p := newTestPool(t, Config{StartWorkers: 1, MaxWorkers: 1, MinSpareWorkers: 0, MaxSpareWorkers: 1})
	p.Start()

	var mu sync.Mutex
	var workers []uint64
	record := func(req *types.Request, _ types.ProcessAction) types.RCode {
		mu.Lock()
		p.mu.Lock()
		workers = append(workers, p.active.head.id)
		p.mu.Unlock()
		mu.Unlock()
		req.ChildState = types.ChildDone
		return types.RCodeOK
	}

	r1done := make(chan struct{})
	r1 := &types.Request{Number: 1, MasterState: types.MasterProcessing, Process: func(req *types.Request, a types.ProcessAction) types.RCode {
		defer close(r1done)
		return record(req, a)
	}}
	require.True(t, p.Enqueue(r1, time.Now()))
	<-r1done

	require.Eventually(t, func() bool { return p.Stats().Idle == 1 }, time.Second, time.Millisecond)

	r2done := make(chan struct{})
	r2 := &types.Request{Number: 2, MasterState: types.MasterProcessing, Process: func(req *types.Request, a types.ProcessAction) types.RCode {
		defer close(r2done)
		return record(req, a)
	}}
	require.True(t, p.Enqueue(r2, time.Now()))
	<-r2done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, workers, 2)
	assert.Equal(t, workers[0], workers[1])
}

func TestPool_PriorityOrdering_DefaultComparator(t *testing.T) {
	// One worker, held busy with a blocking first request so the next
	// three all land in the heap and must dequeue in priority order.
	p := newTestPool(t, Config{StartWorkers: 1, MaxWorkers: 1, MinSpareWorkers: 0, MaxSpareWorkers: 1})
	p.Start()

	handled := make(chan *types.Request, 8)
	release := make(chan struct{})

	blocker := &types.Request{Number: 0, Priority: 1, MasterState: types.MasterProcessing,
		Process: blockingProcess(handled, release)}
	require.True(t, p.Enqueue(blocker, time.Now()))
	<-handled // worker is now busy and will stay so until release closes

	now := time.Now()
	rA := &types.Request{Number: 10, Priority: 10, Timestamp: now, MasterState: types.MasterProcessing}
	rB := &types.Request{Number: 1, Priority: 1, Timestamp: now.Add(time.Millisecond), MasterState: types.MasterProcessing}
	rC := &types.Request{Number: 5, Priority: 5, Timestamp: now.Add(2 * time.Millisecond), MasterState: types.MasterProcessing}

	var mu sync.Mutex
	var order []uint64
	proc := instantProcess(&order, &mu)
	rA.Process, rB.Process, rC.Process = proc, proc, proc

	require.True(t, p.Enqueue(rA, now))
	require.True(t, p.Enqueue(rB, now))
	require.True(t, p.Enqueue(rC, now))

	close(release) // let the blocker finish; worker then drains the heap

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 5, 10}, order)
}

func TestPool_Sizing_GrowsToMinSpareUnderLoad(t *testing.T) {
	p := newTestPool(t, Config{
		StartWorkers:    2,
		MaxWorkers:      10,
		MinSpareWorkers: 3,
		MaxSpareWorkers: 4,
		CleanupDelay:    time.Second,
	})
	p.Start()

	// Steady load: 5 concurrent short-lived streams, each re-enqueueing a
	// fresh request as soon as its last one completes, so workers return
	// to the pool_manage check (spec section 4.6.2 step 4a) regularly
	// instead of blocking forever inside one dispatch.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	var n uint64
	var nmu sync.Mutex
	nextNumber := func() uint64 {
		nmu.Lock()
		defer nmu.Unlock()
		n++
		return n
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				r := &types.Request{Number: nextNumber(), MasterState: types.MasterProcessing,
					Process: func(req *types.Request, _ types.ProcessAction) types.RCode {
						time.Sleep(15 * time.Millisecond)
						req.ChildState = types.ChildDone
						return types.RCodeOK
					}}
				p.Enqueue(r, time.Now())
				time.Sleep(20 * time.Millisecond)
			}
		}()
	}

	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.Total >= 8 && s.Total <= 9
	}, 2*time.Second, 10*time.Millisecond)

	close(stop)
	wg.Wait()

	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.Total <= 4
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPool_Shutdown_ReturnsWithNoLeakedWorkers(t *testing.T) {
	p := newTestPool(t, Config{StartWorkers: 3, MaxWorkers: 3, MinSpareWorkers: 0, MaxSpareWorkers: 3})
	p.Start()
	require.Eventually(t, func() bool { return p.Stats().Total == 3 }, time.Second, time.Millisecond)
	p.Shutdown()
	assert.Equal(t, 0, p.Stats().Total)
}
