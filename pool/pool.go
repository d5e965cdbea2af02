// Package pool implements the bounded, adaptively sized worker pool that
// dispatches requests to a listener-supplied continuation, per spec
// section 4.6. OS threads become goroutines; pthread semaphores become
// buffered channels of size 1; pthread_join becomes a close-on-exit
// channel the pool waits on without holding its mutex, matching the
// spec's "blocking waits are done unlocked" requirement.
package pool

import (
	"sync"
	"time"

	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/queue"
	"github.com/pithecene-io/quarry-radius/types"
)

// Config configures a Pool. Field names and defaults mirror the
// configuration options recognized by the thread pool, spec section 6.
type Config struct {
	StartWorkers        int           // start_servers [5]
	MaxWorkers          int           // max_servers [32]
	MinSpareWorkers     int           // min_spare_servers [3]
	MaxSpareWorkers     int           // max_spare_servers [10]
	MaxRequestsPerWorker int          // max_requests_per_server [0 = unlimited]
	CleanupDelay        time.Duration // cleanup_delay [5s]
}

// DefaultConfig returns the thread-pool defaults named in spec section 6.
func DefaultConfig() Config {
	return Config{
		StartWorkers:         5,
		MaxWorkers:           32,
		MinSpareWorkers:      3,
		MaxSpareWorkers:      10,
		MaxRequestsPerWorker: 0,
		CleanupDelay:         5 * time.Second,
	}
}

// Pool is the adaptively sized worker pool. A single mutex guards the
// idle/active/exited lists and all counters, matching spec section 5's
// "the pool mutex is the only core-internal lock."
type Pool struct {
	cfg   Config
	queue *queue.Queue
	log   *log.Logger

	mu           sync.Mutex
	idle, active, exited workerList
	total        int
	nextID       uint64
	spawning     bool
	stopFlag     bool
	lastManage   time.Time
	lastSpawned  time.Time

	now func() time.Time // overridable for deterministic tests
}

// New creates a Pool bound to q. Workers are not started until Start is
// called.
func New(cfg Config, q *queue.Queue, logger *log.Logger) *Pool {
	return &Pool{
		cfg:   cfg,
		queue: q,
		log:   logger,
		now:   time.Now,
	}
}

// Start spawns cfg.StartWorkers workers and begins serving.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.cfg.StartWorkers; i++ {
		p.spawnLocked()
	}
}

// spawnLocked creates one new worker, parked idle, and starts its
// goroutine. Caller must hold p.mu.
func (p *Pool) spawnLocked() {
	p.nextID++
	w := &Worker{
		id:     p.nextID,
		sem:    make(chan struct{}, 1),
		done:   make(chan struct{}),
		status: statusIdle,
	}
	p.idle.pushHead(w)
	p.total++
	p.lastSpawned = p.now()
	go p.run(w)
}

// Enqueue implements the listener-thread enqueue path, spec section 4.6.1.
// Returns true if the request was accepted into the pool or queue; false
// if admission control or QueueFull "handled" it (the caller should treat
// this as consumed, per spec section 4.6.1 step 1).
func (p *Pool) Enqueue(r *types.Request, now time.Time) bool {
	if err := p.admit(r, now); err != nil {
		r.ChildState = types.ChildDone
		return false
	}

	p.mu.Lock()
	w := p.selectWorkerLocked(r)
	if w == nil {
		p.mu.Unlock()
		return true // queued; a worker will pick it up via pool_manage or its own loop
	}
	// w.current was set by selectWorkerLocked itself: under concurrent
	// Enqueue calls the heap pop it performs may return a different
	// request than r (another goroutine's request, already admitted into
	// the heap before this one reached the lock). Bind to whatever it
	// actually selected rather than overwriting with our own r, or the
	// request it popped would be dropped on the floor with no worker ever
	// bound to it.
	bound := w.current
	bound.ChildState = types.ChildRunning
	p.active.pushHead(w)
	w.status = statusActive
	p.mu.Unlock()

	w.sem <- struct{}{}
	return true
}

// admit runs the queue's admission control / insert. Caller must not hold
// p.mu (Queue has its own lock).
func (p *Pool) admit(r *types.Request, now time.Time) error {
	return p.queue.Insert(r, now)
}

// selectWorkerLocked picks the worker Enqueue hands work to. The request
// always sits in the heap by now (inserted by admit/Queue.Insert above);
// there is no path that binds a request to an idle worker without going
// through the heap. If an idle worker exists, the heap root is popped
// right back out and bound to the idle head, so heap ordering is never
// bypassed. If the heap is already empty, a running worker has taken the
// request in the meantime and no worker is selected.
//
// The selected worker's current request is always left in head.current
// before returning, never implied to be justInserted by the caller: under
// concurrent Enqueue calls two requests can both be sitting in the heap by
// the time either reaches this lock, and the one this call pops may belong
// to the other goroutine. Caller must hold p.mu.
func (p *Pool) selectWorkerLocked(justInserted *types.Request) *Worker {
	head := p.idle.head
	if head == nil {
		return nil
	}

	popped, ok := p.queue.Pop(p.now())
	if !ok {
		return nil
	}
	p.idle.remove(head)
	head.current = popped
	return head
}

// run is a worker's main loop, spec section 4.6.2.
func (p *Pool) run(w *Worker) {
	defer close(w.done)

	for {
		<-w.sem

		p.mu.Lock()
		cancelled := w.cancelled || p.stopFlag
		p.mu.Unlock()
		if cancelled {
			return
		}

		// Step 3: run the bound request, then keep pulling from the heap
		// without re-waiting on sem until it and pool_manage both find
		// nothing left to do (spec section 4.6.2 steps 3-4b).
		for {
			p.dispatch(w)

			p.mu.Lock()
			now := p.now()
			if !now.Before(p.lastManage.Add(time.Second)) {
				p.manageLocked(now)
			}

			next, ok := p.queue.Pop(now)
			if !ok {
				break
			}
			w.current = next
			p.mu.Unlock()
		}

		// Step 4c: no more work; go idle, unless this worker has served its
		// configured request quota (spec section 6 max_requests_per_server),
		// in which case it recycles itself in place of waiting for a trim.
		if w.status == statusActive {
			p.active.remove(w)
		}
		if p.cfg.MaxRequestsPerWorker > 0 && w.requestsServed >= p.cfg.MaxRequestsPerWorker {
			w.status = statusExited
			p.exited.pushHead(w)
			p.mu.Unlock()
			return
		}
		p.idle.pushHead(w)
		w.status = statusIdle
		p.mu.Unlock()
	}
}

// dispatch runs w's currently bound request to completion. Caller must not
// hold p.mu.
func (p *Pool) dispatch(w *Worker) {
	req := w.current
	w.current = nil
	if req == nil {
		return
	}
	req.Component = "<core>"
	req.Module = ""
	req.ChildState = types.ChildRunning
	if req.Process != nil {
		req.Process(req, types.ActionRun)
	}
	w.requestsServed++
}

// manageLocked is pool_manage(now), spec section 4.6.3. Caller must hold
// p.mu; it releases and reacquires the mutex internally around the
// blocking reap/spawn steps, exactly as the spec requires.
func (p *Pool) manageLocked(now time.Time) {
	p.lastManage = now

	// 1. Reap one exited worker.
	if w := p.exited.head; w != nil && w.status == statusExited {
		p.exited.remove(w)
		p.total--
		p.mu.Unlock()
		<-w.done // join, unlocked
		p.mu.Lock()
	}

	// 2. Spawn up to deficit. Skipped once stopFlag is set so a worker still
	// draining its last request during Shutdown cannot grow the pool behind
	// Shutdown's back.
	if !p.stopFlag && !p.spawning && p.total < p.cfg.MaxWorkers && p.idle.n < p.cfg.MinSpareWorkers {
		want := min(p.cfg.MinSpareWorkers-p.idle.n, p.cfg.MaxWorkers-p.total)
		p.spawning = true
		for i := 0; i < want; i++ {
			p.mu.Unlock()
			// spawnLocked itself only mutates pool state; the actual
			// goroutine start is cheap enough that no unlocked "spawn
			// syscall" analogue is needed in Go, unlike a real thread create.
			p.mu.Lock()
			p.spawnLocked()
		}
		p.spawning = false
		return
	}

	// 3. Trim one surplus idle worker.
	if now.Sub(p.lastSpawned) >= p.cfg.CleanupDelay && p.idle.n > p.cfg.MaxSpareWorkers {
		if w := p.idle.popTail(); w != nil {
			w.cancelled = true
			w.status = statusExited
			p.exited.pushHead(w)
			w.sem <- struct{}{}
		}
	}
}

// Shutdown stops every worker: set stopFlag, wake every idle/active/exited
// worker with a poison post, and join them all, per spec section 4.6.4.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.stopFlag = true
	var all []*Worker
	for _, list := range []*workerList{&p.exited, &p.idle, &p.active} {
		for w := list.head; w != nil; w = w.next {
			w.cancelled = true
			all = append(all, w)
		}
	}
	p.mu.Unlock()

	for _, w := range all {
		select {
		case w.sem <- struct{}{}:
		default:
			// already has a pending post (e.g. was just trimmed); fine,
			// the worker will see cancelled on whichever wakeup it gets.
		}
		<-w.done
	}

	p.mu.Lock()
	p.idle = workerList{}
	p.active = workerList{}
	p.exited = workerList{}
	p.total = 0
	p.mu.Unlock()
}

// Stats is the thread-pool portion of queue_stats(), spec section 6.
type Stats struct {
	Total, Idle, Active, Exited int
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Total:  p.total,
		Idle:   p.idle.n,
		Active: p.active.n,
		Exited: p.exited.n,
	}
}
