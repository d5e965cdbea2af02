package pool

import "github.com/pithecene-io/quarry-radius/types"

// status is a Worker's lifecycle state, per spec section 4.6.
type status int

const (
	statusIdle status = iota
	statusActive
	statusExited // CANCELLED and awaiting join, or already joined and awaiting reap
)

// Worker is one pool slot: a goroutine parked on sem, a binary semaphore
// the pool posts to hand it work or tell it to exit, and the intrusive
// doubly-linked-list pointers the pool uses to move it between the idle,
// active, and exited lists without any separate container allocation
// (spec section 4.6, "idle list (doubly-linked, head = hottest)").
//
// All fields except sem and done are only ever touched while the owning
// Pool's mutex is held, with one exception: the worker's own goroutine
// reads and clears current and increments requestsServed in
// Pool.dispatch without the lock.
type Worker struct {
	id uint64

	// sem is posted exactly once per unit of work (including the final
	// "you are cancelled, exit now" wakeup); the worker goroutine blocks
	// receiving from it. Binary semaphore: buffered 1, treated as full/empty.
	sem chan struct{}

	// done is closed by the worker goroutine just before it returns, so
	// Pool.Shutdown can join it without a WaitGroup per worker.
	done chan struct{}

	status    status
	cancelled bool
	current   *types.Request

	// requestsServed counts completed dispatches, checked against
	// Config.MaxRequestsPerWorker to recycle long-lived workers (spec
	// section 6 "max_requests_per_server").
	requestsServed int

	prev, next *Worker
	list       *workerList // list this worker currently belongs to, or nil
}

// workerList is an intrusive doubly-linked list of *Worker with plain
// (nil-terminated) head/tail pointers, supporting the head/tail insertion and O(1) removal
// the pool's idle/active/exited lists need (push to head for LIFO idle
// reuse, pop from tail to trim the coldest idle worker).
type workerList struct {
	head, tail *Worker
	n          int
}

func (l *workerList) pushHead(w *Worker) {
	w.list = l
	w.prev = nil
	w.next = l.head
	if l.head != nil {
		l.head.prev = w
	}
	l.head = w
	if l.tail == nil {
		l.tail = w
	}
	l.n++
}

func (l *workerList) pushTail(w *Worker) {
	w.list = l
	w.next = nil
	w.prev = l.tail
	if l.tail != nil {
		l.tail.next = w
	}
	l.tail = w
	if l.head == nil {
		l.head = w
	}
	l.n++
}

// remove unlinks w from l. No-op if w does not belong to l (including
// when w.list is nil). Caller must hold the pool mutex.
func (l *workerList) remove(w *Worker) {
	if w.list != l {
		return
	}
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		l.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		l.tail = w.prev
	}
	w.prev, w.next, w.list = nil, nil, nil
	l.n--
}

func (l *workerList) popTail() *Worker {
	w := l.tail
	if w != nil {
		l.remove(w)
	}
	return w
}

func (l *workerList) popHead() *Worker {
	w := l.head
	if w != nil {
		l.remove(w)
	}
	return w
}
