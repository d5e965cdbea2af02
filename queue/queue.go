package queue

import (
	"container/heap"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/types"
)

// ErrQueueFull is returned by Insert when accepting one more request would
// bring the queue to its configured maximum size, so at most MaxSize-1
// requests are ever queued. Accounting packets dropped by admission control
// get it too.
var ErrQueueFull = errors.New("request queue full")

// minQueueSize and maxQueueSize bound Config.MaxSize per spec section 4.5.
const (
	minQueueSize = 2
	maxQueueSize = 1048576
)

// Config configures a Queue.
type Config struct {
	// MaxSize is the bounded capacity; must be in [2, 1048576].
	MaxSize int
	// Comparator orders pending requests; defaults to Default.
	Comparator Comparator
	// AutoLimitAcct enables probabilistic admission control on accounting
	// packets once the queue is at least half full and arrival PPS exceeds
	// departure PPS.
	AutoLimitAcct bool
	// Logger receives the rate-limited blocked-request diagnostic.
	Logger *log.Logger
	// Rand supplies the 10-bit admission-control random draw. Tests pass a
	// seeded *rand.Rand for reproducible drop fractions; nil uses the
	// package-level default source.
	Rand *rand.Rand
}

// blockedLogInterval is the minimum spacing between blocked-request
// diagnostic log lines, per spec section 4.5 ("rate-limited (≥1 s)").
const blockedLogInterval = time.Second

// staleAfter is the age at which a popped, non-proxy-pending request is
// counted as blocked, per spec section 4.5.
const staleAfter = 5 * time.Second

// Queue is the bounded priority heap requests wait in between a listener's
// Insert and a worker's Pop, including admission control and PPS metering.
// All public methods lock internally; callers never see partial state.
type Queue struct {
	mu   sync.Mutex
	heap requestHeap
	cfg  Config

	arrival   *PPSMeter
	departure *PPSMeter

	totalBlocked  uint64
	lastBlockedLog time.Time
}

// New creates a Queue. cfg.MaxSize is clamped into [2, 1048576]; a nil
// Comparator defaults to Default.
func New(cfg Config, now time.Time) *Queue {
	if cfg.MaxSize < minQueueSize {
		cfg.MaxSize = minQueueSize
	}
	if cfg.MaxSize > maxQueueSize {
		cfg.MaxSize = maxQueueSize
	}
	if cfg.Comparator == nil {
		cfg.Comparator = Default
	}
	return &Queue{
		heap:      requestHeap{less: cfg.Comparator},
		cfg:       cfg,
		arrival:   NewPPSMeter(now),
		departure: NewPPSMeter(now),
	}
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Insert admits r into the queue, applying admission control to accounting
// packets and QueueFull to everything once the queue is full, per spec
// section 4.5. now is the admission-control/PPS timestamp; r.Timestamp is
// left untouched so it still reflects true arrival time for FIFO ordering
// and the blocked-request diagnostic.
func (q *Queue) Insert(r *types.Request, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.arrival.Mark(now)

	if r.IsAccounting() && q.cfg.AutoLimitAcct && q.shouldDropLocked(now) {
		return ErrQueueFull
	}

	if q.heap.Len()+1 >= q.cfg.MaxSize {
		return fmt.Errorf("%w: size %d, max %d", ErrQueueFull, q.heap.Len(), q.cfg.MaxSize)
	}

	heap.Push(&q.heap, r)
	return nil
}

// shouldDropLocked implements the probabilistic admission-control formula
// from spec section 4.5: applies only once the queue is at least half
// full and arrival PPS exceeds departure PPS; the drop probability then
// rises linearly from 0 at half-full to 1 at MaxSize. Caller must hold
// q.mu.
func (q *Queue) shouldDropLocked(now time.Time) bool {
	half := q.cfg.MaxSize / 2
	if q.heap.Len() < half {
		return false
	}
	if q.arrival.Rate(now) <= q.departure.Rate(now) {
		return false
	}

	r10 := q.draw10Bit()
	keep := half + (half*r10)/1024
	return q.heap.Len() > keep
}

// draw10Bit returns a uniform random integer in [0, 1023], per spec
// section 4.5's "uniform random 10-bit integer".
func (q *Queue) draw10Bit() int {
	if q.cfg.Rand != nil {
		return q.cfg.Rand.Intn(1024)
	}
	return rand.Intn(1024)
}

// Pop extracts the root request, skipping (and marking ChildDone) any
// request whose MasterState is MasterStopProcessing, and running the
// blocked-request diagnostic on the request it finally returns. Returns
// false if the queue is empty.
func (q *Queue) Pop(now time.Time) (*types.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() > 0 {
		r := heap.Pop(&q.heap).(*types.Request)
		q.departure.Mark(now)

		if r.MasterState == types.MasterStopProcessing {
			r.ChildState = types.ChildDone
			continue
		}

		q.checkBlockedLocked(r, now)
		return r, true
	}
	return nil, false
}

// checkBlockedLocked implements the blocked-request diagnostic from spec
// section 4.5: a popped request with no pending proxy reply that has sat
// longer than staleAfter increments a monotonic counter and, no more than
// once per blockedLogInterval, logs the running count and this request's
// age. Caller must hold q.mu.
func (q *Queue) checkBlockedLocked(r *types.Request, now time.Time) {
	if r.HasPendingProxyReply {
		return
	}
	age := now.Sub(r.Timestamp)
	if age <= staleAfter {
		return
	}

	q.totalBlocked++
	if q.cfg.Logger == nil {
		return
	}
	if now.Sub(q.lastBlockedLog) < blockedLogInterval {
		return
	}
	q.lastBlockedLog = now
	q.cfg.Logger.Error("requests blocked in queue", map[string]any{
		"total_blocked": q.totalBlocked,
		"age_seconds":   age.Seconds(),
	})
}

// Stats is the queue_stats() telemetry snapshot from spec section 6.
type Stats struct {
	Length       int
	InputPPS     float64
	OutputPPS    float64
	TotalBlocked uint64
}

// Stats returns a point-in-time snapshot of queue depth, PPS, and the
// blocked-request counter.
func (q *Queue) Stats(now time.Time) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Length:       q.heap.Len(),
		InputPPS:     q.arrival.Rate(now),
		OutputPPS:    q.departure.Rate(now),
		TotalBlocked: q.totalBlocked,
	}
}
