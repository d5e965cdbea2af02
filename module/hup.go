package module

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/quarry-radius/log"
)

// hupRecord is one retained attempt in an instance's HUP history, kept so
// an admin surface can show "last N reconfigure attempts and their
// outcomes" without the core itself persisting anything (spec section 4.2
// "hup_history retention").
type hupRecord struct {
	at      time.Time
	ok      bool
	message string
}

// At returns when this attempt ran.
func (r hupRecord) At() time.Time { return r.at }

// OK reports whether this attempt succeeded.
func (r hupRecord) OK() bool { return r.ok }

// Message is the error text for a failed attempt, empty on success.
func (r hupRecord) Message() string { return r.message }

// hupHistoryRetention is how long a hupRecord survives before the sweep
// reclaims it, and the grace period spec section 4.2/8 requires a retired
// instance data buffer be kept alive after a successful HUP: a worker that
// snapshotted the old pointer mid-dispatch (spec section 4.4 step 3) may
// still be running against it when the swap lands, so Detach must not run
// until every such in-flight call has long since returned.
const hupHistoryRetention = 60 * time.Second

// retiredBuffer is one prior instance data buffer displaced by a
// successful HUP, kept around for hupHistoryRetention before its Detach
// hook runs (spec section 4.2 "hup_history... retained... so in-flight
// workers may safely finish using them").
type retiredBuffer struct {
	data   any
	when   time.Time
	detach func(any) error
}

// minHUPInterval is the minimum time an instance must have been ready
// before it is eligible for another HUP, preventing a HUP storm from
// re-instantiating a module faster than it can settle.
const minHUPInterval = 2 * time.Second

// HUPController gates and performs live reconfiguration of HUP-safe
// instances. It is a thin layer over Manager: Manager owns instance
// storage and the bootstrap/instantiate mechanics; HUPController owns the
// eligibility rules and attempt history that are specific to reconfigure,
// not to first-time bootstrap.
type HUPController struct {
	manager *Manager
	log     *log.Logger

	mu        sync.Mutex
	readyAt   map[string]time.Time
	history   map[string][]hupRecord
	retired   map[string][]retiredBuffer
	lastSweep time.Time
}

// NewHUPController creates a controller over manager.
func NewHUPController(manager *Manager, logger *log.Logger) *HUPController {
	return &HUPController{
		manager: manager,
		log:     logger,
		retired: make(map[string][]retiredBuffer),
		readyAt: make(map[string]time.Time),
		history: make(map[string][]hupRecord),
	}
}

// NoteReady records that instance became ready (via initial Bootstrap or a
// prior successful HUP) at now. The HUP eligibility clock runs from here.
func (h *HUPController) NoteReady(name string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyAt[name] = now
}

// eligible reports whether name may be HUPed right now: the instance must
// exist and be ready, its Code must be HUPSafe, have no Bootstrap hook (a
// Bootstrap hook implies shared state a lone re-Instantiate cannot safely
// refresh), have an Instantiate hook, and must have been ready for at
// least minHUPInterval.
func (h *HUPController) eligible(name string, now time.Time) (*Instance, error) {
	in, ok := h.manager.Instance(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotInstantiated, name)
	}
	if !in.Code.Flags.Has(HUPSafe) {
		return nil, fmt.Errorf("%w: %q (module %q is not flagged HUP_SAFE)", ErrHUPNotSafe, name, in.Code.Name)
	}
	if in.Code.Bootstrap != nil {
		return nil, fmt.Errorf("%w: %q (module %q has a bootstrap hook)", ErrHUPNotSafe, name, in.Code.Name)
	}
	if in.Code.Instantiate == nil {
		return nil, fmt.Errorf("%w: %q (module %q has no instantiate hook)", ErrHUPNotSafe, name, in.Code.Name)
	}

	h.mu.Lock()
	readyAt, seen := h.readyAt[name]
	h.mu.Unlock()
	if seen && now.Sub(readyAt) < minHUPInterval {
		return nil, fmt.Errorf("%w: %q HUPed less than %s ago", errHUPTooSoon, name, minHUPInterval)
	}

	return in, nil
}

// HUP attempts to reconfigure instance name from a freshly read config
// buffer: it parses and instantiates the new data first, against the
// existing bootstrap data, and only swaps it into the live instance once
// Instantiate succeeds (spec section 4.2: "parse fresh buffer, instantiate,
// atomic swap" — a failed reconfigure must leave the old instance serving
// traffic). The outcome is appended to the instance's HUP history and a
// retention sweep runs opportunistically.
//
// A HUP issued less than minHUPInterval after the instance last became
// ready is a no-op, not a failure: it returns nil without touching
// readyAt, history, or instance state at all (spec section 8: "HUP twice
// within 2s: second call returns success but is a no-op (last_hup
// unchanged)").
func (h *HUPController) HUP(name string, rawConfig []byte, now time.Time) error {
	in, err := h.eligible(name, now)
	if err != nil {
		if errors.Is(err, errHUPTooSoon) {
			return nil
		}
		h.record(name, now, false, err.Error())
		return err
	}

	bootstrapData := h.manager.bootstrapDataFor(in.Code.Name)

	newData, err := in.Code.Instantiate(rawConfig, bootstrapData)
	if err != nil {
		wrapped := fmt.Errorf("%w: instance %q: %v", ErrInstantiateFailed, name, err)
		h.record(name, now, false, wrapped.Error())
		return wrapped
	}

	oldData := h.swap(in, rawConfig, newData)

	h.mu.Lock()
	h.readyAt[name] = now
	h.retired[name] = append(h.retired[name], retiredBuffer{data: oldData, when: now, detach: in.Code.Detach})
	h.mu.Unlock()
	h.record(name, now, true, "")
	h.sweepRetired(now)

	if h.log != nil {
		h.log.Info("module HUP succeeded", map[string]any{"instance": name, "module": in.Code.Name})
	}
	return nil
}

// swap installs newData as the instance's live opaque data, serializing
// against any in-flight Invoke on a ThreadUnsafe module so the swap is
// never observed mid-dispatch, and returns the data it replaced.
func (h *HUPController) swap(in *Instance, rawConfig []byte, newData any) any {
	if in.Code.Flags.Has(ThreadUnsafe) {
		in.mu.Lock()
		defer in.mu.Unlock()
	}
	old := in.data
	in.data = newData
	in.RawConfig = rawConfig
	return old
}

// sweepRetired runs the retired-buffer grace-period sweep from spec
// section 4.2: any buffer older than hupHistoryRetention has its Detach
// hook invoked (if any) and is dropped from the instance's retirement
// list. Unlike the attempt-history sweep this runs on every successful
// HUP rather than being throttled, since the list it walks is bounded by
// how many HUPs landed in the last 60s, not by long-lived log growth.
func (h *HUPController) sweepRetired(now time.Time) {
	var expired []retiredBuffer

	h.mu.Lock()
	for name, buffers := range h.retired {
		kept := buffers[:0]
		for _, b := range buffers {
			if now.Sub(b.when) >= hupHistoryRetention {
				expired = append(expired, b)
			} else {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			delete(h.retired, name)
		} else {
			h.retired[name] = kept
		}
	}
	h.mu.Unlock()

	for _, b := range expired {
		if b.detach == nil {
			continue
		}
		if err := b.detach(b.data); err != nil && h.log != nil {
			h.log.Warn("retired module buffer detach failed", map[string]any{"error": err.Error()})
		}
	}
}

// RetiredCount reports how many prior data buffers for instance name are
// still within their HUP grace period, for the admin surface and for
// tests asserting the grace-period invariant (spec section 8).
func (h *HUPController) RetiredCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.retired[name])
}

// Sweep runs both retention sweeps (retired data buffers and attempt
// history) at now. RunSweeper drives this on a ticker so a long-idle
// instance's grace period still expires even without a subsequent HUP
// triggering sweepRetired as a side effect.
func (h *HUPController) Sweep(now time.Time) {
	h.sweepRetired(now)
	h.mu.Lock()
	h.sweepHistoryLocked(now)
	h.mu.Unlock()
}

// RunSweeper runs Sweep every interval until ctx is cancelled, for Core to
// own as a background goroutine over the instance arena's HUP grace
// periods (spec section 4.2 "a periodic sweep frees history entries older
// than 60s").
func (h *HUPController) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Sweep(now)
		}
	}
}

// record appends an attempt outcome to name's history and opportunistically
// sweeps entries older than hupHistoryRetention, at most once every
// hupHistoryRetention (spec section 4.2 "hup_history retention... swept no
// more than once per interval").
func (h *HUPController) record(name string, at time.Time, ok bool, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history[name] = append(h.history[name], hupRecord{at: at, ok: ok, message: message})
	h.sweepHistoryLocked(at)
}

// sweepHistoryLocked drops attempt records older than hupHistoryRetention,
// throttled to once per interval since the log is unbounded over a long
// process lifetime unlike the small, HUP-rate-bounded retired-buffer list.
// Caller must hold h.mu.
func (h *HUPController) sweepHistoryLocked(now time.Time) {
	if now.Sub(h.lastSweep) < hupHistoryRetention {
		return
	}
	h.lastSweep = now
	for key, records := range h.history {
		kept := records[:0]
		for _, rec := range records {
			if now.Sub(rec.at) <= hupHistoryRetention {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(h.history, key)
		} else {
			h.history[key] = kept
		}
	}
}

// History returns a copy of the retained attempt records for name, oldest
// first, for an admin surface like "radiusd modules history <name>".
func (h *HUPController) History(name string) []hupRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	records := h.history[name]
	out := make([]hupRecord, len(records))
	copy(out, records)
	return out
}
