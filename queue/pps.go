package queue

import "time"

// PPSMeter smooths an arrival or departure rate into packets-per-second,
// per spec section 4.5: two running counters and a window boundary, with
// the rate advancing to a fresh window only once a full second has
// elapsed, so a burst inside a sub-second window doesn't spike the
// reported rate.
type PPSMeter struct {
	old     float64
	now     float64
	timeOld time.Time
}

// NewPPSMeter creates a meter with its window anchored at start.
func NewPPSMeter(start time.Time) *PPSMeter {
	return &PPSMeter{timeOld: start}
}

// Mark records one event at ts and returns the current smoothed rate.
func (m *PPSMeter) Mark(ts time.Time) float64 {
	m.now++
	return m.rate(ts)
}

// Rate returns the current smoothed rate without recording an event,
// still advancing the window if a second has elapsed since timeOld.
func (m *PPSMeter) Rate(ts time.Time) float64 {
	return m.rate(ts)
}

// rate implements the pps(old, now, time_old, now_ts) helper from spec
// section 4.5: while still inside the current one-second window it
// returns a linear blend of the previous and current window's counts
// weighted by how far into the window now sits; once a full second has
// passed it slides the window forward, making `now`'s count the new
// `old` and starting a fresh `now` at zero.
func (m *PPSMeter) rate(ts time.Time) float64 {
	elapsed := ts.Sub(m.timeOld)
	if elapsed >= time.Second {
		windows := elapsed / time.Second
		if windows > 1 {
			// More than one full window has passed with no intervening
			// Mark calls; the smoothing blend degenerates to the latest count.
			m.old = 0
		} else {
			m.old = m.now
		}
		m.now = 0
		m.timeOld = m.timeOld.Add(windows * time.Second)
		elapsed = ts.Sub(m.timeOld)
	}

	frac := float64(elapsed) / float64(time.Second)
	if frac < 0 {
		frac = 0
	}
	return m.old*(1-frac) + m.now*frac
}
