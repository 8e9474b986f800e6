// Package progress tracks run counters and publishes them on the bus.
package progress

import (
	"sync"

	"github.com/matheus3301/chatdump/internal/bus"
)

// InitialCeiling is the first display ceiling for an open-ended download.
const InitialCeiling int64 = 1000

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Fetched      int64 `json:"fetched"`
	Written      int64 `json:"written"`
	Filtered     int64 `json:"filtered"`
	MediaOK      int64 `json:"media_ok"`
	MediaSkipped int64 `json:"media_skipped"`
	MediaFailed  int64 `json:"media_failed"`
	Ceiling      int64 `json:"ceiling"`
}

// Reporter accumulates counters for one run. Safe for concurrent use.
type Reporter struct {
	mu   sync.Mutex
	snap Snapshot
	bus  *bus.Bus
}

// New creates a reporter. b may be nil.
func New(b *bus.Bus) *Reporter {
	return &Reporter{
		snap: Snapshot{Ceiling: InitialCeiling},
		bus:  b,
	}
}

// Reset zeroes the counters before the next chat.
func (r *Reporter) Reset() {
	r.mu.Lock()
	r.snap = Snapshot{Ceiling: InitialCeiling}
	r.mu.Unlock()
}

// Observe records the running total of written messages and returns the
// display ceiling. The ceiling grows tenfold each time count exceeds it and
// never shrinks.
func (r *Reporter) Observe(count int64) int64 {
	r.mu.Lock()
	raised := false
	for count > r.snap.Ceiling {
		r.snap.Ceiling *= 10
		raised = true
	}
	ceiling := r.snap.Ceiling
	r.mu.Unlock()

	if raised {
		r.bus.Emit(bus.KindCeilingRaised, ceiling)
	}
	return ceiling
}

// Fetched adds n to the fetched counter.
func (r *Reporter) Fetched(n int) {
	r.add(&r.snap.Fetched, n, bus.KindBatchFetched)
}

// Written adds n to the written counter and updates the ceiling.
func (r *Reporter) Written(n int) {
	total := r.add(&r.snap.Written, n, bus.KindBatchWritten)
	r.Observe(total)
}

// Filtered adds n to the count of messages dropped by filters.
func (r *Reporter) Filtered(n int) {
	r.add(&r.snap.Filtered, n, "")
}

// MediaDone records a successful (or skipped) download.
func (r *Reporter) MediaDone(skipped bool) {
	if skipped {
		r.add(&r.snap.MediaSkipped, 1, bus.KindMediaDone)
		return
	}
	r.add(&r.snap.MediaOK, 1, bus.KindMediaDone)
}

// MediaFailed records a download that failed permanently.
func (r *Reporter) MediaFailed() {
	r.add(&r.snap.MediaFailed, 1, bus.KindMediaFailed)
}

// Snapshot returns a copy of the counters.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

func (r *Reporter) add(counter *int64, n int, kind string) int64 {
	r.mu.Lock()
	*counter += int64(n)
	total := *counter
	snap := r.snap
	r.mu.Unlock()

	if kind != "" {
		r.bus.Emit(kind, snap)
	}
	return total
}
