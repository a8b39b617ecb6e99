package clustertime

import (
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
)

// Interval is a bounded range of signed-nanosecond cluster-time offsets,
// agreed upon by a majority of cluster members.
type Interval struct {
	Lower time.Duration
	Upper time.Duration
}

// optSample is a Sample plus a presence flag, avoiding a pointer (and the
// allocation/aliasing that comes with one) in the fixed-size sources array.
type optSample struct {
	sample  Sample
	present bool
}

// epoch is a snapshot of one synchronization attempt: a fixed-length vector
// of optional per-source samples, the wall/monotonic anchor captured at
// epoch start, and (once Marzullo has produced a majority agreement) the
// resulting synchronized interval.
//
// Invariants:
//   - sources[self] == Sample{} (present) immediately after reset and
//     forever.
//   - synchronized.Lower <= synchronized.Upper when present.
//   - realtime and monotonic are set together and never mutated
//     independently.
type epoch struct {
	sources []optSample // length == replicaCount, indexed by replica id
	self    int

	monotonic uint64
	realtime  int64

	synchronized    *Interval
	synchronizedSet bool

	learned bool
}

func newEpoch(replicaCount, self int) *epoch {
	return &epoch{
		sources: make([]optSample, replicaCount),
		self:    self,
	}
}

// reset clears all sources to absent, reinstalls the self-sample, re-anchors
// the epoch to the time source's current monotonic/realtime readings, and
// clears synchronized/learned.
func (e *epoch) reset(ts TimeSource) {
	for i := range e.sources {
		e.sources[i] = optSample{}
	}
	e.sources[e.self] = optSample{sample: selfSample, present: true}
	e.monotonic = ts.Monotonic()
	e.realtime = ts.Realtime()
	e.synchronized = nil
	e.synchronizedSet = false
	e.learned = false
}

// elapsed returns the monotonic time elapsed since this epoch started. The
// caller must ensure the underlying monotonic clock has not been rewound
// (guaranteed by the TimeSource contract).
func (e *epoch) elapsed(ts TimeSource) time.Duration {
	return time.Duration(ts.Monotonic() - e.monotonic)
}

// setSynchronized installs iv as this epoch's synchronized interval. iv.Lower
// must be <= iv.Upper; the caller is responsible for checking that ordering
// before calling this.
func (e *epoch) setSynchronized(iv Interval) {
	cp := iv
	e.synchronized = &cp
	e.synchronizedSet = true
}

// sourceCount counts the non-absent entries in sources, including self. It
// participates in no synchronization decision; it exists purely so callers
// can observe how many peers have contributed to the current window.
func (e *epoch) sourceCount() int {
	n := 0
	for _, s := range e.sources {
		if s.present {
			n++
		}
	}
	return n
}

// debugDump renders the epoch's full state for vlog.V(5)-gated tracing.
func (e *epoch) debugDump() string {
	return fmt.Sprintf("monotonic=%d realtime=%d learned=%v synchronized=%s sources=%s",
		e.monotonic, e.realtime, e.learned, formatSynchronized(e), spew.Sdump(e.sources))
}

func formatSynchronized(e *epoch) string {
	if !e.synchronizedSet {
		return "<none>"
	}
	return fmt.Sprintf("[%s, %s]", FormatOffset(e.synchronized.Lower), FormatOffset(e.synchronized.Upper))
}
