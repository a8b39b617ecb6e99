package clustertime

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// Clock owns exactly two epochs: current (queried by callers) and window
// (collecting samples), plus a scratch Marzullo tuple buffer sized 2*N to
// avoid per-tick allocation. Clock is single-threaded cooperative: every
// method must be called from the replica's own event-loop goroutine. It
// performs no I/O and never blocks.
type Clock struct {
	replicaCount int
	replica      int
	ts           TimeSource
	cfg          Config

	current *epoch
	window  *epoch

	scratch []marzulloTuple
}

// New constructs a Clock for a cluster of replicaCount members, with this
// process identified as replica. ts supplies monotonic/realtime readings;
// cfg's zero value resolves every threshold to its package default.
func New(replicaCount, replica int, ts TimeSource, cfg Config) (*Clock, error) {
	if replicaCount <= 0 {
		return nil, errors.Errorf("clustertime: New: replicaCount must be positive, got %d", replicaCount)
	}
	if replica < 0 || replica >= replicaCount {
		return nil, errors.Errorf("clustertime: New: replica %d out of range [0, %d)", replica, replicaCount)
	}
	if ts == nil {
		return nil, errors.New("clustertime: New: ts must not be nil")
	}

	c := &Clock{
		replicaCount: replicaCount,
		replica:      replica,
		ts:           ts,
		cfg:          cfg.withDefaults(),
		current:      newEpoch(replicaCount, replica),
		window:       newEpoch(replicaCount, replica),
		scratch:      make([]marzulloTuple, 2*replicaCount),
	}
	c.current.reset(ts)
	c.window.reset(ts)
	return c, nil
}

////////////////////////////////////////////////////////////////////////////////
// Sample ingestion

// Learn records a round-trip sample obtained from peer: m0 is this
// replica's monotonic reading when the ping was sent, t1 is peer's realtime
// reading when it replied, and m2 is this replica's monotonic reading when
// the pong arrived. A sample failing any of the rejection rules below is
// silently discarded.
func (c *Clock) Learn(peer int, m0 uint64, t1 int64, m2 uint64) {
	if peer == c.replica {
		vlog.VI(2).Infof("clustertime: Learn: dropping self-loopback sample from peer %d", peer)
		return
	}
	if m0 >= m2 {
		vlog.VI(2).Infof("clustertime: Learn: dropping sample from peer %d: m0=%d >= m2=%d", peer, m0, m2)
		return
	}
	if m0 < c.window.monotonic || m2 < c.window.monotonic {
		vlog.VI(2).Infof("clustertime: Learn: dropping stale sample from peer %d: predates window start %d", peer, c.window.monotonic)
		return
	}
	if m2-c.window.monotonic > uint64(c.cfg.WindowMax) {
		vlog.VI(2).Infof("clustertime: Learn: dropping sample from peer %d: arrived after window_max", peer)
		return
	}

	rtt := m2 - m0
	owd := time.Duration(rtt / 2)
	t2 := c.window.realtime + int64(m2-c.window.monotonic)
	offset := time.Duration(t1 + int64(owd) - t2)

	existing := c.window.sources[peer]
	if !existing.present || owd <= existing.sample.OneWayDelay {
		c.window.sources[peer] = optSample{
			sample:  Sample{ClockOffset: offset, OneWayDelay: owd},
			present: true,
		}
		vlog.VI(3).Infof("clustertime: Learn: peer %d: offset=%s owd=%s", peer, FormatOffset(offset), FormatOffset(owd))
	}
	c.window.learned = true
}

////////////////////////////////////////////////////////////////////////////////
// Tick / synchronize

// Tick advances the time source (a no-op for the system variant), runs the
// synchronize step, and expires the current epoch if it has outlived
// EpochMax without being refreshed.
func (c *Clock) Tick() {
	c.ts.Tick()
	c.synchronize()
	if c.current.synchronizedSet && c.current.elapsed(c.ts) >= c.cfg.EpochMax {
		vlog.Errorf("clustertime: Tick: ALERT: current epoch exceeded epoch_max (%s); discarding synchronized time", c.cfg.EpochMax)
		c.current.reset(c.ts)
	}
}

// synchronize runs an adaptive-tolerance search over the window's samples
// and, if a majority agrees, promotes window to current.
func (c *Clock) synchronize() {
	if c.window.synchronizedSet {
		vlog.Fatalf("clustertime: synchronize: invariant violated: window already synchronized on entry")
	}
	self := c.window.sources[c.replica]
	if !self.present || self.sample != selfSample {
		vlog.Fatalf("clustertime: synchronize: invariant violated: self-sample missing or non-zero: %+v", self)
	}

	elapsed := c.window.elapsed(c.ts)
	if elapsed >= c.cfg.WindowMax {
		vlog.Errorf("clustertime: synchronize: window timed out after %s without majority; resetting", FormatOffset(elapsed))
		c.window.reset(c.ts)
		return
	}
	if !c.window.learned {
		return
	}
	if elapsed < c.cfg.WindowMin {
		return
	}

	roundID := uuid.New()
	majority := c.replicaCount / 2
	tolerance := c.cfg.ClockOffsetToleranceMax
	var best marzulloInterval
	rounds := 0

	for i := 0; i < maxToleranceRounds; i++ {
		terminate := tolerance == 0
		n := c.buildTuples(tolerance)
		result := solveMarzullo(c.scratch[:n])
		rounds++
		vlog.VI(4).Infof("clustertime: synchronize[%s]: round %d: tolerance=%s sourcesTrue=%d interval=[%s,%s]",
			roundID, rounds, FormatOffset(tolerance), result.SourcesTrue, FormatOffset(result.Lower), FormatOffset(result.Upper))
		vlog.VI(5).Infof("clustertime: synchronize[%s]: round %d: window dump: %s", roundID, rounds, c.window.debugDump())

		if result.SourcesTrue <= majority {
			break
		}
		if result.Lower > result.Upper {
			vlog.Fatalf("clustertime: synchronize: invariant violated: interval bounds inverted: [%s,%s]", FormatOffset(result.Lower), FormatOffset(result.Upper))
		}

		c.window.setSynchronized(Interval{Lower: result.Lower, Upper: result.Upper})
		best = result
		if terminate {
			break
		}
		tolerance /= 2
	}

	c.window.learned = false

	if !c.window.synchronizedSet {
		return
	}

	previous := c.current.synchronized
	c.current, c.window = c.window, c.current
	c.window.reset(c.ts)

	vlog.VI(1).Infof("clustertime: synchronize[%s]: promoted window to current: sourcesTrue=%d interval=[%s,%s] (previous=%s)",
		roundID, best.SourcesTrue, FormatOffset(best.Lower), FormatOffset(best.Upper), formatPreviousInterval(previous))

	c.logClockDeviation(roundID)
}

// buildTuples fills c.scratch with two tuples per present source in window
// and returns how many tuples were written.
func (c *Clock) buildTuples(tolerance time.Duration) int {
	n := 0
	for i, s := range c.window.sources {
		if !s.present {
			continue
		}
		lower := s.sample.ClockOffset - s.sample.OneWayDelay - tolerance
		upper := s.sample.ClockOffset + s.sample.OneWayDelay + tolerance
		c.scratch[n] = marzulloTuple{sourceID: i, offset: lower, isUpper: false}
		n++
		c.scratch[n] = marzulloTuple{sourceID: i, offset: upper, isUpper: true}
		n++
	}
	return n
}

func formatPreviousInterval(iv *Interval) string {
	if iv == nil {
		return "<none>"
	}
	return "[" + FormatOffset(iv.Lower) + "," + FormatOffset(iv.Upper) + "]"
}

// logClockDeviation logs whether the raw system clock falls inside the
// freshly-promoted current interval, and by how much if not.
func (c *Clock) logClockDeviation(roundID uuid.UUID) {
	lower, upper, ok := computeBounds(c.current, c.ts)
	if !ok {
		return
	}
	raw := c.ts.Realtime()
	switch {
	case raw < lower:
		vlog.Errorf("clustertime: synchronize[%s]: system clock is %s behind the synchronized interval", roundID, FormatOffset(time.Duration(lower-raw)))
	case raw > upper:
		vlog.Errorf("clustertime: synchronize[%s]: system clock is %s ahead of the synchronized interval", roundID, FormatOffset(time.Duration(raw-upper)))
	default:
		vlog.VI(2).Infof("clustertime: synchronize[%s]: system clock is within the synchronized interval", roundID)
	}
}

////////////////////////////////////////////////////////////////////////////////
// Queries

// Monotonic returns the time source's monotonic reading; used by the host to
// stamp outgoing pings and incoming pongs.
func (c *Clock) Monotonic() uint64 {
	return c.ts.Monotonic()
}

// Realtime returns RealtimeSynchronized if present, otherwise the raw OS
// realtime reading. It exists only for replying to pings; the state machine
// must call RealtimeSynchronized directly and must not produce timestamps
// when it returns false.
func (c *Clock) Realtime() int64 {
	if t, ok := c.RealtimeSynchronized(); ok {
		return t
	}
	return c.ts.Realtime()
}

// RealtimeSynchronized returns this replica's current estimate of cluster
// time: the raw OS realtime clamped into the bounds implied by the current
// epoch's synchronized interval. It returns false if no epoch has ever
// reached majority agreement (or the one that did has since expired).
func (c *Clock) RealtimeSynchronized() (int64, bool) {
	lower, upper, ok := computeBounds(c.current, c.ts)
	if !ok {
		return 0, false
	}
	return clampInt64(c.ts.Realtime(), lower, upper), true
}

// SourceCount returns how many distinct sources (including self) have
// contributed a sample to the current window. It participates in no
// synchronization decision; it is purely observational.
func (c *Clock) SourceCount() int {
	return c.window.sourceCount()
}

func computeBounds(e *epoch, ts TimeSource) (lower, upper int64, ok bool) {
	if !e.synchronizedSet {
		return 0, 0, false
	}
	elapsed := e.elapsed(ts)
	lower = e.realtime + int64(elapsed) + int64(e.synchronized.Lower)
	upper = e.realtime + int64(elapsed) + int64(e.synchronized.Upper)
	return lower, upper, true
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
