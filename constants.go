package clustertime

import "time"

// Default tunables. Config zero values resolve to these.
const (
	// DefaultClockOffsetToleranceMax is the initial Marzullo slack applied
	// to every source's candidate interval before the adaptive-tolerance
	// search begins tightening it.
	DefaultClockOffsetToleranceMax = 100 * time.Millisecond

	// DefaultEpochMax is the maximum age of a synchronized "current" epoch
	// before it is discarded for being too stale to trust.
	DefaultEpochMax = 60 * time.Second

	// DefaultWindowMin is the minimum observation time a "window" epoch
	// must accumulate before a synchronize attempt is made.
	DefaultWindowMin = 3 * time.Second

	// DefaultWindowMax is the maximum age of a "window" epoch before it is
	// discarded as stale, even if it never reached a majority.
	DefaultWindowMax = 20 * time.Second

	// DefaultTickInterval is the suggested period at which the host should
	// invoke Clock.Tick.
	DefaultTickInterval = time.Second
)

// maxToleranceRounds bounds the adaptive-tolerance search in synchronize:
// halve the tolerance up to this many times before giving up on tightening
// the interval further.
const maxToleranceRounds = 64
