package clustertime

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"v.io/x/lib/vlog"
)

// TimeSource is the abstract clock Clock is built on: a monotonic reading
// (unsigned nanoseconds, boot-inclusive) and a realtime reading (signed
// nanoseconds since the Unix epoch), plus Tick, which advances logical time
// for the deterministic variant and is a no-op for the system variant.
//
// TimeSource has exactly two implementations: NewSystemTimeSource (backed by
// the OS) and NewDeterministicTimeSource (tick-driven, for tests and
// simulation). Both are held behind this interface rather than a tagged
// union; Go has no zero-allocation sum type, and an interface value over a
// small pointer-free struct costs nothing a union wouldn't.
type TimeSource interface {
	// Monotonic returns a monotonically non-decreasing reading in
	// nanoseconds, inclusive of time spent suspended.
	Monotonic() uint64
	// Realtime returns the current wall-clock reading, in nanoseconds
	// since the Unix epoch.
	Realtime() int64
	// Tick advances logical time. A no-op for the system time source.
	Tick()
}

////////////////////////////////////////
// systemTimeSource

// systemTimeSource reads elapsed-since-boot time (to stand in for a
// boot-inclusive monotonic clock) from the OS via gopsutil, and wall-clock
// time from the Go runtime.
//
// It maintains a guard on the last value it returned from Monotonic: if the
// OS ever reports a smaller uptime than before, the process aborts. A
// regressing monotonic clock would stall window progression forever, and a
// crash-and-restart is strictly safer than limping along on a clock that
// can no longer be trusted to move forward.
type systemTimeSource struct {
	mu            sync.Mutex
	lastMonotonic uint64
}

var _ TimeSource = (*systemTimeSource)(nil)

// NewSystemTimeSource returns a TimeSource backed by the OS boot time and
// wall clock.
func NewSystemTimeSource() TimeSource {
	return &systemTimeSource{}
}

func (s *systemTimeSource) Monotonic() uint64 {
	uptime, err := host.UptimeWithContext(context.Background())
	if err != nil {
		// The OS clock is unreadable; this is as fatal as a regression,
		// since nothing downstream can make progress without it.
		vlog.Fatalf("clustertime: systemTimeSource: Monotonic: host.Uptime failed: %v", err)
	}
	now := uptime * uint64(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()
	if now < s.lastMonotonic {
		vlog.Fatalf("clustertime: systemTimeSource: Monotonic: clock regression detected: %d < %d", now, s.lastMonotonic)
	}
	s.lastMonotonic = now
	return now
}

func (s *systemTimeSource) Realtime() int64 {
	return time.Now().UnixNano()
}

func (*systemTimeSource) Tick() {
	// No-op: the system clock advances on its own.
}

////////////////////////////////////////
// DeterministicTimeSource

// DeterministicTimeSource is a tick-driven logical clock: Monotonic returns
// ticks*resolution, Realtime returns an epoch offset plus Monotonic, and
// Tick advances the tick counter. This is the contract that makes the
// synchronizer testable without real wall time.
type DeterministicTimeSource struct {
	resolution time.Duration
	epoch      int64
	ticks      uint64
}

var _ TimeSource = (*DeterministicTimeSource)(nil)

// NewDeterministicTimeSource returns a DeterministicTimeSource whose
// Monotonic reading advances by resolution on every call to Tick, and whose
// Realtime reading is epoch plus the current Monotonic reading.
func NewDeterministicTimeSource(resolution time.Duration, epoch int64) *DeterministicTimeSource {
	if resolution <= 0 {
		resolution = time.Second
	}
	return &DeterministicTimeSource{
		resolution: resolution,
		epoch:      epoch,
	}
}

func (d *DeterministicTimeSource) Monotonic() uint64 {
	return d.ticks * uint64(d.resolution)
}

func (d *DeterministicTimeSource) Realtime() int64 {
	return d.epoch + int64(d.Monotonic())
}

func (d *DeterministicTimeSource) Tick() {
	d.ticks++
}

// Ticks returns the number of ticks elapsed so far, mainly for test
// assertions and simulation bookkeeping.
func (d *DeterministicTimeSource) Ticks() uint64 {
	return d.ticks
}
