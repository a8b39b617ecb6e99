// Package clustertime implements a fault-tolerant cluster clock
// synchronizer: a per-replica component that fuses round-trip time samples
// from peer replicas into a bounded interval of "cluster time" using
// Marzullo's intersection algorithm.
//
// The package is built from five cooperating parts:
//   - TimeSource: an abstract monotonic + realtime clock, with a system
//     variant backed by the OS and a deterministic variant for tests.
//   - the Marzullo solver: given a set of candidate offset intervals, finds
//     the smallest sub-interval covered by the most sources.
//   - Epoch: a snapshot of one synchronization attempt (per-source best
//     samples plus the wall/monotonic anchor captured at its start).
//   - Clock: owns a "current" epoch (safe to query) and a "window" epoch
//     (collecting samples), runs the synchronize step, and answers
//     synchronized-time queries.
//   - a Formatter for rendering signed durations in log lines.
//
// Clock is not a general NTP implementation: it does not adjust the OS
// clock, does not correct for asymmetric network paths, and does not
// persist any state across restarts. Message transport, the replica's event
// loop, and the state machine that consumes timestamps are all external
// collaborators; see the Clock.Learn, Clock.Tick, and
// Clock.RealtimeSynchronized doc comments for the contract each side must
// honor.
package clustertime
