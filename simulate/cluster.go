// Package simulate drives a cluster of in-process clustertime.Clock values
// through an in-memory ping/pong exchange, standing in for the transport and
// event-loop collaborators that a real host would provide. It exists to
// exercise the core's public API the way a host integration would, and to
// give the end-to-end scenarios room to run against more than one replica
// without a network.
package simulate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"v.io/x/lib/vlog"

	"github.com/martinvidec/clustertime"
)

type pingMsg struct {
	from int
	m0   uint64
}

type pongMsg struct {
	from int
	m0   uint64
	t1   int64
}

// replica pairs one clustertime.Clock with the inbox channels its owning
// goroutine alone is permitted to drain. Nothing outside that goroutine may
// call methods on clock: clustertime.Clock is single-threaded cooperative,
// and Cluster generalizes that contract to "one goroutine per replica"
// rather than relaxing it.
type replica struct {
	id    int
	clock *clustertime.Clock
	pings chan pingMsg
	pongs chan pongMsg
}

// Cluster is a fixed-size set of replicas, each running its own Clock over
// an independent DeterministicTimeSource, exchanging samples purely through
// in-memory channels.
type Cluster struct {
	replicas []*replica
}

// NewCluster builds a Cluster of n replicas, each configured with cfg (its
// zero value resolves to clustertime's package defaults). Every replica
// starts its own DeterministicTimeSource at resolution 1s, epoch 0.
func NewCluster(n int, cfg clustertime.Config) (*Cluster, error) {
	if n <= 0 {
		return nil, errors.Errorf("simulate: NewCluster: n must be positive, got %d", n)
	}
	replicas := make([]*replica, n)
	for i := range replicas {
		ts := clustertime.NewDeterministicTimeSource(time.Second, 0)
		c, err := clustertime.New(n, i, ts, cfg)
		if err != nil {
			return nil, err
		}
		replicas[i] = &replica{
			id:    i,
			clock: c,
			pings: make(chan pingMsg, 4*n),
			pongs: make(chan pongMsg, 4*n),
		}
	}
	return &Cluster{replicas: replicas}, nil
}

// Clock returns replica i's Clock, for inspecting simulation outcomes (e.g.
// calling RealtimeSynchronized() after Run returns). It must not be called
// while Run is still in flight: the owning goroutine may be concurrently
// calling Learn/Tick on the same Clock.
func (c *Cluster) Clock(i int) *clustertime.Clock {
	return c.replicas[i].clock
}

// Run drives every replica through rounds ticks concurrently, one goroutine
// per replica, until rounds elapse or ctx is cancelled. Each round a replica
// drains whatever pings/pongs have arrived since its last round, pings every
// other replica, then ticks its own clock. Run returns the first error
// reported by any replica (ctx cancellation, typically), or nil once every
// replica completes its rounds.
func (c *Cluster) Run(ctx context.Context, rounds int) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range c.replicas {
		r := r
		g.Go(func() error {
			return c.driveReplica(ctx, r, rounds)
		})
	}
	return g.Wait()
}

func (c *Cluster) driveReplica(ctx context.Context, r *replica, rounds int) error {
	runID := uuid.New()
	for round := 0; round < rounds; round++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.drainInbox(r)

		m0 := r.clock.Monotonic()
		for _, peer := range c.replicas {
			if peer.id == r.id {
				continue
			}
			// A full inbox drops the ping, like a lossy transport, so a
			// replica that has finished its rounds cannot stall the others.
			select {
			case peer.pings <- pingMsg{from: r.id, m0: m0}:
			default:
			}
		}

		r.clock.Tick()

		vlog.VI(3).Infof("simulate[%s]: replica %d: round %d: sourceCount=%d", runID, r.id, round, r.clock.SourceCount())
	}
	return nil
}

// drainInbox answers every ping currently queued for r with a pong carrying
// r's own synchronized-preferred realtime, and feeds every pong currently
// queued for r into r.clock.Learn. It never blocks: once both channels are
// empty it returns, leaving whatever arrives later for the next round.
func (c *Cluster) drainInbox(r *replica) {
	for {
		select {
		case p := <-r.pings:
			t1 := r.clock.Realtime()
			select {
			case c.replicas[p.from].pongs <- pongMsg{from: r.id, m0: p.m0, t1: t1}:
			default: // pinger's inbox is full: drop the pong
			}
		case p := <-r.pongs:
			m2 := r.clock.Monotonic()
			r.clock.Learn(p.from, p.m0, p.t1, m2)
		default:
			return
		}
	}
}
