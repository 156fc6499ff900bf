// Package sweepbuffer owns the messaging of a sweep: the one-time exchange of
// cell views that aligns remote face slots, and the per-sweep psi send and
// receive lifecycle of each angle set.
package sweepbuffer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notargets/gosweep/comm"
	"github.com/notargets/gosweep/fluds"
	"github.com/notargets/gosweep/spds"
)

const (
	fludsTagBase = 101
	psiTagBase   = 1 << 20
)

type Config struct {
	// EagerLimit in bytes bounds the size of a single psi message
	EagerLimit int
}

func DefaultConfig() Config {
	return Config{EagerLimit: comm.DefaultEagerLimit}
}

/*
ExchangeCellViews sends this location's outgoing cell views to every successor
and maps the views received from every predecessor. Every location must call
it with the same tagIndex for the same direction. The order is:

 1. Isend views to delayed successors
 2. Probe and receive views from delayed predecessors
 3. Probe and receive views from ordinary predecessors
 4. Isend views to ordinary successors
 5. Wait for all sends
 6. Map incoming faces, then release the views

Delayed traffic does not follow the dependency graph, so it is posted before
any blocking receive. Ordinary traffic does, so steps 3-4 cannot deadlock.
*/
func ExchangeCellViews(ctx context.Context, c comm.Communicator, s *spds.SPDS, f *fluds.FLUDS,
	tagIndex int, cfg Config, log zerolog.Logger) (err error) {
	var (
		tag         = fludsTagBase + tagIndex
		succs       = s.AllLocationSuccessors()
		deps        = s.LocationDependencies()
		delayedDeps = s.DelayedLocationDependencies()
		requests    = make([]comm.Request, len(succs))
		xlog        = log.With().Int("location", c.Rank()).Int("tag", tag).Logger()
	)
	send := func(d int) (err error) {
		buf := fluds.Serialize(f.OutgoingViews(d), f.DeplocIDofs[d])
		if nb := comm.PayloadBytes(buf); nb > cfg.EagerLimit {
			xlog.Warn().Int("successor", succs[d]).Int("bytes", nb).Int("eagerLimit", cfg.EagerLimit).
				Msg("cell view buffer exceeds eager limit")
		}
		if requests[d], err = c.Isend(buf, succs[d], tag); err != nil {
			return fmt.Errorf("sending cell views to %d: %w", succs[d], err)
		}
		return
	}
	receive := func(loc int) (rv fluds.ReceivedViews, err error) {
		var st comm.Status
		if st, err = c.Probe(ctx, loc, tag); err != nil {
			return rv, fmt.Errorf("probing cell views from %d: %w", loc, err)
		}
		buf := make([]int, st.Count)
		if err = c.Recv(ctx, buf, loc, tag); err != nil {
			return rv, fmt.Errorf("receiving cell views from %d: %w", loc, err)
		}
		if rv.Views, rv.NumFaceDofs, err = fluds.Deserialize(buf); err != nil {
			return rv, fmt.Errorf("cell views from %d: %w", loc, err)
		}
		return
	}

	xlog.Debug().Stringer("state", SendingOutgoing).Msg("cell view exchange")
	for d := range succs {
		if f.IsDelayedSuccessor(d) {
			if err = send(d); err != nil {
				return
			}
		}
	}
	xlog.Debug().Stringer("state", AwaitingDelayedIncoming).Msg("cell view exchange")
	delayed := make([]fluds.ReceivedViews, len(delayedDeps))
	for p, loc := range delayedDeps {
		if delayed[p], err = receive(loc); err != nil {
			return
		}
	}
	xlog.Debug().Stringer("state", AwaitingOrdinaryIncoming).Msg("cell view exchange")
	ordinary := make([]fluds.ReceivedViews, len(deps))
	for p, loc := range deps {
		if ordinary[p], err = receive(loc); err != nil {
			return
		}
	}
	xlog.Debug().Stringer("state", SendingOrdinaryOutgoing).Msg("cell view exchange")
	for d := range succs {
		if !f.IsDelayedSuccessor(d) {
			if err = send(d); err != nil {
				return
			}
		}
	}
	xlog.Debug().Stringer("state", Draining).Msg("cell view exchange")
	if err = comm.WaitAll(ctx, requests); err != nil {
		return fmt.Errorf("waiting for cell view sends: %w", err)
	}
	if err = f.MapIncoming(ordinary, delayed); err != nil {
		return
	}
	f.ReleaseViews()
	xlog.Debug().Stringer("state", Done).Msg("cell view exchange")
	return
}
