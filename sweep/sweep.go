// Package sweep aggregates directions into angle sets and drives full sweeps
// of a partitioned mesh on one location.
package sweep

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gosweep/angleset"
	"github.com/notargets/gosweep/comm"
	"github.com/notargets/gosweep/fluds"
	"github.com/notargets/gosweep/mesh"
	"github.com/notargets/gosweep/spds"
	"github.com/notargets/gosweep/sweepbuffer"
)

type Config struct {
	NumGroups int
	Buffer    sweepbuffer.Config
}

type Sweeper struct {
	Partition *mesh.Partition
	// AngleSetDirections[i] are the direction indices swept by angle set i
	AngleSetDirections [][]int
	AngleSets          []*angleset.AngleSet
	Scheduler          *angleset.Scheduler

	log zerolog.Logger
}

// New groups directions that produce the same face orientations on every
// location, then builds one SPDS, FLUDS, psi store, sweep buffer and angle set
// per group. It is collective.
func New(ctx context.Context, c comm.Communicator, part *mesh.Partition, omegas []r3.Vec,
	kernel angleset.Kernel, cfg Config, log zerolog.Logger) (sw *Sweeper, err error) {
	if cfg.NumGroups < 1 {
		return nil, fmt.Errorf("need at least one group, have %d", cfg.NumGroups)
	}
	sw = &Sweeper{
		Partition: part,
		log:       log.With().Int("location", c.Rank()).Logger(),
	}
	if sw.AngleSetDirections, err = groupDirections(ctx, c, part, omegas); err != nil {
		return nil, err
	}
	var buffers []*sweepbuffer.SweepBuffer
	for id, dirs := range sw.AngleSetDirections {
		var (
			s   *spds.SPDS
			f   *fluds.FLUDS
			b   *sweepbuffer.SweepBuffer
			psi *fluds.PsiStore
		)
		if s, err = spds.New(ctx, c, part, omegas[dirs[0]], log); err != nil {
			return nil, fmt.Errorf("angle set %d: %w", id, err)
		}
		if f, err = fluds.New(s); err != nil {
			return nil, fmt.Errorf("angle set %d: %w", id, err)
		}
		if err = sweepbuffer.ExchangeCellViews(ctx, c, s, f, id, cfg.Buffer, log); err != nil {
			return nil, fmt.Errorf("angle set %d: %w", id, err)
		}
		psi = fluds.NewPsiStore(f, len(dirs), cfg.NumGroups)
		if b, err = sweepbuffer.New(ctx, c, f, psi, id, cfg.Buffer, log); err != nil {
			return nil, fmt.Errorf("angle set %d: %w", id, err)
		}
		buffers = append(buffers, b)
		sw.AngleSets = append(sw.AngleSets, angleset.New(id, dirs, b, psi, f, kernel, log))
	}
	sweepbuffer.AlignTagStride(buffers)
	sw.Scheduler = angleset.NewScheduler(sw.AngleSets, sw.log)
	sw.log.Info().Int("directions", len(omegas)).Int("angleSets", len(sw.AngleSets)).
		Int("cells", len(part.Cells)).Msg("sweeper ready")
	return
}

// Sweep resets every angle set and runs one complete sweep.
func (sw *Sweeper) Sweep(ctx context.Context) error {
	sw.Scheduler.Reset()
	return sw.Scheduler.Sweep(ctx)
}

// signature encodes the orientation of every local face for omega.
func signature(part *mesh.Partition, omega r3.Vec) string {
	var sig []byte
	for _, cell := range part.Cells {
		for _, face := range cell.Faces {
			sig = append(sig, byte(spds.Orient(omega, face.Normal)))
		}
	}
	return string(sig)
}

// groupDirections returns direction groups, ordered by their first member,
// whose face orientations agree on every location.
func groupDirections(ctx context.Context, c comm.Communicator, part *mesh.Partition,
	omegas []r3.Vec) (groups [][]int, err error) {
	if len(omegas) == 0 {
		return nil, fmt.Errorf("no directions")
	}
	var (
		class = make([]int, len(omegas))
		first = make(map[string]int)
	)
	for d, omega := range omegas {
		sig := signature(part, omega)
		if f, ok := first[sig]; ok {
			class[d] = f
		} else {
			first[sig] = d
			class[d] = d
		}
	}
	var all [][]int
	if all, err = comm.AllGather(ctx, c, class); err != nil {
		return nil, fmt.Errorf("gathering direction classes: %w", err)
	}
	for loc, cl := range all {
		if len(cl) != len(omegas) {
			return nil, fmt.Errorf("location %d has %d directions, want %d", loc, len(cl), len(omegas))
		}
	}
	index := make(map[string]int)
	for d := range omegas {
		key := make([]int, len(all))
		for loc, cl := range all {
			key[loc] = cl[d]
		}
		k := fmt.Sprint(key)
		if g, ok := index[k]; ok {
			groups[g] = append(groups[g], d)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, []int{d})
	}
	return
}

// AngleSetSummary describes one angle set for reports.
type AngleSetSummary struct {
	ID                  int   `json:"id"`
	Directions          []int `json:"directions"`
	Predecessors        []int `json:"predecessors"`
	DelayedPredecessors []int `json:"delayedPredecessors"`
	Successors          []int `json:"successors"`
	DelayedSuccessors   []int `json:"delayedSuccessors"`
	LocalCycles         int   `json:"localCycles"`
	SweepPlanes         int   `json:"sweepPlanes"`
	MaxMessages         int   `json:"maxMessages"`
}

func (sw *Sweeper) Summary() (sum []AngleSetSummary) {
	for _, as := range sw.AngleSets {
		s := as.SPDS
		sum = append(sum, AngleSetSummary{
			ID:                  as.ID,
			Directions:          slices.Clone(as.Angles),
			Predecessors:        s.LocationDependencies(),
			DelayedPredecessors: s.DelayedLocationDependencies(),
			Successors:          s.LocationSuccessors(),
			DelayedSuccessors:   s.DelayedLocationSuccessors(),
			LocalCycles:         len(s.LocalCyclicDependencies),
			SweepPlanes:         len(s.GlobalSweepPlanes),
			MaxMessages:         as.Buffer.MaxNumMessages(),
		})
	}
	return
}
