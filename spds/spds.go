// Package spds builds the sweep plane data structure for one direction: the
// local sweep order of a location's cells and the classification of every
// cross-location dependency as ordinary or delayed.
package spds

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gosweep/comm"
	"github.com/notargets/gosweep/mesh"
)

// ParallelTol is the |omega.n| below which a face carries no dependency.
const ParallelTol = 1.e-12

type EdgeTag uint8

const (
	Ordinary EdgeTag = iota
	// Delayed edges close a cycle in the location graph. Their data is
	// exchanged before the ordinary phase and lags by one sweep.
	Delayed
)

func (t EdgeTag) String() string {
	if t == Delayed {
		return "Delayed"
	}
	return "Ordinary"
}

type Orientation int8

const (
	Parallel Orientation = iota
	Incoming
	Outgoing
)

func Orient(omega, normal r3.Vec) Orientation {
	switch mu := r3.Dot(omega, normal); {
	case mu < -ParallelTol:
		return Incoming
	case mu > ParallelTol:
		return Outgoing
	}
	return Parallel
}

type SPDS struct {
	Omega     r3.Vec
	Location  int
	Partition *mesh.Partition

	// SPLS is the local sweep order as local cell ids
	SPLS []int
	// LocalCyclicDependencies are (upwind, downwind) local edges dropped to
	// break local cycles; the downwind cell reads the previous sweep's value.
	LocalCyclicDependencies [][2]int

	// Predecessors and Successors map neighbor locations to their edge tag.
	Predecessors map[int]EdgeTag
	Successors   map[int]EdgeTag

	GlobalSweepPlanes [][]int

	orientation [][]Orientation
}

// New builds the SPDS for direction omega. It is collective: every location
// must call it for the same directions in the same order.
func New(ctx context.Context, c comm.Communicator, part *mesh.Partition, omega r3.Vec,
	log zerolog.Logger) (s *SPDS, err error) {
	if part.Location != c.Rank() {
		return nil, fmt.Errorf("partition location %d does not match rank %d",
			part.Location, c.Rank())
	}
	s = &SPDS{
		Omega:        omega,
		Location:     part.Location,
		Partition:    part,
		Predecessors: make(map[int]EdgeTag),
		Successors:   make(map[int]EdgeTag),
	}
	s.orientFaces()
	deps := s.buildLocalGraph()

	var all [][]int
	if all, err = comm.AllGather(ctx, c, deps); err != nil {
		return nil, fmt.Errorf("gathering location dependencies: %w", err)
	}
	var lg *LocationGraph
	if lg, err = NewLocationGraph(all); err != nil {
		if te, ok := err.(*TopologyError); ok {
			te.Omega = omega
		}
		return nil, err
	}
	s.classify(lg)

	log.Debug().Int("location", s.Location).Floats64("omega", []float64{omega.X, omega.Y, omega.Z}).
		Ints("deps", s.LocationDependencies()).Ints("delayedDeps", s.DelayedLocationDependencies()).
		Ints("succs", s.LocationSuccessors()).Ints("delayedSuccs", s.DelayedLocationSuccessors()).
		Int("localCycles", len(s.LocalCyclicDependencies)).Int("planes", len(s.GlobalSweepPlanes)).
		Msg("spds built")
	return
}

func (s *SPDS) orientFaces() {
	s.orientation = make([][]Orientation, len(s.Partition.Cells))
	for _, cell := range s.Partition.Cells {
		o := make([]Orientation, len(cell.Faces))
		for f, face := range cell.Faces {
			o[f] = Orient(s.Omega, face.Normal)
		}
		s.orientation[cell.LocalID] = o
	}
}

// FaceOrientation of face f of local cell c
func (s *SPDS) FaceOrientation(c, f int) Orientation { return s.orientation[c][f] }

func (s *SPDS) classify(lg *LocationGraph) {
	me := s.Location
	for _, j := range lg.Dependencies[me] {
		s.Predecessors[j] = lg.Tag(j, me)
	}
	for r, deps := range lg.Dependencies {
		for _, j := range deps {
			if j == me {
				s.Successors[r] = lg.Tag(me, r)
			}
		}
	}
	s.GlobalSweepPlanes = lg.Planes
}

func selectTag(m map[int]EdgeTag, tag EdgeTag) (locs []int) {
	locs = []int{}
	for loc, t := range m {
		if t == tag {
			locs = append(locs, loc)
		}
	}
	sort.Ints(locs)
	return
}

func keys(m map[int]EdgeTag) (locs []int) {
	locs = make([]int, 0, len(m))
	for loc := range m {
		locs = append(locs, loc)
	}
	sort.Ints(locs)
	return
}

// LocationDependencies are the ordinary predecessor locations, ascending.
// Their index is the "prelocI" index used by FLUDS and the sweep buffer.
func (s *SPDS) LocationDependencies() []int { return selectTag(s.Predecessors, Ordinary) }

// DelayedLocationDependencies are indexed by "delayed prelocI".
func (s *SPDS) DelayedLocationDependencies() []int { return selectTag(s.Predecessors, Delayed) }

func (s *SPDS) LocationSuccessors() []int { return selectTag(s.Successors, Ordinary) }

func (s *SPDS) DelayedLocationSuccessors() []int { return selectTag(s.Successors, Delayed) }

// AllLocationSuccessors is the union of ordinary and delayed successors,
// indexed by "deplocI".
func (s *SPDS) AllLocationSuccessors() []int { return keys(s.Successors) }

// GlobalOrder returns SPLS as global cell ids
func (s *SPDS) GlobalOrder() []int {
	order := make([]int, len(s.SPLS))
	for i, c := range s.SPLS {
		order[i] = s.Partition.Cells[c].GlobalID
	}
	return order
}

// TopologyError reports a dependency structure that cannot be swept without
// deadlock. It is fatal and indicates a graph construction bug or corrupted
// connectivity, never a transient condition.
type TopologyError struct {
	Omega  r3.Vec
	Reason string
	Cycles [][]int
}

func (e *TopologyError) Error() string {
	msg := fmt.Sprintf("sweep topology error for omega (%g,%g,%g): %s",
		e.Omega.X, e.Omega.Y, e.Omega.Z, e.Reason)
	if len(e.Cycles) > 0 {
		msg += fmt.Sprintf(", cycles %v", e.Cycles)
	}
	return msg
}
