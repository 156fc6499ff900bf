package spds

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// LocationGraph is the global location dependency structure for one direction.
// Every location builds the same one from the gathered dependency lists.
type LocationGraph struct {
	// Dependencies[r] are the locations r depends on
	Dependencies [][]int
	// Matrix has a nonzero at (j, r) when r depends on j
	Matrix *sparse.CSR
	// Delayed holds (from, to) edges removed to break cycles
	Delayed map[[2]int]bool
	// Planes groups locations into levels that can sweep concurrently
	Planes [][]int
}

// NewLocationGraph classifies every edge and verifies the result is deadlock free.
func NewLocationGraph(deps [][]int) (lg *LocationGraph, err error) {
	size := len(deps)
	dok := sparse.NewDOK(max(size, 1), max(size, 1))
	for r, rdeps := range deps {
		for _, j := range rdeps {
			if j < 0 || j >= size || j == r {
				return nil, &TopologyError{
					Reason: fmt.Sprintf("location %d lists invalid dependency %d", r, j),
				}
			}
			dok.Set(j, r, 1)
		}
	}
	lg = &LocationGraph{
		Dependencies: deps,
		Matrix:       dok.ToCSR(),
		Delayed:      make(map[[2]int]bool),
	}
	g := lg.graph(false)
	for _, e := range removeCycles(g) {
		lg.Delayed[e] = true
	}
	if err = lg.Verify(); err != nil {
		return nil, err
	}
	lg.Planes = sweepPlanes(g, size)
	return
}

func (lg *LocationGraph) graph(withDelayed bool) *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for r := range lg.Dependencies {
		g.AddNode(simple.Node(r))
	}
	lg.Matrix.DoNonZero(func(i, j int, v float64) {
		if !withDelayed && lg.Delayed[[2]int{i, j}] {
			return
		}
		g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(j)))
	})
	return g
}

// Tag of the edge from -> to. The edge must exist.
func (lg *LocationGraph) Tag(from, to int) EdgeTag {
	if lg.Delayed[[2]int{from, to}] {
		return Delayed
	}
	return Ordinary
}

// Verify checks that the ordinary edges alone form a DAG and that every delayed
// edge is part of the dependency structure.
func (lg *LocationGraph) Verify() error {
	for e := range lg.Delayed {
		if lg.Matrix.At(e[0], e[1]) == 0 {
			return &TopologyError{
				Reason: fmt.Sprintf("delayed edge %d->%d is not a dependency", e[0], e[1]),
			}
		}
	}
	if _, err := topo.Sort(lg.graph(false)); err != nil {
		te := &TopologyError{Reason: "location graph is cyclic after removing delayed edges"}
		if u, ok := err.(topo.Unorderable); ok {
			for _, cycle := range u {
				ids := make([]int, len(cycle))
				for i, n := range cycle {
					ids[i] = int(n.ID())
				}
				sort.Ints(ids)
				te.Cycles = append(te.Cycles, ids)
			}
		}
		return te
	}
	return nil
}

// sweepPlanes layers the acyclic graph g by longest path from the sources.
func sweepPlanes(g *simple.DirectedGraph, size int) (planes [][]int) {
	inDegree := make([]int, size)
	for r := 0; r < size; r++ {
		inDegree[r] = g.To(int64(r)).Len()
	}
	var ready []int
	for r, d := range inDegree {
		if d == 0 {
			ready = append(ready, r)
		}
	}
	for len(ready) > 0 {
		planes = append(planes, ready)
		var next []int
		for _, u := range ready {
			succ := g.From(int64(u))
			for succ.Next() {
				v := int(succ.Node().ID())
				if inDegree[v]--; inDegree[v] == 0 {
					next = append(next, v)
				}
			}
		}
		sort.Ints(next)
		ready = next
	}
	return
}
