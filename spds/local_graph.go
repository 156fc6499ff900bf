package spds

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/notargets/gosweep/mesh"
)

// buildLocalGraph orders the local cells and returns the remote locations this
// location depends on, ascending.
func (s *SPDS) buildLocalGraph() (deps []int) {
	var (
		part   = s.Partition
		g      = simple.NewDirectedGraph()
		depSet = make(map[int]struct{})
	)
	for _, cell := range part.Cells {
		g.AddNode(simple.Node(cell.LocalID))
	}
	for _, cell := range part.Cells {
		for f, face := range cell.Faces {
			if s.orientation[cell.LocalID][f] != Incoming {
				continue
			}
			switch face.Kind {
			case mesh.LocalFace:
				up, _ := part.LocalID(face.Neighbor)
				if up == cell.LocalID {
					continue
				}
				g.SetEdge(g.NewEdge(simple.Node(up), simple.Node(cell.LocalID)))
			case mesh.RemoteFace:
				depSet[face.NeighborLocation] = struct{}{}
			}
		}
	}
	s.LocalCyclicDependencies = removeCycles(g)

	sorted, err := topo.SortStabilized(g, byID)
	if err != nil {
		// removeCycles leaves a DAG
		panic(err)
	}
	s.SPLS = make([]int, len(sorted))
	for i, n := range sorted {
		s.SPLS[i] = int(n.ID())
	}

	deps = make([]int, 0, len(depSet))
	for loc := range depSet {
		deps = append(deps, loc)
	}
	sort.Ints(deps)
	return
}

func byID(nodes []graph.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}

// removeCycles deletes the back edges of an ascending-id depth first search
// inside every strongly connected component of g and returns them sorted as
// (from, to) pairs. The remaining graph is acyclic.
func removeCycles(g *simple.DirectedGraph) (removed [][2]int) {
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) < 2 {
			continue
		}
		removed = append(removed, backEdges(g, scc)...)
	}
	for _, e := range removed {
		g.RemoveEdge(int64(e[0]), int64(e[1]))
	}
	sort.Slice(removed, func(i, j int) bool {
		if removed[i][0] != removed[j][0] {
			return removed[i][0] < removed[j][0]
		}
		return removed[i][1] < removed[j][1]
	})
	return
}

func backEdges(g graph.Directed, component []graph.Node) (edges [][2]int) {
	const (
		unvisited = iota
		onStack
		finished
	)
	var (
		inComponent = make(map[int64]bool, len(component))
		state       = make(map[int64]int, len(component))
		ids         = make([]int64, 0, len(component))
	)
	for _, n := range component {
		inComponent[n.ID()] = true
		ids = append(ids, n.ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var visit func(u int64)
	visit = func(u int64) {
		state[u] = onStack
		succ := graph.NodesOf(g.From(u))
		byID(succ)
		for _, n := range succ {
			v := n.ID()
			if !inComponent[v] {
				continue
			}
			switch state[v] {
			case unvisited:
				visit(v)
			case onStack:
				edges = append(edges, [2]int{int(u), int(v)})
			}
		}
		state[u] = finished
	}
	for _, id := range ids {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return
}
