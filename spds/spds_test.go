package spds

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gosweep/comm"
	"github.com/notargets/gosweep/mesh"
)

func buildAll(t *testing.T, m *mesh.Mesh, etop []int, omega r3.Vec) []*SPDS {
	m.EToP = etop
	nloc := 0
	for _, p := range etop {
		nloc = max(nloc, p+1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make([]*SPDS, nloc)
	err := comm.NewWorld(nloc).Run(ctx, func(ctx context.Context, c comm.Communicator) error {
		part, err := m.ExtractPartition(c.Rank())
		if err != nil {
			return err
		}
		out[c.Rank()], err = New(ctx, c, part, omega, zerolog.Nop())
		return err
	})
	require.NoError(t, err)
	return out
}

func TestOrient(t *testing.T) {
	n := r3.Vec{X: 1}
	assert.Equal(t, Outgoing, Orient(r3.Vec{X: 1}, n))
	assert.Equal(t, Incoming, Orient(r3.Vec{X: -1}, n))
	assert.Equal(t, Parallel, Orient(r3.Vec{Y: 1}, n))
	assert.Equal(t, Parallel, Orient(r3.Vec{X: 1e-14, Y: 1}, n))
}

func TestSPDS1DTwoLocations(t *testing.T) {
	m, err := mesh.NewOrthoMesh1D(4, 1)
	require.NoError(t, err)

	s := buildAll(t, m, []int{0, 0, 1, 1}, r3.Vec{X: 1})
	assert.Equal(t, []int{0, 1}, s[0].GlobalOrder())
	assert.Equal(t, []int{2, 3}, s[1].GlobalOrder())
	assert.Empty(t, s[0].LocationDependencies())
	assert.Equal(t, []int{1}, s[0].LocationSuccessors())
	assert.Equal(t, []int{0}, s[1].LocationDependencies())
	assert.Empty(t, s[1].AllLocationSuccessors())
	assert.Equal(t, [][]int{{0}, {1}}, s[0].GlobalSweepPlanes)
	assert.Equal(t, s[0].GlobalSweepPlanes, s[1].GlobalSweepPlanes)

	s = buildAll(t, m, []int{0, 0, 1, 1}, r3.Vec{X: -1})
	assert.Equal(t, []int{1, 0}, s[0].GlobalOrder())
	assert.Equal(t, []int{3, 2}, s[1].GlobalOrder())
	assert.Equal(t, []int{1}, s[0].LocationDependencies())
	assert.Equal(t, []int{0}, s[1].LocationSuccessors())
	assert.Equal(t, [][]int{{1}, {0}}, s[0].GlobalSweepPlanes)
}

func TestSPDSRingHasOneDelayedEdge(t *testing.T) {
	m, err := mesh.NewOrthoMesh1D(4, 1)
	require.NoError(t, err)

	// Location 0 owns both ends, so 0 -> 1 -> 0 along +x
	s := buildAll(t, m, []int{0, 1, 1, 0}, r3.Vec{X: 1})
	assert.Equal(t, map[int]EdgeTag{1: Delayed}, s[0].Predecessors)
	assert.Equal(t, map[int]EdgeTag{1: Ordinary}, s[0].Successors)
	assert.Equal(t, map[int]EdgeTag{0: Ordinary}, s[1].Predecessors)
	assert.Equal(t, map[int]EdgeTag{0: Delayed}, s[1].Successors)

	assert.Empty(t, s[0].LocationDependencies())
	assert.Equal(t, []int{1}, s[0].DelayedLocationDependencies())
	assert.Equal(t, []int{0}, s[1].DelayedLocationSuccessors())
	assert.Empty(t, s[1].LocationSuccessors())
	assert.Equal(t, []int{0}, s[1].AllLocationSuccessors())
	assert.Equal(t, [][]int{{0}, {1}}, s[1].GlobalSweepPlanes)
}

func TestSPDSParallelFacesCarryNoDependency(t *testing.T) {
	m, err := mesh.NewOrthoMesh1D(3, 1)
	require.NoError(t, err)
	s := buildAll(t, m, []int{0, 1, 0}, r3.Vec{Y: 1})
	for _, loc := range s {
		assert.Empty(t, loc.Predecessors)
		assert.Empty(t, loc.Successors)
	}
	assert.Equal(t, []int{0, 2}, s[0].GlobalOrder())
	assert.Equal(t, [][]int{{0, 1}}, s[0].GlobalSweepPlanes)
}

func TestSPDS2DOrderRespectsUpwind(t *testing.T) {
	m, err := mesh.NewOrthoMesh2D(3, 3, 1, 1)
	require.NoError(t, err)
	omega := r3.Unit(r3.Vec{X: 1, Y: 2})
	s := buildAll(t, m, make([]int, 9), omega)[0]
	require.Len(t, s.SPLS, 9)
	assert.Empty(t, s.LocalCyclicDependencies)
	assert.Equal(t, 0, s.GlobalOrder()[0])
	assert.Equal(t, 8, s.GlobalOrder()[8])

	position := make(map[int]int)
	for i, c := range s.SPLS {
		position[c] = i
	}
	part := s.Partition
	for _, cell := range part.Cells {
		for f, face := range cell.Faces {
			if face.Kind != mesh.LocalFace || s.FaceOrientation(cell.LocalID, f) != Incoming {
				continue
			}
			up, _ := part.LocalID(face.Neighbor)
			assert.Less(t, position[up], position[cell.LocalID])
		}
	}
}

func TestRemoveCycles(t *testing.T) {
	g := simple.NewDirectedGraph()
	for _, e := range [][2]int64{{0, 1}, {1, 2}, {2, 0}, {2, 3}, {3, 4}, {4, 3}} {
		g.SetEdge(g.NewEdge(simple.Node(e[0]), simple.Node(e[1])))
	}
	removed := removeCycles(g)
	assert.Equal(t, [][2]int{{2, 0}, {4, 3}}, removed)
	assert.False(t, g.HasEdgeFromTo(2, 0))
	assert.True(t, g.HasEdgeFromTo(2, 3))
}

func TestLocationGraph(t *testing.T) {
	// 1 and 2 depend on 0, 0 depends on 2
	lg, err := NewLocationGraph([][]int{{2}, {0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, map[[2]int]bool{{2, 0}: true}, lg.Delayed)
	assert.Equal(t, Delayed, lg.Tag(2, 0))
	assert.Equal(t, Ordinary, lg.Tag(0, 2))
	assert.Equal(t, [][]int{{0}, {1}, {2}}, lg.Planes)
	assert.Equal(t, 1., lg.Matrix.At(0, 1))

	lg.Delayed = map[[2]int]bool{}
	err = lg.Verify()
	var te *TopologyError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, [][]int{{0, 1, 2}}, te.Cycles)

	lg.Delayed = map[[2]int]bool{{1, 2}: true, {2, 0}: true, {1, 0}: true}
	assert.Error(t, lg.Verify(), "1->0 is not a dependency")

	_, err = NewLocationGraph([][]int{{0}})
	assert.ErrorAs(t, err, &te)
	_, err = NewLocationGraph([][]int{{3}, {}})
	assert.ErrorAs(t, err, &te)
	assert.Contains(t, te.Error(), "invalid dependency 3")
}

func TestLocationGraphPlanesAreLayered(t *testing.T) {
	// Diamond 0 -> {1,2} -> 3 with an extra long edge 0 -> 3
	lg, err := NewLocationGraph([][]int{{}, {0}, {0}, {0, 1, 2}})
	require.NoError(t, err)
	assert.Empty(t, lg.Delayed)
	assert.Equal(t, [][]int{{0}, {1, 2}, {3}}, lg.Planes)
	assert.Equal(t, 0., lg.Matrix.At(3, 0))
}
