package mesh

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestOrthoMesh1DConnectivity(t *testing.T) {
	m, err := NewOrthoMesh1D(4, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, m.NumElements)
	assert.Equal(t, 5, m.NumFaces)
	assert.Equal(t, [][]int{{-1, 1}, {0, 2}, {1, 3}, {2, -1}}, m.EToE)
	for _, f := range m.Faces {
		// Owner is always the left element of an interior face
		elem := f.Element
		if f.LocalID == 1 {
			assert.Equal(t, r3.Vec{X: 1}, f.Normal, "face of element %d", elem)
		} else {
			assert.Equal(t, r3.Vec{X: -1}, f.Normal, "face of element %d", elem)
		}
	}
}

func TestOrthoMesh2DNormals(t *testing.T) {
	m, err := NewOrthoMesh2D(3, 2, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, m.NumElements)
	// 3*(2+1) horizontal edges + (3+1)*2 vertical edges
	assert.Equal(t, 17, m.NumFaces)
	expected := []r3.Vec{{Y: -1}, {X: 1}, {Y: 1}, {X: -1}}
	for faceID, f := range m.Faces {
		assert.InDelta(t, expected[f.LocalID].X, f.Normal.X, 1e-14, "face %d", faceID)
		assert.InDelta(t, expected[f.LocalID].Y, f.Normal.Y, 1e-14, "face %d", faceID)
	}
	// Cell 0 right neighbor is cell 1, top neighbor is cell 3
	assert.Equal(t, []int{-1, 1, 3, -1}, m.EToE[0])
}

func TestStatistics(t *testing.T) {
	m, err := NewOrthoMesh2D(3, 2, 3, 2)
	require.NoError(t, err)
	st := m.Statistics()
	assert.Equal(t, 2, st.Dimension)
	assert.Equal(t, 12, st.Vertices)
	assert.Equal(t, 6, st.Elements)
	assert.Equal(t, 17, st.Faces)
	// 2*(3+2) perimeter edges
	assert.Equal(t, 10, st.BoundaryFaces)
	assert.Equal(t, map[string]int{"Quad": 6}, st.ElementTypes)
}

func TestExtractPartition(t *testing.T) {
	m, err := NewOrthoMesh1D(4, 1)
	require.NoError(t, err)
	_, err = m.ExtractPartition(0)
	assert.Error(t, err, "unpartitioned mesh")

	m.EToP = []int{0, 0, 1, 1}
	p, err := m.ExtractPartition(1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.NumLocations)
	assert.Equal(t, 4, p.GlobalCellCount())
	require.Len(t, p.Cells, 2)

	c2 := p.Cell(2)
	require.NotNil(t, c2)
	assert.Equal(t, 0, c2.LocalID)
	assert.Equal(t, Slab{}, c2.Shape)
	assert.Equal(t, RemoteFace, c2.Faces[0].Kind)
	assert.Equal(t, 0, c2.Faces[0].NeighborLocation)
	assert.Equal(t, 1, c2.Faces[0].Neighbor)
	assert.Equal(t, r3.Vec{X: -1}, c2.Faces[0].Normal)
	assert.Equal(t, LocalFace, c2.Faces[1].Kind)

	c3 := p.Cell(3)
	assert.Equal(t, BoundaryFace, c3.Faces[1].Kind)
	assert.Equal(t, -1, c3.Faces[1].NeighborLocation)
	assert.Nil(t, p.Cell(0))
	assert.Equal(t, 1, p.NumRemoteFaces())

	_, err = m.ExtractPartition(2)
	assert.Error(t, err)
}

func TestSharedFaceNormalsAreNegated(t *testing.T) {
	m, err := NewOrthoMesh2D(4, 4, 1, 1)
	require.NoError(t, err)
	m.EToP = make([]int, m.NumElements)
	for k := range m.EToP {
		m.EToP[k] = k % 3
	}
	parts := make([]*Partition, 3)
	for loc := range parts {
		parts[loc], err = m.ExtractPartition(loc)
		require.NoError(t, err)
	}
	for _, p := range parts {
		for _, c := range p.Cells {
			for _, f := range c.Faces {
				if f.Kind == BoundaryFace {
					continue
				}
				nbr := parts[f.NeighborLocation].Cell(f.Neighbor)
				require.NotNil(t, nbr)
				found := false
				for _, nf := range nbr.Faces {
					if nf.Neighbor == c.GlobalID {
						found = true
						assert.Equal(t, r3.Scale(-1, f.Normal), nf.Normal)
					}
				}
				assert.True(t, found)
			}
		}
	}
}

func TestMeshPartitioner(t *testing.T) {
	m, err := NewOrthoMesh2D(4, 2, 1, 1)
	require.NoError(t, err)

	mp := NewMeshPartitioner(m, DefaultPartitionConfig(2), zerolog.Nop())
	stats, err := mp.Partition()
	require.NoError(t, err)
	// Slab partitioning splits on x: columns 0,1 then 2,3
	assert.Equal(t, []int{0, 0, 1, 1, 0, 0, 1, 1}, m.EToP)
	require.Len(t, stats, 2)
	assert.Equal(t, 4, stats[0].NumElements)
	assert.Equal(t, map[int]int{1: 2}, stats[0].NumNeighbors)
	assert.Equal(t, 4, stats[1].CommVolume)

	mp = NewMeshPartitioner(m, &PartitionConfig{NumPartitions: 3, Method: BlockPartition}, zerolog.Nop())
	_, err = mp.Partition()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 2, 2}, m.EToP)

	mp = NewMeshPartitioner(m, &PartitionConfig{NumPartitions: 9}, zerolog.Nop())
	_, err = mp.Partition()
	assert.Error(t, err)
}

const twoTriangleSU2 = `% two triangles forming the unit square
NDIME= 2
NELEM= 2
5 0 1 2 0
5 0 2 3 1
NPOIN= 4
0.0 0.0 0
1.0 0.0 1
1.0 1.0 2
0.0 1.0 3
NMARK= 1
MARKER_TAG= wall
MARKER_ELEMS= 4
3 0 1
3 1 2
3 2 3
3 3 0
`

func TestParseSU2(t *testing.T) {
	m, err := ParseSU2(strings.NewReader(twoTriangleSU2))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dimension)
	assert.Equal(t, 2, m.NumElements)
	assert.Equal(t, 4, m.NumVertices)
	assert.Equal(t, 5, m.NumFaces)
	assert.Equal(t, "wall", m.BoundaryTags[0])
	assert.Equal(t, []ElementType{Triangle, Triangle}, m.ElementTypes)
	// Shared diagonal 0-2 is face 2 of element 0 and face 0 of element 1
	assert.Equal(t, 1, m.EToE[0][2])
	assert.Equal(t, 0, m.EToE[1][0])
	diag := m.Faces[m.EToF[0][2]]
	assert.InDelta(t, -1/1.4142135623730951, diag.Normal.X, 1e-12)
	assert.InDelta(t, 1/1.4142135623730951, diag.Normal.Y, 1e-12)

	_, err = ParseSU2(strings.NewReader("NDIME= 1\n"))
	assert.Error(t, err)
	_, err = ParseSU2(strings.NewReader("NDIME= 2\nNELEM= 2\n5 0 1 2\n"))
	assert.Error(t, err)
}

func TestShapeOf(t *testing.T) {
	assert.Equal(t, Slab{}, ShapeOf(Line))
	assert.Equal(t, Polygon{NumVertices: 4}, ShapeOf(Quad))
	assert.Equal(t, Polyhedron{NumVertices: 8, NumFaces: 6}, ShapeOf(Hex))
	assert.Equal(t, 3, ShapeOf(Tet).Dimension())
	assert.Panics(t, func() { ShapeOf(ElementType(42)) })
}

func TestHexNormals(t *testing.T) {
	m := NewMesh()
	m.Dimension = 3
	m.Vertices = [][]float64{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	}
	m.Elements = [][]int{{0, 1, 2, 3, 4, 5, 6, 7}}
	m.ElementTypes = []ElementType{Hex}
	m.BuildConnectivity()
	require.NoError(t, m.BuildGeometry())
	expected := []r3.Vec{{Z: -1}, {Z: 1}, {Y: -1}, {X: 1}, {Y: 1}, {X: -1}}
	for f, face := range m.Faces {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(expected[f], face.Normal)), 1e-14, "face %d", f)
	}
}
