package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// FaceKind identifies where the neighbor across a face lives
type FaceKind uint8

const (
	BoundaryFace FaceKind = iota
	LocalFace
	RemoteFace
)

func (k FaceKind) String() string {
	return [...]string{"Boundary", "Local", "Remote"}[k]
}

type CellFace struct {
	Vertices         []int // Global vertex ids in element face order
	Normal           r3.Vec
	Neighbor         int // Global id of the neighbor cell, -1 on the boundary
	NeighborLocation int // Location owning the neighbor, -1 on the boundary
	Kind             FaceKind
}

type Cell struct {
	GlobalID int
	LocalID  int
	Location int
	Type     ElementType
	Shape    Shape
	Vertices []int
	Centroid r3.Vec
	Faces    []CellFace
}

// Partition is the set of cells owned by one location. It is the only view of
// the mesh used by the sweep.
type Partition struct {
	Location     int
	NumLocations int
	Cells        []*Cell // Indexed by local id

	globalCellCount int
	globalToLocal   map[int]int
}

func (p *Partition) GlobalCellCount() int { return p.globalCellCount }

func (p *Partition) LocalID(globalID int) (int, bool) {
	l, ok := p.globalToLocal[globalID]
	return l, ok
}

func (p *Partition) Cell(globalID int) *Cell {
	if l, ok := p.globalToLocal[globalID]; ok {
		return p.Cells[l]
	}
	return nil
}

// ExtractPartition builds the partition for location. Connectivity, geometry
// and EToP must be present.
func (m *Mesh) ExtractPartition(location int) (p *Partition, err error) {
	if len(m.EToP) != m.NumElements {
		return nil, fmt.Errorf("mesh is not partitioned")
	}
	if len(m.centroids) != m.NumElements {
		return nil, fmt.Errorf("mesh geometry has not been built")
	}
	numLocations := 0
	for _, loc := range m.EToP {
		if loc+1 > numLocations {
			numLocations = loc + 1
		}
	}
	if location < 0 || location >= numLocations {
		return nil, fmt.Errorf("location %d out of range [0,%d)", location, numLocations)
	}
	p = &Partition{
		Location:        location,
		NumLocations:    numLocations,
		globalCellCount: m.NumElements,
		globalToLocal:   make(map[int]int),
	}
	for k := 0; k < m.NumElements; k++ {
		if m.EToP[k] != location {
			continue
		}
		cell := &Cell{
			GlobalID: k,
			LocalID:  len(p.Cells),
			Location: location,
			Type:     m.ElementTypes[k],
			Shape:    ShapeOf(m.ElementTypes[k]),
			Vertices: append([]int(nil), m.Elements[k]...),
			Centroid: m.centroids[k],
		}
		for f, verts := range GetElementFaces(m.ElementTypes[k], m.Elements[k]) {
			face := &m.Faces[m.EToF[k][f]]
			cf := CellFace{
				Vertices:         verts,
				Normal:           face.Normal,
				Neighbor:         m.EToE[k][f],
				NeighborLocation: -1,
			}
			if face.Element != k {
				cf.Normal = r3.Scale(-1, face.Normal)
			}
			switch {
			case cf.Neighbor < 0:
				cf.Kind = BoundaryFace
			case m.EToP[cf.Neighbor] == location:
				cf.Kind = LocalFace
				cf.NeighborLocation = location
			default:
				cf.Kind = RemoteFace
				cf.NeighborLocation = m.EToP[cf.Neighbor]
			}
			cell.Faces = append(cell.Faces, cf)
		}
		p.globalToLocal[k] = cell.LocalID
		p.Cells = append(p.Cells, cell)
	}
	return
}

// NumRemoteFaces counts faces whose neighbor lives on another location.
func (p *Partition) NumRemoteFaces() (n int) {
	for _, c := range p.Cells {
		for _, f := range c.Faces {
			if f.Kind == RemoteFace {
				n++
			}
		}
	}
	return
}
