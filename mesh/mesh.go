// Package mesh holds the unstructured mesh, its connectivity and geometry, and
// the per-location partition view consumed by the sweep.
package mesh

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ElementType represents different element types
type ElementType int

const (
	Line ElementType = iota
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

func (e ElementType) String() string {
	return [...]string{"Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}[e]
}

// Face is a unique face of the mesh. Normal points out of Element.
type Face struct {
	Vertices []int // Sorted vertex indices
	Element  int   // Owning element
	LocalID  int   // Local face ID within the owning element
	Normal   r3.Vec
}

// Mesh represents a complete unstructured mesh with all connectivity
type Mesh struct {
	Dimension int
	Vertices  [][]float64 // Vertex coordinates [nvertices][dim]

	Elements     [][]int
	ElementTypes []ElementType

	// Connectivity (built by BuildConnectivity)
	EToE [][]int // Element to element, -1 on the boundary
	EToF [][]int // Element to unique face
	EToP []int   // Element to location, set by partitioning

	Faces        []Face
	FaceMap      map[string]int // Sorted vertex key to face ID
	BoundaryTags map[int]string

	NumElements int
	NumVertices int
	NumFaces    int

	centroids []r3.Vec
}

func NewMesh() *Mesh {
	return &Mesh{
		FaceMap:      make(map[string]int),
		BoundaryTags: make(map[int]string),
	}
}

// ReadMeshFile reads a mesh file based on extension
func ReadMeshFile(filename string) (*Mesh, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".su2":
		return ReadSU2(filename)
	default:
		return nil, fmt.Errorf("unsupported mesh format: %s", ext)
	}
}

func faceKey(verts []int) (key string, sorted []int) {
	sorted = append([]int(nil), verts...)
	sort.Ints(sorted)
	return fmt.Sprint(sorted), sorted
}

// BuildConnectivity builds element-to-element and face connectivity
func (m *Mesh) BuildConnectivity() {
	m.NumElements = len(m.Elements)
	m.NumVertices = len(m.Vertices)
	m.EToE = make([][]int, m.NumElements)
	m.EToF = make([][]int, m.NumElements)
	m.Faces = m.Faces[:0]
	m.FaceMap = make(map[string]int)

	for elemID := 0; elemID < m.NumElements; elemID++ {
		faceVertices := GetElementFaces(m.ElementTypes[elemID], m.Elements[elemID])
		m.EToE[elemID] = make([]int, len(faceVertices))
		m.EToF[elemID] = make([]int, len(faceVertices))

		for localFaceID, faceVerts := range faceVertices {
			m.EToE[elemID][localFaceID] = -1
			key, sorted := faceKey(faceVerts)
			if faceID, exists := m.FaceMap[key]; exists {
				// Second visit: interior face
				face := &m.Faces[faceID]
				m.EToE[elemID][localFaceID] = face.Element
				m.EToE[face.Element][face.LocalID] = elemID
				m.EToF[elemID][localFaceID] = faceID
				continue
			}
			faceID := len(m.Faces)
			m.Faces = append(m.Faces, Face{
				Vertices: sorted,
				Element:  elemID,
				LocalID:  localFaceID,
			})
			m.FaceMap[key] = faceID
			m.EToF[elemID][localFaceID] = faceID
		}
	}
	m.NumFaces = len(m.Faces)
}

// GetElementFaces returns the face vertices for each element type
func GetElementFaces(elemType ElementType, vertices []int) [][]int {
	switch elemType {
	case Line:
		return [][]int{{vertices[0]}, {vertices[1]}}
	case Triangle:
		return [][]int{
			{vertices[0], vertices[1]},
			{vertices[1], vertices[2]},
			{vertices[2], vertices[0]},
		}
	case Quad:
		return [][]int{
			{vertices[0], vertices[1]},
			{vertices[1], vertices[2]},
			{vertices[2], vertices[3]},
			{vertices[3], vertices[0]},
		}
	case Tet:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]},
			{vertices[0], vertices[1], vertices[3]},
			{vertices[1], vertices[2], vertices[3]},
			{vertices[0], vertices[3], vertices[2]},
		}
	case Hex:
		return [][]int{
			{vertices[0], vertices[3], vertices[2], vertices[1]}, // bottom
			{vertices[4], vertices[5], vertices[6], vertices[7]}, // top
			{vertices[0], vertices[1], vertices[5], vertices[4]},
			{vertices[1], vertices[2], vertices[6], vertices[5]},
			{vertices[2], vertices[3], vertices[7], vertices[6]},
			{vertices[3], vertices[0], vertices[4], vertices[7]},
		}
	case Prism:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]},
			{vertices[3], vertices[4], vertices[5]},
			{vertices[0], vertices[1], vertices[4], vertices[3]},
			{vertices[1], vertices[2], vertices[5], vertices[4]},
			{vertices[2], vertices[0], vertices[3], vertices[5]},
		}
	case Pyramid:
		return [][]int{
			{vertices[0], vertices[3], vertices[2], vertices[1]}, // base
			{vertices[0], vertices[1], vertices[4]},
			{vertices[1], vertices[2], vertices[4]},
			{vertices[2], vertices[3], vertices[4]},
			{vertices[3], vertices[0], vertices[4]},
		}
	default:
		return [][]int{}
	}
}

func (m *Mesh) vertex(v int) (p r3.Vec) {
	c := m.Vertices[v]
	switch {
	case len(c) >= 3:
		p.Z = c[2]
		fallthrough
	case len(c) == 2:
		p.Y = c[1]
		fallthrough
	case len(c) == 1:
		p.X = c[0]
	}
	return
}

func (m *Mesh) centroidOf(verts []int) (c r3.Vec) {
	for _, v := range verts {
		c = r3.Add(c, m.vertex(v))
	}
	return r3.Scale(1/float64(len(verts)), c)
}

// BuildGeometry computes element centroids and one outward unit normal per
// unique face. The neighbor across an interior face sees the exact negation,
// so upwind tests on both sides always agree.
func (m *Mesh) BuildGeometry() (err error) {
	if len(m.EToF) != m.NumElements {
		return fmt.Errorf("connectivity must be built before geometry")
	}
	m.centroids = make([]r3.Vec, m.NumElements)
	for k := range m.Elements {
		m.centroids[k] = m.centroidOf(m.Elements[k])
	}
	for faceID := range m.Faces {
		face := &m.Faces[faceID]
		elem := face.Element
		verts := GetElementFaces(m.ElementTypes[elem], m.Elements[elem])[face.LocalID]
		if face.Normal, err = m.outwardNormal(ShapeOf(m.ElementTypes[elem]), verts,
			m.centroids[elem]); err != nil {
			return fmt.Errorf("element %d face %d: %w", elem, face.LocalID, err)
		}
	}
	return
}

func (m *Mesh) outwardNormal(shape Shape, faceVerts []int, cellCentroid r3.Vec) (n r3.Vec, err error) {
	fc := m.centroidOf(faceVerts)
	switch s := shape.(type) {
	case Slab:
		n = r3.Vec{X: 1}
	case Polygon:
		t := r3.Sub(m.vertex(faceVerts[1]), m.vertex(faceVerts[0]))
		n = r3.Vec{X: t.Y, Y: -t.X}
	case Polyhedron:
		// Newell's method handles non-planar quads
		for i := range faceVerts {
			a := r3.Sub(m.vertex(faceVerts[i]), fc)
			b := r3.Sub(m.vertex(faceVerts[(i+1)%len(faceVerts)]), fc)
			n = r3.Add(n, r3.Cross(a, b))
		}
	default:
		panic(fmt.Sprintf("unhandled shape %T", s))
	}
	if r3.Norm(n) == 0 {
		return n, fmt.Errorf("degenerate face %v", faceVerts)
	}
	n = r3.Unit(n)
	if r3.Dot(n, r3.Sub(fc, cellCentroid)) < 0 {
		n = r3.Scale(-1, n)
	}
	return
}

// Statistics summarizes the mesh for logs and reports
type Statistics struct {
	Dimension     int            `json:"dimension"`
	Vertices      int            `json:"vertices"`
	Elements      int            `json:"elements"`
	Faces         int            `json:"faces"`
	BoundaryFaces int            `json:"boundaryFaces"`
	ElementTypes  map[string]int `json:"elementTypes"`
}

func (m *Mesh) Statistics() (st Statistics) {
	st = Statistics{
		Dimension:    m.Dimension,
		Vertices:     m.NumVertices,
		Elements:     m.NumElements,
		Faces:        m.NumFaces,
		ElementTypes: make(map[string]int),
	}
	for _, t := range m.ElementTypes {
		st.ElementTypes[t.String()]++
	}
	for i := 0; i < m.NumElements; i++ {
		for _, neighbor := range m.EToE[i] {
			if neighbor < 0 {
				st.BoundaryFaces++
			}
		}
	}
	return
}
