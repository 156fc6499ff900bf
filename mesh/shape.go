package mesh

import "fmt"

// Shape is a closed variant over the geometric families of cells. Code that
// depends on shape switches over Slab, Polygon and Polyhedron exhaustively.
type Shape interface {
	Dimension() int
	isShape()
}

type Slab struct{}

type Polygon struct {
	NumVertices int
}

type Polyhedron struct {
	NumVertices, NumFaces int
}

func (Slab) Dimension() int       { return 1 }
func (Polygon) Dimension() int    { return 2 }
func (Polyhedron) Dimension() int { return 3 }

func (Slab) isShape()       {}
func (Polygon) isShape()    {}
func (Polyhedron) isShape() {}

func ShapeOf(t ElementType) Shape {
	switch t {
	case Line:
		return Slab{}
	case Triangle:
		return Polygon{NumVertices: 3}
	case Quad:
		return Polygon{NumVertices: 4}
	case Tet:
		return Polyhedron{NumVertices: 4, NumFaces: 4}
	case Hex:
		return Polyhedron{NumVertices: 8, NumFaces: 6}
	case Prism:
		return Polyhedron{NumVertices: 6, NumFaces: 5}
	case Pyramid:
		return Polyhedron{NumVertices: 5, NumFaces: 5}
	}
	panic(fmt.Sprintf("unknown element type %d", t))
}
