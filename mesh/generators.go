package mesh

import "fmt"

// NewOrthoMesh1D builds n equal line cells on [0, xmax]. Cell i spans vertices
// i and i+1.
func NewOrthoMesh1D(n int, xmax float64) (m *Mesh, err error) {
	if n < 1 {
		return nil, fmt.Errorf("need at least one cell, have %d", n)
	}
	m = NewMesh()
	m.Dimension = 1
	for i := 0; i <= n; i++ {
		m.Vertices = append(m.Vertices, []float64{xmax * float64(i) / float64(n)})
	}
	for i := 0; i < n; i++ {
		m.Elements = append(m.Elements, []int{i, i + 1})
		m.ElementTypes = append(m.ElementTypes, Line)
	}
	m.BuildConnectivity()
	err = m.BuildGeometry()
	return
}

// NewOrthoMesh2D builds an nx by ny grid of quads on [0,xmax]x[0,ymax]. Cell
// (i,j) has global id j*nx+i.
func NewOrthoMesh2D(nx, ny int, xmax, ymax float64) (m *Mesh, err error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("need a positive grid, have %dx%d", nx, ny)
	}
	m = NewMesh()
	m.Dimension = 2
	vid := func(i, j int) int { return j*(nx+1) + i }
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.Vertices = append(m.Vertices, []float64{
				xmax * float64(i) / float64(nx),
				ymax * float64(j) / float64(ny),
			})
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			m.Elements = append(m.Elements,
				[]int{vid(i, j), vid(i+1, j), vid(i+1, j+1), vid(i, j+1)})
			m.ElementTypes = append(m.ElementTypes, Quad)
		}
	}
	m.BuildConnectivity()
	err = m.BuildGeometry()
	return
}
