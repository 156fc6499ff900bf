// Package quadrature builds angular quadrature sets for the sweep.
package quadrature

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/spatial/r3"
)

type Direction struct {
	Omega  r3.Vec
	Weight float64 // Weights of a set sum to one
}

type Quadrature struct {
	Dimension  int
	Directions []Direction
}

// NewProduct builds a Gauss-Legendre polar by uniform azimuthal product set.
// In 1D the azimuthal count is ignored and directions are ordered by
// ascending mu. In 2D only the upper hemisphere is kept, since the sweep only
// sees the in-plane projection.
func NewProduct(dim, nPolar, nAzimuthal int) (q *Quadrature, err error) {
	if nPolar < 1 {
		return nil, fmt.Errorf("need at least one polar angle, have %d", nPolar)
	}
	q = &Quadrature{Dimension: dim}
	var mu, wt []float64
	switch dim {
	case 1:
		mu, wt = legendre(nPolar, -1, 1)
		for i := range mu {
			q.Directions = append(q.Directions, Direction{
				Omega:  r3.Vec{X: mu[i], Y: math.Sqrt(1 - mu[i]*mu[i])},
				Weight: wt[i] / 2,
			})
		}
		return
	case 2:
		mu, wt = legendre(nPolar, 0, 1)
	case 3:
		mu, wt = legendre(nPolar, -1, 1)
		for i := range wt {
			wt[i] /= 2
		}
	default:
		return nil, fmt.Errorf("unsupported dimension %d", dim)
	}
	if nAzimuthal < 1 {
		return nil, fmt.Errorf("need at least one azimuthal angle, have %d", nAzimuthal)
	}
	dphi := 2 * math.Pi / float64(nAzimuthal)
	for j := 0; j < nAzimuthal; j++ {
		phi := (float64(j) + 0.5) * dphi
		for i := range mu {
			sinTheta := math.Sqrt(1 - mu[i]*mu[i])
			q.Directions = append(q.Directions, Direction{
				Omega:  r3.Vec{X: sinTheta * math.Cos(phi), Y: sinTheta * math.Sin(phi), Z: mu[i]},
				Weight: wt[i] / float64(nAzimuthal),
			})
		}
	}
	return
}

// legendre returns Gauss-Legendre nodes on [min, max] in ascending order
func legendre(n int, min, max float64) (x, w []float64) {
	x, w = make([]float64, n), make([]float64, n)
	quad.Legendre{}.FixedLocations(x, w, min, max)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return x[idx[i]] < x[idx[j]] })
	xs, ws := make([]float64, n), make([]float64, n)
	for i, k := range idx {
		xs[i], ws[i] = x[k], w[k]
	}
	return xs, ws
}

func (q *Quadrature) Omegas() (omegas []r3.Vec) {
	omegas = make([]r3.Vec, len(q.Directions))
	for i, d := range q.Directions {
		omegas[i] = d.Omega
	}
	return
}
