// Package kernels holds cell kernels the sweep can drive.
package kernels

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gosweep/angleset"
	"github.com/notargets/gosweep/mesh"
	"github.com/notargets/gosweep/quadrature"
)

/*
Step is a single value per cell upwind balance with unit face areas and cell
volumes. For direction omega and group g

	psi = (q + sum_in |omega.n| psiIn) / (sigmaT + sum_out |omega.n|)

with psiIn the average of the upwind face values. psi is written to every
vertex of the outgoing faces and accumulated into the scalar flux.
*/
type Step struct {
	Directions []quadrature.Direction
	NumGroups  int
	SigmaT     float64
	Source     float64
	// ScalarFlux[localCell][group]
	ScalarFlux [][]float64
}

func NewStep(q *quadrature.Quadrature, part *mesh.Partition, numGroups int, sigmaT, source float64) *Step {
	s := &Step{
		Directions: q.Directions,
		NumGroups:  numGroups,
		SigmaT:     sigmaT,
		Source:     source,
		ScalarFlux: make([][]float64, len(part.Cells)),
	}
	for c := range s.ScalarFlux {
		s.ScalarFlux[c] = make([]float64, numGroups)
	}
	return s
}

func (s *Step) ResetFlux() {
	for _, phi := range s.ScalarFlux {
		clear(phi)
	}
}

func (s *Step) Kernel(cell *mesh.Cell, io angleset.FaceIO) error {
	if io.NumGroups() != s.NumGroups {
		return fmt.Errorf("angle set carries %d groups, kernel has %d", io.NumGroups(), s.NumGroups)
	}
	for a, d := range io.Angles() {
		dir := s.Directions[d]
		for g := 0; g < s.NumGroups; g++ {
			var inflow, outflow float64
			for f, face := range cell.Faces {
				mu := r3.Dot(dir.Omega, face.Normal)
				switch {
				case io.Incoming(f):
					avg := 0.
					for v := range face.Vertices {
						avg += io.UpwindPsi(f, v, a, g)
					}
					inflow += -mu * avg / float64(len(face.Vertices))
				case io.Outgoing(f):
					outflow += mu
				}
			}
			psi := (s.Source + inflow) / (s.SigmaT + outflow)
			for f, face := range cell.Faces {
				if !io.Outgoing(f) {
					continue
				}
				for v := range face.Vertices {
					io.SetDownwindPsi(f, v, a, g, psi)
				}
			}
			s.ScalarFlux[cell.LocalID][g] += dir.Weight * psi
		}
	}
	return nil
}
