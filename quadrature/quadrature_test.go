package quadrature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestProduct(t *testing.T) {
	for _, tc := range []struct {
		dim, nPolar, nAz, n int
	}{
		{1, 4, 0, 4},
		{2, 2, 8, 16},
		{3, 4, 4, 16},
	} {
		q, err := NewProduct(tc.dim, tc.nPolar, tc.nAz)
		require.NoError(t, err)
		require.Len(t, q.Directions, tc.n)
		sum := 0.
		for _, d := range q.Directions {
			sum += d.Weight
			assert.InDelta(t, 1, r3.Norm(d.Omega), 1e-13)
		}
		assert.InDelta(t, 1, sum, 1e-13, "dim %d", tc.dim)
	}
}

func TestProduct1DIsSymmetric(t *testing.T) {
	q, err := NewProduct(1, 4, 0)
	require.NoError(t, err)
	for i, d := range q.Directions {
		mirror := q.Directions[len(q.Directions)-1-i]
		assert.InDelta(t, -d.Omega.X, mirror.Omega.X, 1e-14)
		assert.InDelta(t, d.Weight, mirror.Weight, 1e-14)
	}
	assert.Less(t, q.Directions[0].Omega.X, 0.)
	// Two point Gauss-Legendre nodes are +-1/sqrt(3)
	q, err = NewProduct(1, 2, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt(3), q.Directions[1].Omega.X, 1e-14)
}

func TestProductErrors(t *testing.T) {
	_, err := NewProduct(4, 2, 2)
	assert.Error(t, err)
	_, err = NewProduct(2, 0, 2)
	assert.Error(t, err)
	_, err = NewProduct(3, 2, 0)
	assert.Error(t, err)
}
