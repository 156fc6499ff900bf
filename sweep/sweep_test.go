package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gosweep/comm"
	"github.com/notargets/gosweep/kernels"
	"github.com/notargets/gosweep/mesh"
	"github.com/notargets/gosweep/quadrature"
	"github.com/notargets/gosweep/sweepbuffer"
)

type locationResult struct {
	flux    map[int][]float64 // Global cell -> group flux
	summary []AngleSetSummary
	groups  [][]int
}

func runSweeps(t *testing.T, m *mesh.Mesh, etop []int, q *quadrature.Quadrature,
	sweeps int, cfg Config) []locationResult {
	m.EToP = etop
	nloc := 0
	for _, p := range etop {
		nloc = max(nloc, p+1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out := make([]locationResult, nloc)
	err := comm.NewWorld(nloc).Run(ctx, func(ctx context.Context, c comm.Communicator) error {
		part, err := m.ExtractPartition(c.Rank())
		if err != nil {
			return err
		}
		step := kernels.NewStep(q, part, cfg.NumGroups, 1, 1)
		sw, err := New(ctx, c, part, q.Omegas(), step.Kernel, cfg, zerolog.Nop())
		if err != nil {
			return err
		}
		for i := 0; i < sweeps; i++ {
			step.ResetFlux()
			if err = sw.Sweep(ctx); err != nil {
				return err
			}
		}
		res := locationResult{flux: make(map[int][]float64), summary: sw.Summary(), groups: sw.AngleSetDirections}
		for _, cell := range part.Cells {
			res.flux[cell.GlobalID] = step.ScalarFlux[cell.LocalID]
		}
		out[c.Rank()] = res
		return nil
	})
	require.NoError(t, err)
	return out
}

func mergeFlux(results []locationResult) map[int][]float64 {
	all := make(map[int][]float64)
	for _, r := range results {
		for k, v := range r.flux {
			all[k] = v
		}
	}
	return all
}

func assertFluxEqual(t *testing.T, want, have map[int][]float64) {
	require.Len(t, have, len(want))
	for k, w := range want {
		assert.InDeltaSlice(t, w, have[k], 1e-14, "cell %d", k)
	}
}

func TestPartitionedSweepMatchesSerial(t *testing.T) {
	m, err := mesh.NewOrthoMesh1D(6, 1)
	require.NoError(t, err)
	q, err := quadrature.NewProduct(1, 4, 0)
	require.NoError(t, err)
	cfg := Config{NumGroups: 2, Buffer: sweepbuffer.DefaultConfig()}

	serial := runSweeps(t, m, make([]int, 6), q, 1, cfg)
	// Negative mu directions share one angle set, positive mu the other
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, serial[0].groups)
	want := mergeFlux(serial)

	res := runSweeps(t, m, []int{0, 0, 1, 1, 2, 2}, q, 1, cfg)
	assertFluxEqual(t, want, mergeFlux(res))
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, res[1].groups)
	sum := res[1].summary
	require.Len(t, sum, 2)
	assert.Equal(t, []int{2}, sum[0].Predecessors)
	assert.Equal(t, []int{0}, sum[1].Predecessors)
	assert.Equal(t, 3, sum[1].SweepPlanes)

	// Small messages split the psi exchange without changing the result
	cfg.Buffer.EagerLimit = 8
	res = runSweeps(t, m, []int{0, 0, 1, 1, 2, 2}, q, 1, cfg)
	assertFluxEqual(t, want, mergeFlux(res))
	assert.Equal(t, 4, res[0].summary[1].MaxMessages)
}

func TestCyclicPartitionConvergesWithLag(t *testing.T) {
	m, err := mesh.NewOrthoMesh1D(4, 1)
	require.NoError(t, err)
	q, err := quadrature.NewProduct(1, 2, 0)
	require.NoError(t, err)
	cfg := Config{NumGroups: 1, Buffer: sweepbuffer.DefaultConfig()}
	want := mergeFlux(runSweeps(t, m, make([]int, 4), q, 1, cfg))

	ring := []int{0, 1, 1, 0}
	res := runSweeps(t, m, ring, q, 1, cfg)
	assert.NotEqual(t, want[3], mergeFlux(res)[3], "first sweep sees zero lagged psi")

	res = runSweeps(t, m, ring, q, 2, cfg)
	assertFluxEqual(t, want, mergeFlux(res))
	for _, s := range res[0].summary {
		assert.Len(t, append(s.DelayedPredecessors, s.DelayedSuccessors...), 1)
	}
}

func TestGroupDirections2D(t *testing.T) {
	m, err := mesh.NewOrthoMesh2D(2, 2, 1, 1)
	require.NoError(t, err)
	q, err := quadrature.NewProduct(2, 1, 8)
	require.NoError(t, err)
	cfg := Config{NumGroups: 1, Buffer: sweepbuffer.DefaultConfig()}
	res := runSweeps(t, m, []int{0, 1, 0, 1}, q, 1, cfg)
	// Azimuthal octants pair up into quadrants
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4, 5}, {6, 7}}, res[0].groups)
	assert.Equal(t, res[0].groups, res[1].groups)
	want := mergeFlux(runSweeps(t, m, make([]int, 4), q, 1, cfg))
	assertFluxEqual(t, want, mergeFlux(res))
}

func TestNewErrors(t *testing.T) {
	m, err := mesh.NewOrthoMesh1D(2, 1)
	require.NoError(t, err)
	m.EToP = []int{0, 0}
	part, err := m.ExtractPartition(0)
	require.NoError(t, err)
	c := comm.NewWorld(1).Communicator(0)
	ctx := context.Background()
	_, err = New(ctx, c, part, nil, nil, Config{NumGroups: 1}, zerolog.Nop())
	assert.Error(t, err)
	q, err := quadrature.NewProduct(1, 2, 0)
	require.NoError(t, err)
	_, err = New(ctx, c, part, q.Omegas(), nil, Config{}, zerolog.Nop())
	assert.Error(t, err)
}
