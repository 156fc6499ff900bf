package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/notargets/gosweep/InputParameters"
)

func TestRunSweep(t *testing.T) {
	ip := InputParameters.NewSweepParameters()
	require.NoError(t, ip.Parse([]byte(`
Title: "Test Case"
Dimension: 2
NX: 4
NY: 3
NumLocations: 1
NumPolar: 1
NumAzimuthal: 4
`)))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	serial, err := RunSweep(ctx, ip, time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 12, serial.Cells)
	assert.Equal(t, 4, serial.Directions)
	assert.Equal(t, 14, serial.Mesh.BoundaryFaces)
	assert.Equal(t, map[string]int{"Quad": 12}, serial.Mesh.ElementTypes)
	require.Len(t, serial.AngleSets, 1)
	assert.Len(t, serial.AngleSets[0], 4)

	ip.NumLocations = 4
	ip.EagerLimit = 16
	par, err := RunSweep(ctx, ip, time.Second, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, par.ScalarFlux, 12)
	for c := range serial.ScalarFlux {
		assert.InDeltaSlice(t, serial.ScalarFlux[c], par.ScalarFlux[c], 1e-14, "cell %d", c)
	}

	fn := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, par.Write(fn))
	data, err := os.ReadFile(fn)
	require.NoError(t, err)
	var back Report
	require.NoError(t, sonnet.Unmarshal(data, &back))
	assert.Equal(t, "Test Case", back.Title)
	assert.Len(t, back.AngleSets, 4)
}

func TestSweepTimeoutAppliesPerSweep(t *testing.T) {
	ip := InputParameters.NewSweepParameters()
	require.NoError(t, ip.Parse([]byte(`
NX: 6
NY: 6
NumLocations: 3
NumPolar: 1
NumAzimuthal: 4
`)))
	const perSweep = 50 * time.Millisecond
	// Double the iteration count until the whole run outlasts one sweep's limit
	for ip.Iterations = 25; ip.Iterations <= 1<<16; ip.Iterations *= 2 {
		start := time.Now()
		rpt, err := RunSweep(context.Background(), ip, perSweep, zerolog.Nop())
		require.NoError(t, err, "%d iterations", ip.Iterations)
		assert.Equal(t, ip.Iterations, rpt.Iterations)
		if time.Since(start) > 2*perSweep {
			return
		}
	}
	t.Fatal("run never outlasted the per sweep timeout")
}

func TestProcessInput(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "in.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("NumLocations: 3\nDimension: 1\n"), 0644))
	ip, err := processInput(&SweepModel{InputFile: fn, MeshFile: "grid.su2"})
	require.NoError(t, err)
	assert.Equal(t, 3, ip.NumLocations)
	assert.Equal(t, "grid.su2", ip.MeshFile)

	_, err = processInput(&SweepModel{InputFile: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}
