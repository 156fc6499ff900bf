/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sugawarayuuta/sonnet"

	"github.com/notargets/gosweep/InputParameters"
	"github.com/notargets/gosweep/comm"
	"github.com/notargets/gosweep/kernels"
	"github.com/notargets/gosweep/mesh"
	"github.com/notargets/gosweep/quadrature"
	"github.com/notargets/gosweep/sweep"
	"github.com/notargets/gosweep/sweepbuffer"
)

type SweepModel struct {
	MeshFile   string
	InputFile  string
	ReportFile string
	Profile    string
	Timeout    time.Duration
}

// SweepCmd represents the sweep command
var SweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep a partitioned mesh with a step kernel",
	Long: `
Partitions a generated or SU2 mesh across in-process locations and runs
transport sweeps of a discrete ordinates set with a step balance kernel,

gosweep sweep -I input.yaml [-F mesh.su2] [--report out.json]`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		sm := &SweepModel{}
		sm.MeshFile, _ = cmd.Flags().GetString("meshFile")
		sm.InputFile, _ = cmd.Flags().GetString("inputParametersFile")
		sm.ReportFile, _ = cmd.Flags().GetString("report")
		sm.Profile, _ = cmd.Flags().GetString("profile")
		sm.Timeout, _ = cmd.Flags().GetDuration("timeout")
		log := newLogger()
		var ip *InputParameters.SweepParameters
		if ip, err = processInput(sm); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		ip.Print()
		// Errors are returned rather than logged fatally so the profile is flushed
		switch sm.Profile {
		case "":
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		case "mem":
			defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
		default:
			return fmt.Errorf("unknown profile mode %q, use cpu or mem", sm.Profile)
		}
		var rpt *Report
		if rpt, err = RunSweep(context.Background(), ip, sm.Timeout, log); err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		if sm.ReportFile != "" {
			if err = rpt.Write(sm.ReportFile); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(SweepCmd)
	SweepCmd.Flags().StringP("meshFile", "F", "", "Mesh file to read in SU2 (.su2) format, overrides MeshFile in the input")
	SweepCmd.Flags().StringP("inputParametersFile", "I", "", "YAML file for input parameters like:\n\t- NumLocations\n\t- NumPolar, NumAzimuthal")
	SweepCmd.Flags().String("report", "", "write a JSON report of angle sets and scalar flux")
	SweepCmd.Flags().String("profile", "", "cpu or mem profile written to the current directory")
	SweepCmd.Flags().Duration("timeout", time.Minute, "abandon the run when a single sweep stalls this long, 0 waits forever")
	SweepCmd.Flags().IntP("locations", "l", 0, "number of locations, overrides the input")
	SweepCmd.Flags().IntP("iterations", "i", 0, "number of sweeps, overrides the input")
	SweepCmd.Flags().Int("eagerLimit", -1, "psi message byte limit, overrides the input")
	_ = viper.BindPFlag("locations", SweepCmd.Flags().Lookup("locations"))
	_ = viper.BindPFlag("iterations", SweepCmd.Flags().Lookup("iterations"))
	_ = viper.BindPFlag("eagerLimit", SweepCmd.Flags().Lookup("eagerLimit"))
}

// processInput starts from defaults, overlays the input file and then any
// flag, environment or config file overrides.
func processInput(sm *SweepModel) (ip *InputParameters.SweepParameters, err error) {
	ip = InputParameters.NewSweepParameters()
	if len(sm.InputFile) != 0 {
		var data []byte
		if data, err = os.ReadFile(sm.InputFile); err != nil {
			return nil, err
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", sm.InputFile, err)
		}
	}
	if len(sm.MeshFile) != 0 {
		ip.MeshFile = sm.MeshFile
	}
	if n := viper.GetInt("locations"); n > 0 {
		ip.NumLocations = n
	}
	if n := viper.GetInt("iterations"); n > 0 {
		ip.Iterations = n
	}
	if n := viper.GetInt("eagerLimit"); n >= 0 && viper.IsSet("eagerLimit") {
		ip.EagerLimit = n
	}
	return ip, ip.Validate()
}

type Report struct {
	Title      string          `json:"title"`
	Cells      int             `json:"cells"`
	Locations  int             `json:"locations"`
	Directions int             `json:"directions"`
	Iterations int             `json:"iterations"`
	Elapsed    string          `json:"elapsed"`
	Mesh       mesh.Statistics `json:"mesh"`
	// AngleSets[location]
	AngleSets [][]sweep.AngleSetSummary `json:"angleSets"`
	// ScalarFlux[globalCell][group]
	ScalarFlux [][]float64 `json:"scalarFlux"`
}

func (r *Report) Write(filename string) (err error) {
	var data []byte
	if data, err = sonnet.Marshal(r); err != nil {
		return
	}
	return os.WriteFile(filename, data, 0644)
}

func buildMesh(ip *InputParameters.SweepParameters) (*mesh.Mesh, error) {
	switch {
	case ip.MeshFile != "":
		return mesh.ReadMeshFile(ip.MeshFile)
	case ip.Dimension == 1:
		return mesh.NewOrthoMesh1D(ip.NX, ip.XMax)
	default:
		return mesh.NewOrthoMesh2D(ip.NX, ip.NY, ip.XMax, ip.YMax)
	}
}

// RunSweep partitions the mesh, runs every location in its own goroutine and
// gathers the scalar flux after the last sweep. sweepTimeout bounds each
// sweep separately; setup is bounded only by ctx.
func RunSweep(ctx context.Context, ip *InputParameters.SweepParameters, sweepTimeout time.Duration,
	log zerolog.Logger) (rpt *Report, err error) {
	var (
		m *mesh.Mesh
		q *quadrature.Quadrature
	)
	if m, err = buildMesh(ip); err != nil {
		return
	}
	if _, err = mesh.NewMeshPartitioner(m, mesh.DefaultPartitionConfig(ip.NumLocations), log).Partition(); err != nil {
		return
	}
	if q, err = quadrature.NewProduct(m.Dimension, ip.NumPolar, ip.NumAzimuthal); err != nil {
		return
	}
	rpt = &Report{
		Title:      ip.Title,
		Cells:      m.NumElements,
		Locations:  ip.NumLocations,
		Directions: len(q.Directions),
		Iterations: ip.Iterations,
		Mesh:       m.Statistics(),
		AngleSets:  make([][]sweep.AngleSetSummary, ip.NumLocations),
		ScalarFlux: make([][]float64, m.NumElements),
	}
	cfg := sweep.Config{
		NumGroups: ip.NumGroups,
		Buffer:    sweepbuffer.Config{EagerLimit: ip.EagerLimit},
	}
	world := comm.NewWorld(ip.NumLocations, comm.WithEagerLimit(ip.TransportEagerLimit), comm.WithLogger(log))
	start := time.Now()
	err = world.Run(ctx, func(ctx context.Context, c comm.Communicator) (err error) {
		var (
			part *mesh.Partition
			sw   *sweep.Sweeper
		)
		if part, err = m.ExtractPartition(c.Rank()); err != nil {
			return
		}
		step := kernels.NewStep(q, part, ip.NumGroups, ip.SigmaT, ip.Source)
		if sw, err = sweep.New(ctx, c, part, q.Omegas(), step.Kernel, cfg, log); err != nil {
			return
		}
		for it := 0; it < ip.Iterations; it++ {
			step.ResetFlux()
			if err = sweepWithin(ctx, sw, sweepTimeout); err != nil {
				return fmt.Errorf("sweep %d: %w", it, err)
			}
		}
		// Each location writes only its own cells
		for _, cell := range part.Cells {
			rpt.ScalarFlux[cell.GlobalID] = step.ScalarFlux[cell.LocalID]
		}
		rpt.AngleSets[c.Rank()] = sw.Summary()
		return
	})
	if err != nil {
		return nil, err
	}
	rpt.Elapsed = time.Since(start).String()
	log.Info().Int("cells", rpt.Cells).Int("locations", rpt.Locations).
		Int("directions", rpt.Directions).Str("elapsed", rpt.Elapsed).Msg("sweeps complete")
	return
}

func sweepWithin(ctx context.Context, sw *sweep.Sweeper, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return sw.Sweep(ctx)
}
