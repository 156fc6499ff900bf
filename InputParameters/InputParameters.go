package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type SweepParameters struct {
	Title        string  `yaml:"Title"`
	MeshFile     string  `yaml:"MeshFile"`  // SU2 mesh, when empty an orthogonal mesh is generated
	Dimension    int     `yaml:"Dimension"` // Of the generated mesh, 1 or 2
	NX           int     `yaml:"NX"`
	NY           int     `yaml:"NY"`
	XMax         float64 `yaml:"XMax"`
	YMax         float64 `yaml:"YMax"`
	NumLocations int     `yaml:"NumLocations"`
	NumGroups    int     `yaml:"NumGroups"`
	NumPolar     int     `yaml:"NumPolar"`
	NumAzimuthal int     `yaml:"NumAzimuthal"`
	// Byte limit of a single psi message, non-positive sends one message per successor
	EagerLimit int `yaml:"EagerLimit"`
	// Byte size above which a send waits for its receiver
	TransportEagerLimit int     `yaml:"TransportEagerLimit"`
	Iterations          int     `yaml:"Iterations"`
	SigmaT              float64 `yaml:"SigmaT"`
	Source              float64 `yaml:"Source"`
}

func NewSweepParameters() *SweepParameters {
	return &SweepParameters{
		Title:               "Sweep",
		Dimension:           2,
		NX:                  8,
		NY:                  8,
		XMax:                1,
		YMax:                1,
		NumLocations:        2,
		NumGroups:           1,
		NumPolar:            2,
		NumAzimuthal:        4,
		EagerLimit:          32000,
		TransportEagerLimit: 32000,
		Iterations:          1,
		SigmaT:              1,
		Source:              1,
	}
}

// Parse overlays the YAML in data onto the current values
func (ip *SweepParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	return ip.Validate()
}

func (ip *SweepParameters) Validate() error {
	switch {
	case ip.MeshFile == "" && ip.Dimension != 1 && ip.Dimension != 2:
		return fmt.Errorf("generated meshes are 1D or 2D, have Dimension %d", ip.Dimension)
	case ip.MeshFile == "" && (ip.NX < 1 || (ip.Dimension == 2 && ip.NY < 1)):
		return fmt.Errorf("mesh size %dx%d is empty", ip.NX, ip.NY)
	case ip.NumLocations < 1:
		return fmt.Errorf("need at least one location, have %d", ip.NumLocations)
	case ip.NumGroups < 1:
		return fmt.Errorf("need at least one group, have %d", ip.NumGroups)
	case ip.Iterations < 1:
		return fmt.Errorf("need at least one iteration, have %d", ip.Iterations)
	case ip.SigmaT <= 0:
		return fmt.Errorf("SigmaT must be positive, have %g", ip.SigmaT)
	}
	return nil
}

func (ip *SweepParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	if ip.MeshFile != "" {
		fmt.Printf("[%s]\t\t= Mesh File\n", ip.MeshFile)
	} else {
		fmt.Printf("[%dD %dx%d]\t\t= Generated Mesh\n", ip.Dimension, ip.NX, ip.NY)
	}
	fmt.Printf("[%d]\t\t\t\t= Locations\n", ip.NumLocations)
	fmt.Printf("[%d]\t\t\t\t= Groups\n", ip.NumGroups)
	fmt.Printf("[%d x %d]\t\t\t= Polar x Azimuthal\n", ip.NumPolar, ip.NumAzimuthal)
	fmt.Printf("[%d]\t\t\t= Eager Limit\n", ip.EagerLimit)
	fmt.Printf("%8.5f\t\t= SigmaT\n", ip.SigmaT)
	fmt.Printf("%8.5f\t\t= Source\n", ip.Source)
	fmt.Printf("[%d]\t\t\t\t= Iterations\n", ip.Iterations)
}
