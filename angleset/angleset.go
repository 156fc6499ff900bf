// Package angleset executes the local cells of a group of directions that share
// one sweep ordering, gating execution on upstream psi arriving.
package angleset

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notargets/gosweep/fluds"
	"github.com/notargets/gosweep/mesh"
	"github.com/notargets/gosweep/spds"
	"github.com/notargets/gosweep/sweepbuffer"
)

var ErrSweepStalled = errors.New("sweep stalled")

type Status uint8

const (
	Pending Status = iota
	Finished
)

func (s Status) String() string {
	if s == Finished {
		return "Finished"
	}
	return "Pending"
}

// FaceIO gives a kernel the psi on the faces of the cell being executed.
// Angles index the directions of the angle set; angle arguments are positions
// within that list.
type FaceIO interface {
	Angles() []int
	NumGroups() int
	Incoming(face int) bool
	Outgoing(face int) bool
	// UpwindPsi is zero on boundary faces
	UpwindPsi(face, vertex, angle, group int) float64
	SetDownwindPsi(face, vertex, angle, group int, psi float64)
}

// Kernel computes psi on one cell for every angle and group of the angle set.
type Kernel func(cell *mesh.Cell, io FaceIO) error

type AngleSet struct {
	ID     int
	Angles []int

	SPDS   *spds.SPDS
	FLUDS  *fluds.FLUDS
	Psi    *fluds.PsiStore
	Buffer *sweepbuffer.SweepBuffer

	kernel   Kernel
	log      zerolog.Logger
	executed bool
	order    []int
}

func New(id int, angles []int, b *sweepbuffer.SweepBuffer, psi *fluds.PsiStore, f *fluds.FLUDS,
	kernel Kernel, log zerolog.Logger) *AngleSet {
	return &AngleSet{
		ID:     id,
		Angles: angles,
		SPDS:   f.SPDS,
		FLUDS:  f,
		Psi:    psi,
		Buffer: b,
		kernel: kernel,
		log:    log.With().Int("angleSet", id).Logger(),
	}
}

// Advance moves the angle set as far as the available data allows. Cells are
// executed all at once, in sweep order, when every upstream message has
// arrived. Finished means executed and all sends completed.
func (as *AngleSet) Advance() (st Status, err error) {
	b := as.Buffer
	if as.executed {
		if b.ClearDownstreamBuffers() {
			return Finished, nil
		}
		return Pending, nil
	}
	if b.State() == sweepbuffer.Idle {
		if err = b.InitializeLocalAndDownstreamBuffers(); err != nil {
			return
		}
	}
	var ready bool
	if ready, err = b.ReceiveDelayedData(); err != nil || !ready {
		return Pending, err
	}
	if ready, err = b.ReceiveUpstreamPsi(); err != nil || !ready {
		return Pending, err
	}
	if err = as.execute(); err != nil {
		return
	}
	if err = b.SendDownstreamPsi(); err != nil {
		return
	}
	b.ClearLocalAndReceiveBuffers()
	as.executed = true
	as.log.Trace().Int("cells", len(as.order)).Msg("executed")
	if b.ClearDownstreamBuffers() {
		return Finished, nil
	}
	return Pending, nil
}

func (as *AngleSet) execute() (err error) {
	part := as.SPDS.Partition
	io := &cellIO{as: as}
	for _, c := range as.SPDS.SPLS {
		cell := part.Cells[c]
		io.cell = c
		if err = as.kernel(cell, io); err != nil {
			return fmt.Errorf("kernel on cell %d: %w", cell.GlobalID, err)
		}
		as.order = append(as.order, cell.GlobalID)
	}
	return
}

// Reset prepares for another sweep with the same topology.
func (as *AngleSet) Reset() {
	as.executed = false
	as.order = as.order[:0]
	as.Buffer.Reset()
}

// ExecutionOrder lists the global ids executed in the current or last sweep.
func (as *AngleSet) ExecutionOrder() []int {
	return append([]int(nil), as.order...)
}

type cellIO struct {
	as   *AngleSet
	cell int
}

func (io *cellIO) Angles() []int  { return io.as.Angles }
func (io *cellIO) NumGroups() int { return io.as.Psi.NumGroups }

func (io *cellIO) Incoming(face int) bool {
	return io.as.SPDS.FaceOrientation(io.cell, face) == spds.Incoming
}

func (io *cellIO) Outgoing(face int) bool {
	return io.as.SPDS.FaceOrientation(io.cell, face) == spds.Outgoing
}

func (io *cellIO) UpwindPsi(face, vertex, angle, group int) float64 {
	return io.as.Psi.Upwind(io.as.FLUDS.Slots[io.cell][face], vertex, angle, group)
}

func (io *cellIO) SetDownwindPsi(face, vertex, angle, group int, psi float64) {
	io.as.Psi.SetDownwind(io.as.FLUDS.Slots[io.cell][face], vertex, angle, group, psi)
}
