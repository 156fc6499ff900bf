// Package comm defines the point-to-point message passing contract used by the
// sweep: ranks ("locations") address each other by integer index and a tag.
// Payloads are flat []int or []float64 slices.
//
// Semantics follow MPI closely enough for sweep scheduling:
//   - Isend never blocks. The returned Request completes when the send buffer
//     may be reused; for messages above the eager limit that is when the
//     receiver has matched the message.
//   - Probe blocks until a message from (source, tag) is available and reports
//     its element count; Iprobe is the non-blocking variant.
//   - Messages between a fixed (source, tag) pair are delivered in FIFO order.
package comm

import (
	"context"
	"errors"
)

var (
	ErrTruncated       = errors.New("receive buffer shorter than message")
	ErrUnsupportedType = errors.New("unsupported payload type")
	ErrInvalidRank     = errors.New("invalid rank")
	ErrTypeMismatch    = errors.New("receive buffer type does not match message")
)

// Status describes a pending message found by Probe or Iprobe.
type Status struct {
	Source int
	Tag    int
	Count  int // Number of elements, not bytes
}

// Request tracks completion of a non-blocking send.
type Request interface {
	Test() bool
	Wait(ctx context.Context) error
}

type Communicator interface {
	Rank() int
	Size() int
	// Isend posts data ([]int or []float64) to dest. The data is copied.
	Isend(data any, dest, tag int) (Request, error)
	Probe(ctx context.Context, source, tag int) (Status, error)
	Iprobe(source, tag int) (Status, bool)
	// Recv copies the next (source, tag) message into buf, which must be a
	// []int or []float64 at least Status.Count long.
	Recv(ctx context.Context, buf any, source, tag int) error
}

// WaitAll waits on every non-nil request in order.
func WaitAll(ctx context.Context, requests []Request) error {
	for _, r := range requests {
		if r == nil {
			continue
		}
		if err := r.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// TestAll reports whether every non-nil request has completed. It stops at the
// first incomplete request.
func TestAll(requests []Request) bool {
	for _, r := range requests {
		if r != nil && !r.Test() {
			return false
		}
	}
	return true
}

func payloadLen(data any) (n int, err error) {
	switch d := data.(type) {
	case []int:
		n = len(d)
	case []float64:
		n = len(d)
	default:
		err = ErrUnsupportedType
	}
	return
}

// PayloadBytes is the wire size used for eager limit decisions.
func PayloadBytes(data any) int {
	n, err := payloadLen(data)
	if err != nil {
		return 0
	}
	return 8 * n
}
