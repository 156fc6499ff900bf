package sweepbuffer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notargets/gosweep/comm"
	"github.com/notargets/gosweep/fluds"
	"github.com/notargets/gosweep/utils"
)

// block is a [start, end) range of values within a psi store
type block [2]int

// SweepBuffer runs the psi send and receive lifecycle of one angle set. It is
// driven by a single goroutine.
type SweepBuffer struct {
	AngleSetID int

	comm       comm.Communicator
	fluds      *fluds.FLUDS
	psi        *fluds.PsiStore
	log        zerolog.Logger
	eagerLimit int

	succs, deps, delayedDeps []int

	deplocIMessages        [][]block
	prelocIMessages        [][]block
	delayedPrelocIMessages [][]block
	maxNumMess             int
	tagStride              int

	state                  State
	deplocIRequests        [][]comm.Request
	prelocIReceived        [][]bool
	delayedPrelocIReceived [][]bool
	doneSending            bool
	releases               int
}

// New builds the message structure for one angle set. It is collective: every
// location creates its angle sets in the same order.
func New(ctx context.Context, c comm.Communicator, f *fluds.FLUDS, psi *fluds.PsiStore,
	angleSetID int, cfg Config, log zerolog.Logger) (b *SweepBuffer, err error) {
	s := f.SPDS
	b = &SweepBuffer{
		AngleSetID:  angleSetID,
		comm:        c,
		fluds:       f,
		psi:         psi,
		log:         log.With().Int("location", c.Rank()).Int("angleSet", angleSetID).Logger(),
		eagerLimit:  cfg.EagerLimit,
		succs:       s.AllLocationSuccessors(),
		deps:        s.LocationDependencies(),
		delayedDeps: s.DelayedLocationDependencies(),
	}
	b.buildMessageStructure()
	localMax := 1
	for _, msgs := range [][][]block{b.deplocIMessages, b.prelocIMessages, b.delayedPrelocIMessages} {
		for _, m := range msgs {
			localMax = max(localMax, len(m))
		}
	}
	if b.maxNumMess, err = comm.AllReduceMax(ctx, c, localMax); err != nil {
		return nil, fmt.Errorf("agreeing on message count: %w", err)
	}
	b.tagStride = b.maxNumMess
	b.Reset()
	return
}

// AlignTagStride gives every buffer the same tag stride so the tag ranges of
// different angle sets never overlap.
func AlignTagStride(buffers []*SweepBuffer) {
	stride := 1
	for _, b := range buffers {
		stride = max(stride, b.maxNumMess)
	}
	for _, b := range buffers {
		b.tagStride = stride
	}
}

func (b *SweepBuffer) buildMessageStructure() {
	b.deplocIMessages = make([][]block, len(b.succs))
	for d := range b.succs {
		b.deplocIMessages[d] = splitMessages(b.psi.OutgoingSize(d), b.eagerLimit)
	}
	b.prelocIMessages = make([][]block, len(b.deps))
	for p := range b.deps {
		b.prelocIMessages[p] = splitMessages(b.psi.IncomingSize(p), b.eagerLimit)
	}
	b.delayedPrelocIMessages = make([][]block, len(b.delayedDeps))
	for p := range b.delayedDeps {
		b.delayedPrelocIMessages[p] = splitMessages(b.psi.DelayedIncomingSize(p), b.eagerLimit)
	}
}

// splitMessages divides n values into the fewest near-equal contiguous
// messages that each fit under eagerLimit bytes, with at least one value per
// message. A non-positive limit means one message.
func splitMessages(n, eagerLimit int) (msgs []block) {
	numMess := 1
	if eagerLimit > 0 {
		perMessage := max(1, eagerLimit/8)
		numMess = max(1, (n+perMessage-1)/perMessage)
	}
	pm := utils.NewPartitionMap(numMess, n)
	msgs = make([]block, numMess)
	for m := range msgs {
		kMin, kMax := pm.GetBucketRange(m)
		msgs[m] = block{kMin, kMax}
	}
	return
}

func (b *SweepBuffer) tag(m int) int {
	return psiTagBase + b.tagStride*b.AngleSetID + m
}

func (b *SweepBuffer) State() State { return b.state }

// MaxNumMessages is the global maximum message count per location pair.
func (b *SweepBuffer) MaxNumMessages() int { return b.maxNumMess }

func (b *SweepBuffer) expect(op string, want State) error {
	if b.state != want {
		return &StateError{Op: op, Have: b.state, Want: want}
	}
	return nil
}

func (b *SweepBuffer) send(store []float64, msgs []block, d int) (err error) {
	for m, blk := range msgs {
		var req comm.Request
		if req, err = b.comm.Isend(store[blk[0]:blk[1]], b.succs[d], b.tag(m)); err != nil {
			return fmt.Errorf("sending psi message %d to %d: %w", m, b.succs[d], err)
		}
		b.deplocIRequests[d] = append(b.deplocIRequests[d], req)
	}
	return
}

// InitializeLocalAndDownstreamBuffers allocates the outgoing stores and sends
// last sweep's psi to the delayed successors.
func (b *SweepBuffer) InitializeLocalAndDownstreamBuffers() (err error) {
	if err = b.expect("InitializeLocalAndDownstreamBuffers", Idle); err != nil {
		return
	}
	b.state = SendingOutgoing
	b.psi.AllocateOutgoing()
	for d := range b.succs {
		if !b.fluds.IsDelayedSuccessor(d) {
			continue
		}
		if err = b.send(b.psi.Lagged[d], b.deplocIMessages[d], d); err != nil {
			return
		}
	}
	b.state = AwaitingDelayedIncoming
	return
}

// receive polls every outstanding message of one predecessor and reports
// whether all of them have arrived.
func (b *SweepBuffer) receive(loc int, store []float64, msgs []block, received []bool) (done bool, err error) {
	done = true
	for m, blk := range msgs {
		if received[m] {
			continue
		}
		st, ok := b.comm.Iprobe(loc, b.tag(m))
		if !ok {
			done = false
			continue
		}
		if st.Count != blk[1]-blk[0] {
			return false, fmt.Errorf("psi message %d from %d has %d values, want %d",
				m, loc, st.Count, blk[1]-blk[0])
		}
		// The message is already queued, so this cannot block
		if err = b.comm.Recv(context.Background(), store[blk[0]:blk[1]], loc, b.tag(m)); err != nil {
			return false, fmt.Errorf("receiving psi message %d from %d: %w", m, loc, err)
		}
		received[m] = true
	}
	return
}

// ReceiveDelayedData polls for delayed predecessor psi. It returns true once
// everything has arrived.
func (b *SweepBuffer) ReceiveDelayedData() (all bool, err error) {
	if b.state == AwaitingOrdinaryIncoming {
		return true, nil
	}
	if err = b.expect("ReceiveDelayedData", AwaitingDelayedIncoming); err != nil {
		return
	}
	all = true
	for p, loc := range b.delayedDeps {
		var done bool
		done, err = b.receive(loc, b.psi.DelayedIncomingBuffer(p), b.delayedPrelocIMessages[p],
			b.delayedPrelocIReceived[p])
		if err != nil {
			return false, err
		}
		all = all && done
	}
	if all {
		b.state = AwaitingOrdinaryIncoming
	}
	return
}

// ReceiveUpstreamPsi polls for ordinary predecessor psi. It returns true once
// everything has arrived.
func (b *SweepBuffer) ReceiveUpstreamPsi() (all bool, err error) {
	if b.state == SendingOrdinaryOutgoing {
		return true, nil
	}
	if err = b.expect("ReceiveUpstreamPsi", AwaitingOrdinaryIncoming); err != nil {
		return
	}
	all = true
	for p, loc := range b.deps {
		var done bool
		done, err = b.receive(loc, b.psi.IncomingBuffer(p), b.prelocIMessages[p], b.prelocIReceived[p])
		if err != nil {
			return false, err
		}
		all = all && done
	}
	if all {
		b.state = SendingOrdinaryOutgoing
	}
	return
}

// ClearLocalAndReceiveBuffers drops received psi after execution.
func (b *SweepBuffer) ClearLocalAndReceiveBuffers() { b.psi.ReleaseIncoming() }

// SendDownstreamPsi sends this sweep's psi to the ordinary successors and
// keeps the delayed successors' psi for the next sweep.
func (b *SweepBuffer) SendDownstreamPsi() (err error) {
	if err = b.expect("SendDownstreamPsi", SendingOrdinaryOutgoing); err != nil {
		return
	}
	b.psi.SaveLagged()
	for d := range b.succs {
		if b.fluds.IsDelayedSuccessor(d) {
			continue
		}
		if err = b.send(b.psi.Outgoing[d], b.deplocIMessages[d], d); err != nil {
			return
		}
	}
	b.state = Draining
	return
}

// ClearDownstreamBuffers reports whether every send of this sweep has
// completed. The first time it finds them complete it releases the outgoing
// stores; until then it only tests.
func (b *SweepBuffer) ClearDownstreamBuffers() bool {
	if b.doneSending {
		return true
	}
	if b.state != Draining {
		return false
	}
	for _, reqs := range b.deplocIRequests {
		if !comm.TestAll(reqs) {
			return false
		}
	}
	b.doneSending = true
	b.psi.ReleaseOutgoing()
	b.releases++
	b.state = Done
	b.log.Trace().Msg("downstream buffers released")
	return true
}

func (b *SweepBuffer) DoneSending() bool { return b.doneSending }

// Reset prepares the buffer for the next sweep.
func (b *SweepBuffer) Reset() {
	b.state = Idle
	b.doneSending = false
	b.deplocIRequests = make([][]comm.Request, len(b.succs))
	b.prelocIReceived = resetFlags(b.prelocIReceived, b.prelocIMessages)
	b.delayedPrelocIReceived = resetFlags(b.delayedPrelocIReceived, b.delayedPrelocIMessages)
}

func resetFlags(flags [][]bool, msgs [][]block) [][]bool {
	if len(flags) != len(msgs) {
		flags = make([][]bool, len(msgs))
		for i, m := range msgs {
			flags[i] = make([]bool, len(m))
		}
		return flags
	}
	for i := range flags {
		clear(flags[i])
	}
	return flags
}
