package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultEagerLimit matches the usual MPI eager threshold in bytes.
const DefaultEagerLimit = 32000

// World is an in-process transport connecting Size ranks. Each rank owns a
// mailbox keyed by (source, tag); senders post envelopes into the destination
// mailbox and receivers drain them in FIFO order.
type World struct {
	size       int
	eagerLimit int
	log        zerolog.Logger
	boxes      []*mailbox
}

type WorldOption func(w *World)

// WithEagerLimit sets the byte threshold at or below which sends complete
// immediately. Larger sends complete only once received.
func WithEagerLimit(bytes int) WorldOption {
	return func(w *World) { w.eagerLimit = bytes }
}

func WithLogger(log zerolog.Logger) WorldOption {
	return func(w *World) { w.log = log }
}

func NewWorld(size int, opts ...WorldOption) *World {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, have %d", size))
	}
	w := &World{
		size:       size,
		eagerLimit: DefaultEagerLimit,
		log:        zerolog.Nop(),
		boxes:      make([]*mailbox, size),
	}
	for _, opt := range opts {
		opt(w)
	}
	for n := range w.boxes {
		w.boxes[n] = newMailbox()
	}
	return w
}

func (w *World) Size() int { return w.size }

// Communicator returns the endpoint for rank.
func (w *World) Communicator(rank int) Communicator {
	if rank < 0 || rank >= w.size {
		panic(fmt.Errorf("%w: %d of %d", ErrInvalidRank, rank, w.size))
	}
	return &endpoint{world: w, rank: rank}
}

// Run executes fn once per rank, each in its own goroutine, and returns the
// first error. The context passed to fn is cancelled when any rank fails.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Communicator) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < w.size; rank++ {
		c := w.Communicator(rank)
		g.Go(func() error {
			if err := fn(gctx, c); err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

type channelKey struct {
	source, tag int
}

type envelope struct {
	source, tag int
	data        any
	count       int
	matched     chan struct{} // closed when the receiver consumes the envelope
}

type mailbox struct {
	mu      sync.Mutex
	queues  map[channelKey][]*envelope
	arrival chan struct{} // closed and replaced on every post
}

func newMailbox() *mailbox {
	return &mailbox{
		queues:  make(map[channelKey][]*envelope),
		arrival: make(chan struct{}),
	}
}

func (mb *mailbox) post(env *envelope) {
	mb.mu.Lock()
	key := channelKey{env.source, env.tag}
	mb.queues[key] = append(mb.queues[key], env)
	close(mb.arrival)
	mb.arrival = make(chan struct{})
	mb.mu.Unlock()
}

// peek returns the head envelope for key, or the channel that will be closed on
// the next arrival.
func (mb *mailbox) peek(key channelKey) (*envelope, <-chan struct{}) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if q := mb.queues[key]; len(q) > 0 {
		return q[0], nil
	}
	return nil, mb.arrival
}

func (mb *mailbox) pop(key channelKey) (env *envelope) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	q := mb.queues[key]
	env, q[0] = q[0], nil
	if len(q) == 1 {
		delete(mb.queues, key)
	} else {
		mb.queues[key] = q[1:]
	}
	return
}

type endpoint struct {
	world *World
	rank  int
}

func (e *endpoint) Rank() int { return e.rank }
func (e *endpoint) Size() int { return e.world.size }

func (e *endpoint) checkRank(r int) error {
	if r < 0 || r >= e.world.size {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRank, r, e.world.size)
	}
	return nil
}

func (e *endpoint) Isend(data any, dest, tag int) (Request, error) {
	if err := e.checkRank(dest); err != nil {
		return nil, err
	}
	env := &envelope{source: e.rank, tag: tag, matched: make(chan struct{})}
	switch d := data.(type) {
	case []int:
		env.data = append([]int(nil), d...)
		env.count = len(d)
	case []float64:
		env.data = append([]float64(nil), d...)
		env.count = len(d)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, data)
	}
	req := &request{}
	if bytes := 8 * env.count; bytes <= e.world.eagerLimit {
		req.done = closedChan
	} else {
		req.done = env.matched
		e.world.log.Debug().Int("source", e.rank).Int("dest", dest).
			Int("tag", tag).Int("bytes", bytes).Msg("rendezvous send")
	}
	e.world.boxes[dest].post(env)
	return req, nil
}

func (e *endpoint) Probe(ctx context.Context, source, tag int) (Status, error) {
	if err := e.checkRank(source); err != nil {
		return Status{}, err
	}
	key := channelKey{source, tag}
	for {
		env, arrival := e.world.boxes[e.rank].peek(key)
		if env != nil {
			return Status{Source: source, Tag: tag, Count: env.count}, nil
		}
		select {
		case <-arrival:
		case <-ctx.Done():
			return Status{}, fmt.Errorf("probe source %d tag %d: %w", source, tag, ctx.Err())
		}
	}
}

func (e *endpoint) Iprobe(source, tag int) (Status, bool) {
	if e.checkRank(source) != nil {
		return Status{}, false
	}
	env, _ := e.world.boxes[e.rank].peek(channelKey{source, tag})
	if env == nil {
		return Status{}, false
	}
	return Status{Source: source, Tag: tag, Count: env.count}, true
}

func (e *endpoint) Recv(ctx context.Context, buf any, source, tag int) error {
	st, err := e.Probe(ctx, source, tag)
	if err != nil {
		return err
	}
	n, err := payloadLen(buf)
	if err != nil {
		return fmt.Errorf("%w: %T", err, buf)
	}
	if n < st.Count {
		return fmt.Errorf("%w: have %d, message has %d", ErrTruncated, n, st.Count)
	}
	key := channelKey{source, tag}
	env, _ := e.world.boxes[e.rank].peek(key)
	switch b := buf.(type) {
	case []int:
		d, ok := env.data.([]int)
		if !ok {
			return fmt.Errorf("%w: %T into %T", ErrTypeMismatch, env.data, buf)
		}
		copy(b, d)
	case []float64:
		d, ok := env.data.([]float64)
		if !ok {
			return fmt.Errorf("%w: %T into %T", ErrTypeMismatch, env.data, buf)
		}
		copy(b, d)
	}
	e.world.boxes[e.rank].pop(key)
	close(env.matched)
	return nil
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

type request struct {
	done <-chan struct{}
}

func (r *request) Test() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
