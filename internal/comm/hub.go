package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type opKind uint8

const (
	kindBarrier opKind = iota + 1
	kindGather
	kindReduce
)

func (k opKind) String() string {
	switch k {
	case kindBarrier:
		return "barrier"
	case kindGather:
		return "gather"
	case kindReduce:
		return "reduce"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// contribution is one rank's input to a collective.
type contribution struct {
	kind    opKind
	payload []byte
	value   float64
	op      Op
	root    int
}

// reply is what a rank gets back once its collective completes.
type reply struct {
	parts    [][]byte
	value    float64
	hasValue bool
}

type round struct {
	kind    opKind
	op      Op
	root    int
	parts   [][]byte
	values  []float64
	seen    []bool
	arrived int
	value   float64
	done    chan struct{}
}

func (r *round) replyFor(rank int) reply {
	switch r.kind {
	case kindGather:
		return reply{parts: r.parts}
	case kindReduce:
		if rank == r.root {
			return reply{value: r.value, hasValue: true}
		}
	}
	return reply{}
}

// Hub matches collective contributions from every rank of a group.
type Hub struct {
	size int

	mu       sync.Mutex
	rounds   map[uint64]*round
	abortErr error
	aborted  chan struct{}
}

// NewHub creates a Hub for a group of size ranks.
func NewHub(size int) *Hub {
	return &Hub{
		size:    size,
		rounds:  make(map[uint64]*round),
		aborted: make(chan struct{}),
	}
}

// Size returns the group size the Hub was created for.
func (h *Hub) Size() int {
	return h.size
}

// Abort fails every pending and future collective. Only the first reason is
// kept.
func (h *Hub) Abort(reason error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abortLocked(reason)
}

func (h *Hub) abortLocked(reason error) {
	if h.abortErr != nil {
		return
	}
	if reason == nil {
		reason = errors.New("no reason given")
	}
	if errors.Is(reason, ErrAborted) {
		h.abortErr = reason
	} else {
		h.abortErr = fmt.Errorf("%w: %w", ErrAborted, reason)
	}
	close(h.aborted)
}

// Err returns the abort reason, or nil while the group is healthy.
func (h *Hub) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.abortErr
}

// Contribute registers rank's input for collective seq and blocks until all
// ranks have contributed, the group is aborted or ctx is done. Leaving early
// aborts the group.
func (h *Hub) Contribute(ctx context.Context, seq uint64, rank int, c contribution) (reply, error) {
	if rank < 0 || rank >= h.size {
		return reply{}, fmt.Errorf("%w: rank %d outside group of %d", ErrProtocol, rank, h.size)
	}

	h.mu.Lock()
	if h.abortErr != nil {
		err := h.abortErr
		h.mu.Unlock()
		return reply{}, err
	}
	r, ok := h.rounds[seq]
	if !ok {
		r = &round{
			kind:   c.kind,
			op:     c.op,
			root:   c.root,
			parts:  make([][]byte, h.size),
			values: make([]float64, h.size),
			seen:   make([]bool, h.size),
			done:   make(chan struct{}),
		}
		h.rounds[seq] = r
	}
	if err := r.accepts(seq, rank, c); err != nil {
		h.abortLocked(err)
		h.mu.Unlock()
		return reply{}, err
	}
	r.seen[rank] = true
	if len(c.payload) > 0 {
		r.parts[rank] = append([]byte(nil), c.payload...)
	}
	r.values[rank] = c.value
	r.arrived++
	if r.arrived == h.size {
		if r.kind == kindReduce {
			r.value = r.op.apply(r.values)
		}
		delete(h.rounds, seq)
		close(r.done)
	}
	aborted := h.aborted
	h.mu.Unlock()

	select {
	case <-r.done:
		return r.replyFor(rank), nil
	case <-aborted:
		select {
		case <-r.done:
			return r.replyFor(rank), nil
		default:
		}
		return reply{}, h.Err()
	case <-ctx.Done():
		err := fmt.Errorf("rank %d left %s #%d: %w", rank, c.kind, seq, ctx.Err())
		h.Abort(err)
		return reply{}, err
	}
}

func (r *round) accepts(seq uint64, rank int, c contribution) error {
	if r.seen[rank] {
		return fmt.Errorf("%w: rank %d contributed twice to collective #%d", ErrProtocol, rank, seq)
	}
	if r.kind != c.kind {
		return fmt.Errorf("%w: collective #%d: rank %d called %s while the group is in %s", ErrProtocol, seq, rank, c.kind, r.kind)
	}
	if c.kind == kindReduce && (r.op != c.op || r.root != c.root) {
		return fmt.Errorf("%w: reduce #%d: rank %d uses %s to root %d, group uses %s to root %d",
			ErrProtocol, seq, rank, c.op, c.root, r.op, r.root)
	}
	return nil
}
