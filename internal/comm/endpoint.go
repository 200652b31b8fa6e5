package comm

import (
	"context"
	"fmt"
	"time"

	"github.com/torosent/collbench/internal/clientmetrics"
)

// exchanger carries contributions to a Hub, locally or over the wire.
type exchanger interface {
	exchange(ctx context.Context, seq uint64, rank int, c contribution) (reply, error)
	abort(reason error)
	close() error
}

type hubExchanger struct {
	hub *Hub
}

func (h hubExchanger) exchange(ctx context.Context, seq uint64, rank int, c contribution) (reply, error) {
	return h.hub.Contribute(ctx, seq, rank, c)
}

func (h hubExchanger) abort(reason error) { h.hub.Abort(reason) }

func (h hubExchanger) close() error { return nil }

// endpoint implements Communicator on top of an exchanger.
type endpoint struct {
	rank  int
	size  int
	ex    exchanger
	seq   uint64
	epoch time.Time
	stats *clientmetrics.ClientMetrics
}

func newEndpoint(rank, size int, ex exchanger) *endpoint {
	stats := clientmetrics.New()
	stats.MarkConnected()
	return &endpoint{
		rank:  rank,
		size:  size,
		ex:    ex,
		epoch: time.Now(),
		stats: stats,
	}
}

func (e *endpoint) Rank() int { return e.rank }

func (e *endpoint) Size() int { return e.size }

func (e *endpoint) Wtime() float64 {
	return time.Since(e.epoch).Seconds()
}

func (e *endpoint) Stats() clientmetrics.Snapshot {
	return e.stats.Snapshot()
}

func (e *endpoint) Abort(reason error) {
	e.stats.IncrementErrors()
	e.ex.abort(fmt.Errorf("rank %d: %w", e.rank, reason))
}

func (e *endpoint) Close() error {
	return e.ex.close()
}

func (e *endpoint) call(ctx context.Context, c contribution) (reply, error) {
	seq := e.seq
	e.seq++
	rep, err := e.ex.exchange(ctx, seq, e.rank, c)
	if err != nil {
		e.stats.IncrementErrors()
		return reply{}, err
	}
	return rep, nil
}

// fail aborts the group for a locally detected misuse; peers would otherwise
// wait forever for this rank's contribution.
func (e *endpoint) fail(err error) error {
	e.Abort(err)
	return err
}

func (e *endpoint) Barrier(ctx context.Context) error {
	if _, err := e.call(ctx, contribution{kind: kindBarrier}); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	e.stats.RecordCollective("barrier", 0, 0)
	return nil
}

func (e *endpoint) Allgather(ctx context.Context, send, recv []byte) error {
	n := len(send)
	if len(recv) < n*e.size {
		return e.fail(fmt.Errorf("%w: allgather needs %d receive bytes, have %d", ErrProtocol, n*e.size, len(recv)))
	}
	rep, err := e.call(ctx, contribution{kind: kindGather, payload: send})
	if err != nil {
		return fmt.Errorf("allgather: %w", err)
	}
	if len(rep.parts) != e.size {
		return e.fail(fmt.Errorf("%w: allgather returned %d parts for %d ranks", ErrProtocol, len(rep.parts), e.size))
	}
	for i, part := range rep.parts {
		if len(part) != n {
			return e.fail(fmt.Errorf("%w: allgather: rank %d sent %d bytes, rank %d sent %d", ErrProtocol, i, len(part), e.rank, n))
		}
		copy(recv[i*n:], part)
	}
	e.stats.RecordCollective("allgather", int64(n), int64(n*e.size))
	return nil
}

func (e *endpoint) Allgatherv(ctx context.Context, send, recv []byte, counts, displs []int) error {
	if len(counts) != e.size || len(displs) != e.size {
		return e.fail(fmt.Errorf("%w: allgatherv needs %d counts and displacements, have %d and %d",
			ErrProtocol, e.size, len(counts), len(displs)))
	}
	own := counts[e.rank]
	if own < 0 || own > len(send) {
		return e.fail(fmt.Errorf("%w: allgatherv: count %d does not fit send buffer of %d", ErrProtocol, own, len(send)))
	}
	for i := range counts {
		if counts[i] < 0 || displs[i] < 0 || displs[i]+counts[i] > len(recv) {
			return e.fail(fmt.Errorf("%w: allgatherv: rank %d block [%d,+%d) outside receive buffer of %d",
				ErrProtocol, i, displs[i], counts[i], len(recv)))
		}
	}

	rep, err := e.call(ctx, contribution{kind: kindGather, payload: send[:own]})
	if err != nil {
		return fmt.Errorf("allgatherv: %w", err)
	}
	if len(rep.parts) != e.size {
		return e.fail(fmt.Errorf("%w: allgatherv returned %d parts for %d ranks", ErrProtocol, len(rep.parts), e.size))
	}
	received := 0
	for i, part := range rep.parts {
		if len(part) != counts[i] {
			return e.fail(fmt.Errorf("%w: allgatherv: rank %d sent %d bytes, expected count %d", ErrProtocol, i, len(part), counts[i]))
		}
		copy(recv[displs[i]:], part)
		received += len(part)
	}
	e.stats.RecordCollective("allgatherv", int64(own), int64(received))
	return nil
}

func (e *endpoint) Reduce(ctx context.Context, v float64, op Op, root int) (float64, error) {
	if !op.valid() {
		return 0, e.fail(fmt.Errorf("%w: unknown reduction %s", ErrProtocol, op))
	}
	if root < 0 || root >= e.size {
		return 0, e.fail(fmt.Errorf("%w: reduce root %d outside group of %d", ErrProtocol, root, e.size))
	}
	rep, err := e.call(ctx, contribution{kind: kindReduce, value: v, op: op, root: root})
	if err != nil {
		return 0, fmt.Errorf("reduce %s: %w", op, err)
	}
	e.stats.RecordCollective("reduce", 8, 0)
	if e.rank == root && !rep.hasValue {
		return 0, e.fail(fmt.Errorf("%w: reduce %s: root received no value", ErrProtocol, op))
	}
	return rep.value, nil
}
