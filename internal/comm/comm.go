// Package comm provides the message-passing runtime the benchmarks run on.
//
// A group of p ranks exchanges data through blocking collective calls. Every
// rank must issue the same collectives in the same order; each call is
// matched with its peers by a per-rank sequence number and released only when
// the whole group has contributed.
//
// # Transports
//
// Two transports implement [Communicator]:
//   - [Spawn] runs every rank as a goroutine of the current process, sharing
//     one in-memory [Hub].
//   - [Listen]/[Serve] host the Hub over gRPC on rank 0 and [Dial] joins the
//     remaining ranks from other processes or machines.
//
// # Failure
//
// A rank that fails, leaves or calls [Communicator.Abort] aborts the entire
// group: every pending and future collective returns an error wrapping
// [ErrAborted]. There are no retries; a partially participating group cannot
// continue a symmetric protocol.
package comm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/torosent/collbench/internal/clientmetrics"
)

var (
	// ErrAborted is returned by collectives once the group has been aborted.
	ErrAborted = errors.New("group aborted")
	// ErrProtocol reports mismatched collective calls or malformed arguments.
	ErrProtocol = errors.New("collective protocol violation")
)

// Communicator is one rank's view of its group. Calls block until every rank
// has entered the matching collective. A Communicator is not safe for
// concurrent use.
type Communicator interface {
	// Rank returns this rank's index in [0, Size()).
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Barrier blocks until every rank has entered the barrier.
	Barrier(ctx context.Context) error
	// Allgather contributes send and fills recv with every rank's
	// contribution ordered by rank. All ranks must send the same length and
	// recv must hold Size()*len(send) bytes.
	Allgather(ctx context.Context, send, recv []byte) error
	// Allgatherv contributes send[:counts[Rank()]] and copies rank i's
	// contribution to recv[displs[i]:displs[i]+counts[i]].
	Allgatherv(ctx context.Context, send, recv []byte, counts, displs []int) error
	// Reduce combines v across the group with op. Only root receives the
	// result; every other rank gets 0.
	Reduce(ctx context.Context, v float64, op Op, root int) (float64, error)
	// Wtime returns elapsed wall-clock seconds from an arbitrary fixed origin.
	Wtime() float64
	// Abort aborts the whole group.
	Abort(reason error)
	// Stats returns this rank's traffic counters.
	Stats() clientmetrics.Snapshot
	// Close releases the endpoint.
	Close() error
}

// Op is a reduction operator.
type Op int

const (
	OpSum Op = iota
	OpMin
	OpMax
)

func (o Op) String() string {
	switch o {
	case OpSum:
		return "sum"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

func (o Op) valid() bool {
	return o >= OpSum && o <= OpMax
}

// apply folds values in rank order.
func (o Op) apply(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	acc := values[0]
	for _, v := range values[1:] {
		switch o {
		case OpSum:
			acc += v
		case OpMin:
			acc = math.Min(acc, v)
		case OpMax:
			acc = math.Max(acc, v)
		}
	}
	return acc
}
