package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/collbench/internal/buffer"
	"github.com/torosent/collbench/internal/comm"
	"github.com/torosent/collbench/internal/distribution"
)

const progressInterval = 5 * time.Second

// Sample is what one rank holds after the timed loop of a run.
type Sample struct {
	Run Run
	// Timer is the sum of this rank's measured iteration latencies in
	// seconds.
	Timer float64
	// Means are the per-iteration cross-rank mean latencies in microseconds,
	// one per measured iteration. Only rank 0 holds real values.
	Means []float64
	// Byte totals of the variable-size layout; zero for allgather.
	ExactBytes      int
	ClosedFormBytes int
}

// harness owns the buffers of one rank for a whole sweep.
type harness struct {
	c      comm.Communicator
	opt    Options
	logger *slog.Logger

	send  []byte
	recv  []byte
	table *distribution.Table
	means []float64

	progress rate.Sometimes
}

// newHarness allocates every buffer the sweep needs up front. opt.MaxSize
// must already respect the memory limit.
func newHarness(c comm.Communicator, opt Options, logger *slog.Logger) (*harness, error) {
	p := c.Size()
	sendLen := opt.MaxSize
	recvLen := opt.MaxSize * p
	if opt.Benchmark.Variable() {
		sendLen = opt.Distribution.SendCapacity(p, opt.MaxSize, c.Rank())
		recvLen = opt.Distribution.ReceiveCapacity(p, opt.MaxSize)
	}

	send, err := buffer.Allocate(sendLen, opt.Accel)
	if err != nil {
		return nil, fmt.Errorf("send buffer: %w", err)
	}
	recv, err := buffer.Allocate(recvLen, opt.Accel)
	if err != nil {
		_ = buffer.Free(send, opt.Accel)
		return nil, fmt.Errorf("receive buffer: %w", err)
	}
	buffer.Fill(send, 1)
	buffer.Fill(recv, 0)

	h := &harness{
		c:        c,
		opt:      opt,
		logger:   logger,
		send:     send,
		recv:     recv,
		means:    make([]float64, opt.maxIterations()),
		progress: rate.Sometimes{Interval: progressInterval},
	}
	if opt.Benchmark.Variable() {
		h.table = distribution.NewTable(p)
	}
	return h, nil
}

func (h *harness) release() error {
	errSend := buffer.Free(h.send, h.opt.Accel)
	errRecv := buffer.Free(h.recv, h.opt.Accel)
	h.send, h.recv = nil, nil
	if errSend != nil {
		return errSend
	}
	return errRecv
}

// measure runs the warm-up and measured iterations of run in lockstep with
// the rest of the group.
func (h *harness) measure(ctx context.Context, run Run) (Sample, error) {
	p := h.c.Size()
	sample := Sample{Run: run}

	if err := h.c.Barrier(ctx); err != nil {
		return sample, err
	}
	if h.table != nil {
		sample.ExactBytes = h.table.Fill(h.opt.Distribution, run.Size)
		sample.ClosedFormBytes = h.opt.Distribution.Total(p, run.Size)
		if err := h.table.Validate(len(h.recv)); err != nil {
			h.c.Abort(err)
			return sample, err
		}
	}
	if err := h.c.Barrier(ctx); err != nil {
		return sample, err
	}

	means := h.means[:run.Iterations]
	var timer float64
	for i := 0; i < run.Iterations+run.Skip; i++ {
		t0 := h.c.Wtime()
		if err := h.exchange(ctx, run.Size); err != nil {
			return sample, fmt.Errorf("size %d iteration %d: %w", run.Size, i, err)
		}
		t1 := h.c.Wtime()

		if i >= run.Skip {
			latency := t1 - t0
			sum, err := h.c.Reduce(ctx, latency, comm.OpSum, 0)
			if err != nil {
				return sample, fmt.Errorf("size %d iteration %d: %w", run.Size, i, err)
			}
			if h.c.Rank() == 0 {
				means[i-run.Skip] = sum * 1e6 / float64(p)
			}
			timer += latency
		}
		if err := h.c.Barrier(ctx); err != nil {
			return sample, fmt.Errorf("size %d iteration %d: %w", run.Size, i, err)
		}

		h.progress.Do(func() {
			h.logger.Debug("measuring", "size", run.Size, "iteration", i, "of", run.Iterations+run.Skip)
		})
	}

	sample.Timer = timer
	sample.Means = means
	return sample, nil
}

func (h *harness) exchange(ctx context.Context, size int) error {
	if h.table == nil {
		return h.c.Allgather(ctx, h.send[:size], h.recv[:size*h.c.Size()])
	}
	return h.c.Allgatherv(ctx, h.send, h.recv, h.table.Counts, h.table.Displs)
}
