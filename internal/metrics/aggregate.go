package metrics

import (
	"context"
	"fmt"

	"github.com/torosent/collbench/internal/comm"
)

// Reducer is the part of a communicator the aggregator needs.
type Reducer interface {
	Size() int
	Reduce(ctx context.Context, v float64, op comm.Op, root int) (float64, error)
}

// Latency is the cross-rank summary of the per-rank average latency of one
// size, in microseconds. It is only meaningful on rank 0.
type Latency struct {
	Avg float64
	Min float64
	Max float64
}

// Aggregator reduces timers across the group and summarizes each size on
// rank 0. One Aggregator serves a whole sweep.
type Aggregator struct {
	mode  StdDevMode
	carry float64
	hist  *Collector
}

func NewAggregator(mode StdDevMode) *Aggregator {
	if mode == "" {
		mode = StdDevCorrect
	}
	return &Aggregator{mode: mode, hist: NewCollector()}
}

// Mode returns the standard deviation mode in use.
func (a *Aggregator) Mode() StdDevMode {
	return a.mode
}

// Reduce turns this rank's running timer (seconds over iterations measured
// iterations) into a local average and reduces it to rank 0. Every rank must
// call it.
func (a *Aggregator) Reduce(ctx context.Context, r Reducer, timer float64, iterations int) (Latency, error) {
	if iterations <= 0 {
		return Latency{}, fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	local := timer * 1e6 / float64(iterations)

	var lat Latency
	var err error
	if lat.Min, err = r.Reduce(ctx, local, comm.OpMin, 0); err != nil {
		return Latency{}, err
	}
	if lat.Max, err = r.Reduce(ctx, local, comm.OpMax, 0); err != nil {
		return Latency{}, err
	}
	sum, err := r.Reduce(ctx, local, comm.OpSum, 0)
	if err != nil {
		return Latency{}, err
	}
	lat.Avg = sum / float64(r.Size())
	return lat, nil
}

// StdDev computes the dispersion of means about avg according to the mode.
// In legacy mode the result is carried into the next call.
func (a *Aggregator) StdDev(means []float64, avg float64) float64 {
	if a.mode == StdDevLegacy {
		a.carry = LegacyStdDev(means, avg, a.carry)
		return a.carry
	}
	return StdDev(means, avg)
}

// Summarize builds the statistics of one size on rank 0. means holds the
// per-iteration cross-rank means of the measured iterations.
func (a *Aggregator) Summarize(size, iterations, skip int, lat Latency, means []float64) SizeStats {
	a.hist.Reset()
	a.hist.RecordAll(means)
	pct := a.hist.Percentiles()

	return SizeStats{
		Size:         size,
		Iterations:   iterations,
		Skip:         skip,
		AvgLatencyUs: lat.Avg,
		MinLatencyUs: lat.Min,
		MaxLatencyUs: lat.Max,
		StdDevUs:     a.StdDev(means, lat.Avg),
		P50LatencyUs: pct.P50,
		P90LatencyUs: pct.P90,
		P99LatencyUs: pct.P99,
	}
}
