package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/collbench/internal/comm"
	"github.com/torosent/collbench/internal/metrics"
	"github.com/torosent/collbench/internal/tracing"
)

// ErrTooFewRanks is returned when the group has fewer than two ranks.
var ErrTooFewRanks = errors.New("this test requires at least two processes")

// Observer is notified on rank 0 after every completed size.
type Observer interface {
	OnSize(stats metrics.SizeStats)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(stats metrics.SizeStats)

func (f ObserverFunc) OnSize(stats metrics.SizeStats) { f(stats) }

// Runner drives one rank through a size sweep.
type Runner struct {
	c         comm.Communicator
	opt       Options
	logger    *slog.Logger
	tracer    trace.Tracer
	observers []Observer
	clamped   bool
}

// New prepares a sweep for rank c. It fails with ErrTooFewRanks for groups
// smaller than two and clamps MaxSize to the memory limit.
func New(c comm.Communicator, opt Options, logger *slog.Logger, tracer trace.Tracer) (*Runner, error) {
	opt.normalize()
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if c.Size() < 2 {
		return nil, ErrTooFewRanks
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if tracer == nil {
		tracer = tracing.NoopTracer()
	}
	r := &Runner{c: c, logger: logger, tracer: tracer}
	limit := opt.MaxSize
	r.clamped = opt.clampToMemory(c.Size())
	if r.clamped && c.Rank() == 0 {
		logger.Warn("max message size clamped to memory limit",
			"requested", limit, "max_size", opt.MaxSize, "mem_limit", opt.MemLimit, "ranks", c.Size())
	}
	r.opt = opt
	return r, nil
}

// Options returns the effective options after clamping.
func (r *Runner) Options() Options {
	return r.opt
}

// Observe registers o for size completions on rank 0.
func (r *Runner) Observe(o Observer) {
	r.observers = append(r.observers, o)
}

// Run executes the sweep. Every rank must call it; only rank 0 returns a
// report. A failure on any rank aborts the group.
func (r *Runner) Run(ctx context.Context) (*metrics.Report, error) {
	rank, p := r.c.Rank(), r.c.Size()
	started := time.Now()

	h, err := newHarness(r.c, r.opt, r.logger)
	if err != nil {
		r.logger.Error("could not allocate memory", "rank", rank, "error", err)
		r.c.Abort(err)
		return nil, err
	}
	defer func() {
		if err := h.release(); err != nil {
			r.logger.Warn("release buffers", "rank", rank, "error", err)
		}
	}()

	distName := ""
	if r.opt.Benchmark.Variable() {
		distName = r.opt.Distribution.String()
	}
	ctx, sweepSpan := tracing.StartSweepSpan(ctx, r.tracer, string(r.opt.Benchmark), distName, p)

	agg := metrics.NewAggregator(r.opt.StdDevMode)
	var report *metrics.Report
	if rank == 0 {
		report = &metrics.Report{
			Benchmark:    string(r.opt.Benchmark),
			Distribution: distName,
			Processes:    p,
			Accelerator:  r.opt.Accel.String(),
			StdDevMode:   agg.Mode(),
			StartedAt:    started,
		}
	}

	sweep := NewSweep(r.opt)
	for run, ok := sweep.Next(); ok; run, ok = sweep.Next() {
		stats, err := r.runSize(ctx, h, agg, run)
		if err != nil {
			tracing.EndSpan(sweepSpan, err)
			return nil, err
		}
		if rank != 0 {
			continue
		}
		report.Sizes = append(report.Sizes, stats)
		for _, o := range r.observers {
			o.OnSize(stats)
		}
	}
	tracing.EndSpan(sweepSpan, nil)

	if rank != 0 {
		return nil, nil
	}
	report.SetDuration(time.Since(started))
	report.Traffic = r.c.Stats()
	return report, nil
}

func (r *Runner) runSize(ctx context.Context, h *harness, agg *metrics.Aggregator, run Run) (metrics.SizeStats, error) {
	ctx, span := tracing.StartSizeSpan(ctx, r.tracer, run.Size, run.Iterations, run.Skip)

	sample, err := h.measure(ctx, run)
	if err != nil {
		tracing.EndSpan(span, err)
		return metrics.SizeStats{}, err
	}
	if err := r.c.Barrier(ctx); err != nil {
		tracing.EndSpan(span, err)
		return metrics.SizeStats{}, fmt.Errorf("size %d: %w", run.Size, err)
	}
	lat, err := agg.Reduce(ctx, r.c, sample.Timer, run.Iterations)
	if err != nil {
		tracing.EndSpan(span, err)
		return metrics.SizeStats{}, fmt.Errorf("size %d: %w", run.Size, err)
	}

	var stats metrics.SizeStats
	if r.c.Rank() == 0 {
		stats = agg.Summarize(run.Size, run.Iterations, run.Skip, lat, sample.Means)
		stats.ExactBytes = sample.ExactBytes
		stats.ClosedFormBytes = sample.ClosedFormBytes
		r.logger.Debug("size complete", "size", run.Size, "iterations", run.Iterations,
			"avg_us", stats.AvgLatencyUs, "min_us", stats.MinLatencyUs, "max_us", stats.MaxLatencyUs)
		if sample.ExactBytes != sample.ClosedFormBytes && r.opt.Benchmark.Variable() {
			r.logger.Debug("closed-form total differs from summed counts",
				"size", run.Size, "exact", sample.ExactBytes, "closed_form", sample.ClosedFormBytes)
		}
	}

	if err := r.c.Barrier(ctx); err != nil {
		tracing.EndSpan(span, err)
		return metrics.SizeStats{}, fmt.Errorf("size %d: %w", run.Size, err)
	}
	tracing.EndSpan(span, nil, tracing.LatencyAttributes(stats.AvgLatencyUs, stats.MinLatencyUs, stats.MaxLatencyUs)...)
	return stats, nil
}
