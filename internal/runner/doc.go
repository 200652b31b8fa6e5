// Package runner is the benchmark engine of collbench: it sweeps message
// sizes and times collective exchanges on one rank of a group.
//
// # Basic Usage
//
// Every rank of the group builds a runner over its communicator and runs the
// same sweep:
//
//	opts := runner.DefaultOptions()
//	opts.Benchmark = runner.BenchmarkAllgatherv
//	opts.Distribution = distribution.Spike
//	r, err := runner.New(c, opts, logger, tracer)
//	if err != nil {
//		return err
//	}
//	report, err := r.Run(ctx)
//
// Only rank 0 receives a report; the other ranks get nil.
//
// # Sweep
//
// Sizes start at MinSize and double until they pass MaxSize. Sizes above
// LargeThreshold switch to IterationsLarge/SkipLarge and the switch never
// reverts. MaxSize is lowered to MemLimit/ranks when needed.
//
// # Timing
//
// For each size the ranks synchronize, build the count/displacement table
// (allgatherv only), synchronize again and run Skip warm-up plus Iterations
// measured exchanges. Each measured latency is summed to rank 0 to form the
// per-iteration cross-rank mean, and a barrier follows every iteration so no
// rank starts the next exchange early.
//
// # Failure
//
// There are no retries. Allocation failures and any collective error abort
// the whole group.
package runner
