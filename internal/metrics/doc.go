// Package metrics turns timing samples into the per-size statistics collbench
// reports.
//
// # Aggregation
//
// After the measured iterations of one message size every rank holds a running
// timer. [Aggregator.Reduce] converts it to a local average latency in
// microseconds and combines it across the group with three reductions to rank
// 0 (min, max and sum). Only rank 0 receives meaningful values.
//
// [Aggregator.Summarize] then adds the dispersion of the per-iteration
// cross-rank means:
//
//	agg := metrics.NewAggregator(metrics.StdDevCorrect)
//	lat, err := agg.Reduce(ctx, c, timer, iterations)
//	if c.Rank() == 0 {
//		stats := agg.Summarize(size, iterations, skip, lat, means)
//	}
//
// # Standard deviation
//
// [StdDevCorrect] is the population standard deviation of the means about the
// cross-rank average, computed once over the whole sample. [StdDevLegacy]
// reproduces the OSU micro-benchmark output, which divides and takes the
// square root after every accumulation step and never resets the accumulator
// between sizes.
//
// # Percentiles
//
// The [Collector] keeps an HDR histogram of the means so reports can include
// P50/P90/P99 next to the OSU columns.
//
// # Export
//
// [Exporter] publishes finished sizes as Prometheus gauges in a private
// registry, written to a node_exporter textfile with [Exporter.WriteTextfile].
package metrics
