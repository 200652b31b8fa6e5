package runner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/torosent/collbench/internal/buffer"
	"github.com/torosent/collbench/internal/distribution"
	"github.com/torosent/collbench/internal/metrics"
)

// Benchmark selects the collective being measured.
type Benchmark string

const (
	BenchmarkAllgather  Benchmark = "allgather"
	BenchmarkAllgatherv Benchmark = "allgatherv"
)

// ParseBenchmark parses a benchmark name. The "osu_" prefix is accepted.
func ParseBenchmark(s string) (Benchmark, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "osu_")
	switch Benchmark(name) {
	case "", BenchmarkAllgather:
		return BenchmarkAllgather, nil
	case BenchmarkAllgatherv:
		return BenchmarkAllgatherv, nil
	default:
		return "", fmt.Errorf("invalid benchmark %q (want %s or %s)", s, BenchmarkAllgather, BenchmarkAllgatherv)
	}
}

// Variable reports whether the benchmark exchanges per-rank counts.
func (b Benchmark) Variable() bool {
	return b == BenchmarkAllgatherv
}

// Defaults of the OSU collective latency tests.
const (
	DefaultMinSize         = 1
	DefaultMaxSize         = 1 << 20
	DefaultIterations      = 1000
	DefaultSkip            = 200
	DefaultIterationsLarge = 100
	DefaultSkipLarge       = 10
	DefaultLargeThreshold  = 8192
	DefaultMemLimit        = 256 << 20
)

// Options configure one sweep. They are copied into the Runner and never
// modified during a run.
type Options struct {
	Benchmark       Benchmark
	MinSize         int
	MaxSize         int
	Iterations      int
	Skip            int
	IterationsLarge int
	SkipLarge       int
	// Sizes strictly above LargeThreshold use IterationsLarge/SkipLarge.
	LargeThreshold int
	Distribution   distribution.Kind
	Accel          buffer.Accel
	// MemLimit bounds MaxSize*ranks.
	MemLimit   int
	StdDevMode metrics.StdDevMode
}

// DefaultOptions returns the allgather defaults.
func DefaultOptions() Options {
	return Options{
		Benchmark:       BenchmarkAllgather,
		MinSize:         DefaultMinSize,
		MaxSize:         DefaultMaxSize,
		Iterations:      DefaultIterations,
		Skip:            DefaultSkip,
		IterationsLarge: DefaultIterationsLarge,
		SkipLarge:       DefaultSkipLarge,
		LargeThreshold:  DefaultLargeThreshold,
		Distribution:    distribution.Regular,
		Accel:           buffer.AccelNone,
		MemLimit:        DefaultMemLimit,
		StdDevMode:      metrics.StdDevCorrect,
	}
}

func (o *Options) normalize() {
	if o.Benchmark == "" {
		o.Benchmark = BenchmarkAllgather
	}
	if o.StdDevMode == "" {
		o.StdDevMode = metrics.StdDevCorrect
	}
	if o.MemLimit <= 0 {
		o.MemLimit = DefaultMemLimit
	}
}

// Validate reports options no sweep can run with.
func (o Options) Validate() error {
	var errs []error
	if o.Benchmark != BenchmarkAllgather && o.Benchmark != BenchmarkAllgatherv {
		errs = append(errs, fmt.Errorf("unknown benchmark %q", o.Benchmark))
	}
	if o.MinSize < 0 {
		errs = append(errs, fmt.Errorf("min size must be >= 0, got %d", o.MinSize))
	}
	if o.MaxSize < o.MinSize {
		errs = append(errs, fmt.Errorf("max size %d is below min size %d", o.MaxSize, o.MinSize))
	}
	if o.Iterations <= 0 || o.IterationsLarge <= 0 {
		errs = append(errs, fmt.Errorf("iterations must be positive, got %d and %d (large)", o.Iterations, o.IterationsLarge))
	}
	if o.Skip < 0 || o.SkipLarge < 0 {
		errs = append(errs, fmt.Errorf("warm-up iterations must be >= 0, got %d and %d (large)", o.Skip, o.SkipLarge))
	}
	if o.LargeThreshold < 0 {
		errs = append(errs, fmt.Errorf("large message threshold must be >= 0, got %d", o.LargeThreshold))
	}
	if !o.Distribution.Valid() {
		errs = append(errs, fmt.Errorf("unknown distribution %d", int(o.Distribution)))
	}
	if o.StdDevMode != metrics.StdDevCorrect && o.StdDevMode != metrics.StdDevLegacy {
		errs = append(errs, fmt.Errorf("unknown std dev mode %q", o.StdDevMode))
	}
	return errors.Join(errs...)
}

// clampToMemory lowers MaxSize so that MaxSize*ranks stays within MemLimit.
// It reports whether MaxSize changed.
func (o *Options) clampToMemory(ranks int) bool {
	if ranks <= 0 || o.MaxSize <= o.MemLimit/ranks {
		return false
	}
	o.MaxSize = o.MemLimit / ranks
	return true
}

// maxIterations is the capacity the per-iteration means buffer needs for the
// whole sweep.
func (o Options) maxIterations() int {
	return max(o.Iterations, o.IterationsLarge)
}
