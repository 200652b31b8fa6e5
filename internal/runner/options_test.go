package runner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torosent/collbench/internal/metrics"
)

func TestParseBenchmark(t *testing.T) {
	tests := []struct {
		in      string
		want    Benchmark
		wantErr bool
	}{
		{"", BenchmarkAllgather, false},
		{"allgather", BenchmarkAllgather, false},
		{"OSU_Allgatherv", BenchmarkAllgatherv, false},
		{" allgatherv ", BenchmarkAllgatherv, false},
		{"alltoall", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBenchmark(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
	require.True(t, BenchmarkAllgatherv.Variable())
	require.False(t, BenchmarkAllgather.Variable())
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())

	tests := []struct {
		name   string
		mutate func(*Options)
		want   string
	}{
		{"benchmark", func(o *Options) { o.Benchmark = "bcast" }, "unknown benchmark"},
		{"negative min", func(o *Options) { o.MinSize = -1 }, "min size"},
		{"max below min", func(o *Options) { o.MinSize, o.MaxSize = 8, 4 }, "below min size"},
		{"iterations", func(o *Options) { o.IterationsLarge = 0 }, "iterations must be positive"},
		{"skip", func(o *Options) { o.Skip = -2 }, "warm-up"},
		{"threshold", func(o *Options) { o.LargeThreshold = -1 }, "threshold"},
		{"distribution", func(o *Options) { o.Distribution = 99 }, "unknown distribution"},
		{"std dev", func(o *Options) { o.StdDevMode = "sample" }, "std dev mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := DefaultOptions()
			tt.mutate(&opt)
			require.ErrorContains(t, opt.Validate(), tt.want)
		})
	}
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	var opt Options
	opt.normalize()
	require.Equal(t, BenchmarkAllgather, opt.Benchmark)
	require.Equal(t, metrics.StdDevCorrect, opt.StdDevMode)
	require.Equal(t, DefaultMemLimit, opt.MemLimit)
}

func TestClampToMemory(t *testing.T) {
	opt := DefaultOptions()
	opt.MaxSize = 1 << 20
	opt.MemLimit = 1 << 20

	require.True(t, opt.clampToMemory(4))
	require.Equal(t, 1<<18, opt.MaxSize)

	require.False(t, opt.clampToMemory(4))
	require.Equal(t, 1<<18, opt.MaxSize)

	opt = DefaultOptions()
	require.False(t, opt.clampToMemory(2))
	require.Equal(t, DefaultMaxSize, opt.MaxSize)
}
