package runner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sizesOf(runs []Run) []int {
	sizes := make([]int, len(runs))
	for i, r := range runs {
		sizes[i] = r.Size
	}
	return sizes
}

func TestSweepDoublesToMax(t *testing.T) {
	opt := DefaultOptions()
	opt.MinSize, opt.MaxSize = 1, 1024

	runs := Runs(opt)
	require.Equal(t, []int{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024}, sizesOf(runs))
	for _, r := range runs {
		require.False(t, r.Large, "size %d", r.Size)
		require.Equal(t, DefaultIterations, r.Iterations)
		require.Equal(t, DefaultSkip, r.Skip)
	}
}

func TestSweepZeroIsFollowedByOne(t *testing.T) {
	opt := DefaultOptions()
	opt.MinSize, opt.MaxSize = 0, 4
	require.Equal(t, []int{0, 1, 2, 4}, sizesOf(Runs(opt)))

	opt.MaxSize = 0
	require.Equal(t, []int{0}, sizesOf(Runs(opt)))
}

func TestSweepNonPowerOfTwoBounds(t *testing.T) {
	opt := DefaultOptions()
	opt.MinSize, opt.MaxSize = 3, 50
	require.Equal(t, []int{3, 6, 12, 24, 48}, sizesOf(Runs(opt)))

	opt.MinSize, opt.MaxSize = 7, 7
	require.Equal(t, []int{7}, sizesOf(Runs(opt)))
}

func TestSweepLargeSwitchIsOneWay(t *testing.T) {
	opt := DefaultOptions()
	opt.MinSize, opt.MaxSize = 4096, 65536
	opt.LargeThreshold = 8192

	runs := Runs(opt)
	require.Equal(t, []int{4096, 8192, 16384, 32768, 65536}, sizesOf(runs))

	// The threshold itself is still small.
	require.False(t, runs[1].Large)
	require.Equal(t, DefaultIterations, runs[1].Iterations)
	for _, r := range runs[2:] {
		require.True(t, r.Large, "size %d", r.Size)
		require.Equal(t, DefaultIterationsLarge, r.Iterations)
		require.Equal(t, DefaultSkipLarge, r.Skip)
	}
}

func TestSweepStopsBeforeOverflow(t *testing.T) {
	opt := DefaultOptions()
	opt.MinSize, opt.MaxSize = 1<<60, math.MaxInt
	runs := Runs(opt)
	require.Equal(t, []int{1 << 60, 1 << 61, 1 << 62}, sizesOf(runs))
}

func TestSweepIsExhausted(t *testing.T) {
	opt := DefaultOptions()
	opt.MinSize, opt.MaxSize = 2, 2
	s := NewSweep(opt)
	_, ok := s.Next()
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		_, ok = s.Next()
		require.False(t, ok)
	}
}
