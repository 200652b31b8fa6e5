package metrics_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/torosent/collbench/internal/comm"
	"github.com/torosent/collbench/internal/metrics"
)

// groupReducer reduces over fixed per-rank values as if every rank had
// called Reduce with them.
type groupReducer struct {
	values []float64
	calls  []comm.Op
	err    error
}

func (g *groupReducer) Size() int { return len(g.values) }

func (g *groupReducer) Reduce(_ context.Context, _ float64, op comm.Op, root int) (float64, error) {
	g.calls = append(g.calls, op)
	if g.err != nil {
		return 0, g.err
	}
	if root != 0 {
		return 0, errors.New("unexpected root")
	}
	acc := g.values[0]
	for _, v := range g.values[1:] {
		switch op {
		case comm.OpSum:
			acc += v
		case comm.OpMin:
			acc = math.Min(acc, v)
		case comm.OpMax:
			acc = math.Max(acc, v)
		}
	}
	return acc, nil
}

func TestAggregatorReduce(t *testing.T) {
	g := &groupReducer{values: []float64{10, 30, 20}}
	agg := metrics.NewAggregator(metrics.StdDevCorrect)

	lat, err := agg.Reduce(context.Background(), g, 0.001, 100)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if lat.Min != 10 || lat.Max != 30 || lat.Avg != 20 {
		t.Fatalf("lat = %+v, want min 10 max 30 avg 20", lat)
	}
	want := []comm.Op{comm.OpMin, comm.OpMax, comm.OpSum}
	if len(g.calls) != len(want) {
		t.Fatalf("reductions = %v, want %v", g.calls, want)
	}
	for i := range want {
		if g.calls[i] != want[i] {
			t.Fatalf("reductions = %v, want %v", g.calls, want)
		}
	}
}

func TestAggregatorAverageIsBetweenMinAndMax(t *testing.T) {
	cases := [][]float64{
		{1, 1},
		{0.5, 9, 3.25, 7},
		{100, 1e-3, 42, 42, 42},
	}
	for _, values := range cases {
		lat, err := metrics.NewAggregator("").Reduce(context.Background(), &groupReducer{values: values}, 1, 1)
		if err != nil {
			t.Fatalf("Reduce: %v", err)
		}
		if lat.Avg < lat.Min || lat.Avg > lat.Max {
			t.Fatalf("avg %v outside [%v, %v] for %v", lat.Avg, lat.Min, lat.Max, values)
		}
	}
}

func TestAggregatorReduceErrors(t *testing.T) {
	agg := metrics.NewAggregator(metrics.StdDevCorrect)
	if _, err := agg.Reduce(context.Background(), &groupReducer{values: []float64{1, 2}}, 1, 0); err == nil {
		t.Fatal("expected error for zero iterations")
	}
	boom := errors.New("group aborted")
	_, err := agg.Reduce(context.Background(), &groupReducer{values: []float64{1, 2}, err: boom}, 1, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestSummarizeCorrectMode(t *testing.T) {
	agg := metrics.NewAggregator(metrics.StdDevCorrect)
	means := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	lat := metrics.Latency{Avg: 5, Min: 4, Max: 6}

	s := agg.Summarize(64, 8, 2, lat, means)
	if s.Size != 64 || s.Iterations != 8 || s.Skip != 2 {
		t.Fatalf("run fields = %+v", s)
	}
	if s.AvgLatencyUs != 5 || s.MinLatencyUs != 4 || s.MaxLatencyUs != 6 {
		t.Fatalf("latency fields = %+v", s)
	}
	if math.Abs(s.StdDevUs-2) > 1e-12 {
		t.Fatalf("StdDevUs = %v, want 2", s.StdDevUs)
	}
	if s.P50LatencyUs < 3.9 || s.P50LatencyUs > 5.1 {
		t.Fatalf("P50LatencyUs = %v", s.P50LatencyUs)
	}

	// Correct mode is independent of previous sizes.
	again := agg.Summarize(128, 8, 2, lat, means)
	if again.StdDevUs != s.StdDevUs {
		t.Fatalf("StdDevUs changed between sizes: %v then %v", s.StdDevUs, again.StdDevUs)
	}
}

func TestSummarizeLegacyModeCarriesAcrossSizes(t *testing.T) {
	agg := metrics.NewAggregator(metrics.StdDevLegacy)
	means := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	lat := metrics.Latency{Avg: 5, Min: 4, Max: 6}

	first := agg.Summarize(1, 8, 2, lat, means)
	if want := metrics.LegacyStdDev(means, 5, 0); first.StdDevUs != want {
		t.Fatalf("first StdDevUs = %v, want %v", first.StdDevUs, want)
	}
	second := agg.Summarize(2, 8, 2, lat, means)
	if want := metrics.LegacyStdDev(means, 5, first.StdDevUs); second.StdDevUs != want {
		t.Fatalf("second StdDevUs = %v, want %v", second.StdDevUs, want)
	}
	if agg.Mode() != metrics.StdDevLegacy {
		t.Fatalf("Mode = %q", agg.Mode())
	}
}
