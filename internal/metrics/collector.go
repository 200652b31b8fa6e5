package metrics

import (
	"math"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Track means from 1ns up to one hour with 3 significant figures.
const (
	lowestTrackableNs  = 1
	highestTrackableNs = 3_600_000_000_000
	significantFigures = 3
)

// Collector records per-iteration mean latencies (microseconds) of one size
// in a thread-safe manner.
type Collector struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
	min  float64
	max  float64
	sum  float64
}

// Percentiles is the latency distribution of one size in microseconds.
type Percentiles struct {
	Count int64   `json:"count" yaml:"count"`
	Min   float64 `json:"min_us" yaml:"min_us"`
	Max   float64 `json:"max_us" yaml:"max_us"`
	Mean  float64 `json:"mean_us" yaml:"mean_us"`
	P50   float64 `json:"p50_us" yaml:"p50_us"`
	P90   float64 `json:"p90_us" yaml:"p90_us"`
	P99   float64 `json:"p99_us" yaml:"p99_us"`
}

func NewCollector() *Collector {
	return &Collector{
		hist: hdrhistogram.New(lowestTrackableNs, highestTrackableNs, significantFigures),
	}
}

// Record adds one mean latency in microseconds.
func (c *Collector) Record(us float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns := int64(math.Round(us * 1e3))
	if ns < c.hist.LowestTrackableValue() {
		ns = c.hist.LowestTrackableValue()
	}
	if ns > c.hist.HighestTrackableValue() {
		ns = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(ns)

	if c.hist.TotalCount() == 1 || us < c.min {
		c.min = us
	}
	if c.hist.TotalCount() == 1 || us > c.max {
		c.max = us
	}
	c.sum += us
}

// RecordAll adds every value of means.
func (c *Collector) RecordAll(means []float64) {
	for _, m := range means {
		c.Record(m)
	}
}

// Reset discards every recorded value.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Reset()
	c.min, c.max, c.sum = 0, 0, 0
}

// Percentiles computes the current distribution. Min, Max and Mean are exact;
// the quantiles carry the histogram's resolution.
func (c *Collector) Percentiles() Percentiles {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.hist.TotalCount()
	if n == 0 {
		return Percentiles{}
	}
	return Percentiles{
		Count: n,
		Min:   c.min,
		Max:   c.max,
		Mean:  c.sum / float64(n),
		P50:   float64(c.hist.ValueAtQuantile(50)) / 1e3,
		P90:   float64(c.hist.ValueAtQuantile(90)) / 1e3,
		P99:   float64(c.hist.ValueAtQuantile(99)) / 1e3,
	}
}
