package metrics

import (
	"time"

	"github.com/torosent/collbench/internal/clientmetrics"
)

// SizeStats holds the results of one message size. Latencies are in
// microseconds.
type SizeStats struct {
	Size         int     `json:"size" yaml:"size"`
	Iterations   int     `json:"iterations" yaml:"iterations"`
	Skip         int     `json:"skip" yaml:"skip"`
	AvgLatencyUs float64 `json:"avg_latency_us" yaml:"avg_latency_us"`
	MinLatencyUs float64 `json:"min_latency_us" yaml:"min_latency_us"`
	MaxLatencyUs float64 `json:"max_latency_us" yaml:"max_latency_us"`
	StdDevUs     float64 `json:"std_dev_us" yaml:"std_dev_us"`
	P50LatencyUs float64 `json:"p50_latency_us" yaml:"p50_latency_us"`
	P90LatencyUs float64 `json:"p90_latency_us" yaml:"p90_latency_us"`
	P99LatencyUs float64 `json:"p99_latency_us" yaml:"p99_latency_us"`

	// Receive-side byte totals of a variable-size exchange: the literal sum of
	// the per-rank counts and the distribution's closed-form total.
	ExactBytes      int `json:"exact_bytes,omitempty" yaml:"exact_bytes,omitempty"`
	ClosedFormBytes int `json:"closed_form_bytes,omitempty" yaml:"closed_form_bytes,omitempty"`
}

// Report is the outcome of a whole sweep as seen by rank 0.
type Report struct {
	RunID        string        `json:"run_id" yaml:"run_id"`
	Benchmark    string        `json:"benchmark" yaml:"benchmark"`
	Distribution string        `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	Processes    int           `json:"processes" yaml:"processes"`
	Transport    string        `json:"transport,omitempty" yaml:"transport,omitempty"`
	Accelerator  string        `json:"accelerator" yaml:"accelerator"`
	StdDevMode   StdDevMode    `json:"std_dev_mode" yaml:"std_dev_mode"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	Duration     time.Duration `json:"-" yaml:"-"`
	DurationMs   float64       `json:"duration_ms" yaml:"duration_ms"`
	Sizes        []SizeStats   `json:"sizes" yaml:"sizes"`

	// Traffic is rank 0's collective counters for the whole run.
	Traffic clientmetrics.Snapshot `json:"traffic" yaml:"traffic"`
}

// SetDuration records the wall-clock length of the sweep.
func (r *Report) SetDuration(d time.Duration) {
	r.Duration = d
	r.DurationMs = float64(d) / float64(time.Millisecond)
}

// Size returns the statistics of message size n.
func (r *Report) Size(n int) (SizeStats, bool) {
	for _, s := range r.Sizes {
		if s.Size == n {
			return s, true
		}
	}
	return SizeStats{}, false
}
