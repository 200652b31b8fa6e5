package history

import "github.com/torosent/collbench/internal/metrics"

// Regression compares one message size between a baseline and the current
// run. Ratio is current over baseline average latency.
type Regression struct {
	Size        int     `json:"size" yaml:"size"`
	BaselineAvg float64 `json:"baseline_avg_us" yaml:"baseline_avg_us"`
	CurrentAvg  float64 `json:"current_avg_us" yaml:"current_avg_us"`
	Ratio       float64 `json:"ratio" yaml:"ratio"`
}

// Compare pairs the sizes present in both reports, in current's order.
// Sizes with a zero baseline average are skipped.
func Compare(baseline, current *metrics.Report) []Regression {
	if baseline == nil || current == nil {
		return nil
	}
	var out []Regression
	for _, s := range current.Sizes {
		b, ok := baseline.Size(s.Size)
		if !ok || b.AvgLatencyUs == 0 {
			continue
		}
		out = append(out, Regression{
			Size:        s.Size,
			BaselineAvg: b.AvgLatencyUs,
			CurrentAvg:  s.AvgLatencyUs,
			Ratio:       s.AvgLatencyUs / b.AvgLatencyUs,
		})
	}
	return out
}

// Worst returns the regression with the highest ratio.
func Worst(regs []Regression) (Regression, bool) {
	if len(regs) == 0 {
		return Regression{}, false
	}
	worst := regs[0]
	for _, r := range regs[1:] {
		if r.Ratio > worst.Ratio {
			worst = r
		}
	}
	return worst, true
}
