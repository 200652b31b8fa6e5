package metrics

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// StdDevMode selects how the per-size standard deviation is computed.
type StdDevMode string

const (
	// StdDevCorrect is the population standard deviation about the cross-rank
	// average.
	StdDevCorrect StdDevMode = "correct"
	// StdDevLegacy reproduces the OSU micro-benchmark output.
	StdDevLegacy StdDevMode = "legacy"
)

// ParseStdDevMode parses a mode name. An empty string selects StdDevCorrect.
func ParseStdDevMode(s string) (StdDevMode, error) {
	switch StdDevMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", StdDevCorrect:
		return StdDevCorrect, nil
	case StdDevLegacy:
		return StdDevLegacy, nil
	default:
		return "", fmt.Errorf("invalid std dev mode %q (want %s or %s)", s, StdDevCorrect, StdDevLegacy)
	}
}

// StdDev returns sqrt(Σ(m-center)²/len(means)). It returns 0 for no samples.
func StdDev(means []float64, center float64) float64 {
	if len(means) == 0 {
		return 0
	}
	return math.Sqrt(stat.MomentAbout(2, means, center, nil))
}

// LegacyStdDev folds the means the way the OSU benchmarks do: starting from
// carry, every step adds one squared deviation, divides by len(means) and
// takes the square root.
func LegacyStdDev(means []float64, center, carry float64) float64 {
	acc := carry
	n := float64(len(means))
	for _, m := range means {
		d := m - center
		acc += d * d
		acc /= n
		acc = math.Sqrt(acc)
	}
	return acc
}
