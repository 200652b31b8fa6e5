// Package distribution generates the per-rank contribution sizes used by the
// variable-size all-gather benchmark.
//
// Every shape is a pair of pure functions: [Kind.PerRank] gives the number of
// bytes a rank contributes for a nominal message size, and [Kind.Total] gives
// the closed-form byte count of the whole exchange. For several shapes the
// closed form differs from the literal sum of the per-rank sizes because of
// integer truncation; [Table] exposes the exact sum so callers can size
// receive buffers safely.
package distribution

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind selects a workload shape.
type Kind int

const (
	Regular Kind = iota
	Broadcast
	Spike
	HalfFull
	LinearlyDecreasing
	GeometricCurve
)

var kindNames = [...]string{
	Regular:            "regular",
	Broadcast:          "broadcast",
	Spike:              "spike",
	HalfFull:           "half_full",
	LinearlyDecreasing: "linearly_decreasing",
	GeometricCurve:     "geometric_curve",
}

// Kinds returns every supported shape in selector order.
func Kinds() []Kind {
	kinds := make([]Kind, len(kindNames))
	for i := range kindNames {
		kinds[i] = Kind(i)
	}
	return kinds
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the known shapes.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < len(kindNames)
}

// Parse resolves a shape from its name or its numeric selector.
// Dashes are accepted in place of underscores.
func Parse(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	if name == "" {
		return Regular, nil
	}
	if n, err := strconv.Atoi(name); err == nil {
		if k := Kind(n); k.Valid() {
			return k, nil
		}
		return 0, fmt.Errorf("distribution selector %d out of range [0,%d)", n, len(kindNames))
	}
	for i, candidate := range kindNames {
		if candidate == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown distribution %q (supported: %s)", s, strings.Join(kindNames[:], ", "))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid distribution %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PerRank returns the number of bytes rank contributes in a group of p ranks
// for the nominal message size. p must be at least 2.
func (k Kind) PerRank(p, size, rank int) int {
	switch k {
	case Regular:
		return size
	case Broadcast:
		if rank == 0 {
			return size
		}
		return 0
	case Spike:
		if rank == 0 {
			return p * size
		}
		return (p * size) / (p - 1)
	case HalfFull:
		if rank%2 == 0 {
			return 2 * size
		}
		return 0
	case LinearlyDecreasing:
		// Single precision on purpose: the published sizes were produced this way.
		return int(float32(2) * float32(size) * (float32(p-1-rank) / float32(p-1)))
	case GeometricCurve:
		return int(float64(p*size) / ((float64(rank) + 1.5) * math.Log(float64(p+1))))
	default:
		panic(fmt.Sprintf("distribution: unknown kind %d", int(k)))
	}
}

// Total returns the closed-form byte count of the whole exchange.
func (k Kind) Total(p, size int) int {
	switch k {
	case Regular:
		return p * size
	case Broadcast:
		return size
	case Spike:
		return 2 * p * size
	case HalfFull:
		return (p + p%2) * size
	case LinearlyDecreasing, GeometricCurve:
		return p * size
	default:
		panic(fmt.Sprintf("distribution: unknown kind %d", int(k)))
	}
}

// ExactTotal sums PerRank over all ranks.
func (k Kind) ExactTotal(p, size int) int {
	total := 0
	for rank := 0; rank < p; rank++ {
		total += k.PerRank(p, size, rank)
	}
	return total
}

// ReceiveCapacity returns the receive buffer size needed for every nominal
// size up to maxSize. It is the larger of the closed-form and the exact total
// at maxSize, so a truncating closed form can never under-allocate.
func (k Kind) ReceiveCapacity(p, maxSize int) int {
	closed := k.Total(p, maxSize)
	if exact := k.ExactTotal(p, maxSize); exact > closed {
		return exact
	}
	return closed
}

// SendCapacity returns the largest per-rank contribution of rank for any
// nominal size up to maxSize.
func (k Kind) SendCapacity(p, maxSize, rank int) int {
	return k.PerRank(p, maxSize, rank)
}
