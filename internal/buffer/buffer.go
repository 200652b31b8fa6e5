// Package buffer allocates the message buffers a benchmark rank exchanges.
//
// Host memory is the only backing store linked into collbench. Accelerator
// modes are recognised so that configurations written for device-aware
// builds are rejected with a clear error instead of silently measuring host
// memory.
package buffer

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrAllocation reports a buffer that cannot be allocated.
	ErrAllocation = errors.New("buffer allocation failed")
	// ErrAcceleratorUnavailable reports an accelerator mode without a linked
	// device runtime.
	ErrAcceleratorUnavailable = errors.New("accelerator runtime unavailable")
)

// MaxAlloc is the largest single buffer, matching the int32 byte counts of
// the collective exchange.
const MaxAlloc = math.MaxInt32

// Accel selects where buffers live.
type Accel int

const (
	AccelNone Accel = iota
	AccelCUDA
	AccelOpenACC
	AccelROCm
)

var accelNames = [...]string{
	AccelNone:    "none",
	AccelCUDA:    "cuda",
	AccelOpenACC: "openacc",
	AccelROCm:    "rocm",
}

func (a Accel) String() string {
	if a < 0 || int(a) >= len(accelNames) {
		return fmt.Sprintf("Accel(%d)", int(a))
	}
	return accelNames[a]
}

// ParseAccel accepts a mode name or its single-letter OSU selector
// (N, C, O, R). An empty string selects AccelNone.
func ParseAccel(s string) (Accel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n", "host", "h":
		return AccelNone, nil
	case "cuda", "c", "d":
		return AccelCUDA, nil
	case "openacc", "o":
		return AccelOpenACC, nil
	case "rocm", "r":
		return AccelROCm, nil
	default:
		return AccelNone, fmt.Errorf("invalid accelerator %q (want none, cuda, openacc or rocm)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Accel) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Accel) UnmarshalText(text []byte) error {
	v, err := ParseAccel(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// InitAccel prepares the device runtime for mode.
func InitAccel(mode Accel) error {
	if mode == AccelNone {
		return nil
	}
	return fmt.Errorf("initialize %s: %w", mode, ErrAcceleratorUnavailable)
}

// CleanupAccel releases the device runtime for mode.
func CleanupAccel(mode Accel) error {
	if mode == AccelNone {
		return nil
	}
	return fmt.Errorf("clean up %s: %w", mode, ErrAcceleratorUnavailable)
}

// Allocate returns a zeroed buffer of n bytes in mode's memory.
func Allocate(n int, mode Accel) (buf []byte, err error) {
	if mode != AccelNone {
		return nil, fmt.Errorf("allocate %d bytes on %s: %w", n, mode, ErrAcceleratorUnavailable)
	}
	if n < 0 || n > MaxAlloc {
		return nil, fmt.Errorf("%w: %d bytes outside [0, %d]", ErrAllocation, n, MaxAlloc)
	}
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("%w: %d bytes: %v", ErrAllocation, n, r)
		}
	}()
	return make([]byte, n), nil
}

// Free releases a buffer returned by Allocate.
func Free(buf []byte, mode Accel) error {
	if mode != AccelNone && buf != nil {
		return fmt.Errorf("free %d bytes on %s: %w", len(buf), mode, ErrAcceleratorUnavailable)
	}
	return nil
}

// Fill sets every byte of buf to value.
func Fill(buf []byte, value byte) {
	for i := range buf {
		buf[i] = value
	}
}
