package distribution

import "fmt"

// Table holds the per-rank receive counts and displacements of a
// variable-size exchange. It is allocated once for a group and refilled for
// every size of a sweep.
type Table struct {
	Counts []int
	Displs []int
	exact  int
}

// NewTable allocates a table for p ranks.
func NewTable(p int) *Table {
	return &Table{
		Counts: make([]int, p),
		Displs: make([]int, p),
	}
}

// Fill recomputes counts and displacements for the nominal size. Displacement
// i is the prefix sum of counts[0:i]. It returns the exact total.
func (t *Table) Fill(k Kind, size int) int {
	p := len(t.Counts)
	disp := 0
	for rank := 0; rank < p; rank++ {
		n := k.PerRank(p, size, rank)
		t.Counts[rank] = n
		t.Displs[rank] = disp
		disp += n
	}
	t.exact = disp
	return disp
}

// Exact returns the sum of the counts from the last Fill.
func (t *Table) Exact() int {
	return t.exact
}

// Validate checks the displacement invariant and that the exchange fits in a
// receive buffer of capacity bytes.
func (t *Table) Validate(capacity int) error {
	if len(t.Counts) != len(t.Displs) {
		return fmt.Errorf("counts and displacements differ in length: %d != %d", len(t.Counts), len(t.Displs))
	}
	disp := 0
	for i, n := range t.Counts {
		if n < 0 {
			return fmt.Errorf("rank %d: negative count %d", i, n)
		}
		if t.Displs[i] != disp {
			return fmt.Errorf("rank %d: displacement %d, want prefix sum %d", i, t.Displs[i], disp)
		}
		disp += n
	}
	if disp > capacity {
		return fmt.Errorf("exchange needs %d bytes, receive buffer holds %d", disp, capacity)
	}
	return nil
}
