package runner

// Run is one Measurement Run of the sweep.
type Run struct {
	Size       int
	Iterations int
	Skip       int
	// Large is set once Size exceeds the large message threshold.
	Large bool
}

// Sweep walks message sizes from MinSize to MaxSize inclusive, doubling each
// step. A size of 0 is followed by 1. Once a size exceeds LargeThreshold the
// large iteration counts stay active for the rest of the sweep.
type Sweep struct {
	opt     Options
	size    int
	started bool
	large   bool
	done    bool
}

func NewSweep(opt Options) *Sweep {
	return &Sweep{opt: opt}
}

// Next returns the next run, or false once the sweep is exhausted.
func (s *Sweep) Next() (Run, bool) {
	if s.done {
		return Run{}, false
	}
	switch {
	case !s.started:
		s.started = true
		s.size = s.opt.MinSize
	case s.size == 0:
		s.size = 1
	case s.size > s.opt.MaxSize/2:
		// Doubling would pass MaxSize (or overflow).
		s.done = true
		return Run{}, false
	default:
		s.size *= 2
	}
	if s.size > s.opt.MaxSize || s.size < 0 {
		s.done = true
		return Run{}, false
	}

	if s.size > s.opt.LargeThreshold {
		s.large = true
	}
	run := Run{Size: s.size, Iterations: s.opt.Iterations, Skip: s.opt.Skip, Large: s.large}
	if s.large {
		run.Iterations = s.opt.IterationsLarge
		run.Skip = s.opt.SkipLarge
	}
	return run, true
}

// Runs returns every run of the sweep described by opt.
func Runs(opt Options) []Run {
	var runs []Run
	s := NewSweep(opt)
	for run, ok := s.Next(); ok; run, ok = s.Next() {
		runs = append(runs, run)
	}
	return runs
}
