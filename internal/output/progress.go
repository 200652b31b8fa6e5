package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/collbench/internal/metrics"
)

// ProgressReporter displays sweep progress while machine-readable output
// keeps stdout quiet.
type ProgressReporter struct {
	total    int
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time

	mu        sync.Mutex
	completed int
	last      metrics.SizeStats
}

// NewProgressReporter creates a progress reporter for a sweep of total sizes
// that updates at the given interval.
func NewProgressReporter(total int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		total:    total,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// OnSize records a completed size.
func (p *ProgressReporter) OnSize(s metrics.SizeStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	p.last = s
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

// Line renders the current progress.
func (p *ProgressReporter) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("\rSizes: %d/%d | Elapsed: %s", p.completed, p.total, time.Since(p.start).Truncate(time.Second))
	if p.completed > 0 {
		line += fmt.Sprintf(" | Last: %d bytes avg %.2fus", p.last.Size, p.last.AvgLatencyUs)
	}
	return line
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.Line())
		case <-p.done:
			return
		}
	}
}
