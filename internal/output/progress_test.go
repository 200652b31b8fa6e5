package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/collbench/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressReporterLine(t *testing.T) {
	p := NewProgressReporter(21, time.Second, nil)

	line := p.Line()
	if !strings.HasPrefix(line, "\rSizes: 0/21 | Elapsed: ") {
		t.Errorf("unexpected initial line %q", line)
	}
	if strings.Contains(line, "Last:") {
		t.Errorf("expected no last size before any completion, got %q", line)
	}

	p.OnSize(metrics.SizeStats{Size: 1, AvgLatencyUs: 1.5})
	p.OnSize(metrics.SizeStats{Size: 2, AvgLatencyUs: 2.25})

	line = p.Line()
	if !strings.Contains(line, "Sizes: 2/21") {
		t.Errorf("expected 2 completed sizes, got %q", line)
	}
	if !strings.Contains(line, "Last: 2 bytes avg 2.25us") {
		t.Errorf("expected last size, got %q", line)
	}
}

func TestProgressReporterStartStop(t *testing.T) {
	var buf syncBuffer
	p := NewProgressReporter(4, 5*time.Millisecond, &buf)
	p.OnSize(metrics.SizeStats{Size: 8, AvgLatencyUs: 3})

	p.Start()
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "Sizes: 1/4") {
		if time.Now().After(deadline) {
			t.Fatalf("no progress written, got %q", buf.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Stop()
	p.Stop()

	written := buf.String()
	time.Sleep(20 * time.Millisecond)
	if buf.String() != written {
		t.Errorf("progress written after Stop")
	}
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	p := NewProgressReporter(1, time.Millisecond, nil)
	p.Stop()
}
