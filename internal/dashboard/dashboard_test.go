package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/collbench/internal/clientmetrics"
	"github.com/torosent/collbench/internal/metrics"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n        int
		expected string
	}{
		{0, "0"},
		{1, "1"},
		{1000, "1000"},
		{1024, "1K"},
		{1536, "1536"},
		{65536, "64K"},
		{1 << 20, "1M"},
		{1 << 30, "1G"},
	}

	for _, tt := range tests {
		if got := formatSize(tt.n); got != tt.expected {
			t.Errorf("formatSize(%d) = %q, expected %q", tt.n, got, tt.expected)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.expected {
			t.Errorf("formatBytes(%d) = %q, expected %q", tt.n, got, tt.expected)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		done, total, expected int
	}{
		{0, 0, 0},
		{0, 21, 0},
		{7, 21, 33},
		{21, 21, 100},
		{30, 21, 100},
	}

	for _, tt := range tests {
		if got := progressPercent(tt.done, tt.total); got != tt.expected {
			t.Errorf("progressPercent(%d, %d) = %d, expected %d", tt.done, tt.total, got, tt.expected)
		}
	}
}

func TestPlotSeries(t *testing.T) {
	if plotSeries(nil) != nil {
		t.Errorf("expected nil series without data")
	}
	if plotSeries([]metrics.SizeStats{{Size: 1}}) != nil {
		t.Errorf("expected nil series for a single point")
	}

	series := plotSeries([]metrics.SizeStats{
		{Size: 1, AvgLatencyUs: 2, MinLatencyUs: 1, MaxLatencyUs: 3},
		{Size: 2, AvgLatencyUs: 4, MinLatencyUs: 3, MaxLatencyUs: 5},
	})
	if len(series) != 3 {
		t.Fatalf("expected avg, min and max series, got %d", len(series))
	}
	if series[0][1] != 4 || series[1][0] != 1 || series[2][1] != 5 {
		t.Errorf("unexpected series %v", series)
	}
}

func TestTableRows(t *testing.T) {
	rows := tableRows(nil)
	if len(rows) != 2 || rows[1][0] != "-" {
		t.Errorf("expected header and placeholder row, got %v", rows)
	}

	var sizes []metrics.SizeStats
	for i := 0; i < maxTableRows+3; i++ {
		sizes = append(sizes, metrics.SizeStats{Size: 1 << i, AvgLatencyUs: float64(i), Iterations: 1000})
	}
	rows = tableRows(sizes)
	if len(rows) != maxTableRows+1 {
		t.Fatalf("expected %d rows, got %d", maxTableRows+1, len(rows))
	}
	if rows[1][0] != "8" {
		t.Errorf("expected the oldest sizes to scroll off, first row = %v", rows[1])
	}
	last := rows[len(rows)-1]
	if last[0] != "16K" || last[1] != "14.00" || last[5] != "1000" {
		t.Errorf("unexpected last row %v", last)
	}
}

func TestSummaryText(t *testing.T) {
	text := summaryText(SweepConfig{
		Benchmark:    "allgatherv",
		Distribution: "spike",
		Processes:    8,
		Transport:    "grpc",
		MinSize:      1,
		MaxSize:      1 << 20,
		StdDevMode:   "correct",
		ConfigFile:   "bench.yaml",
	}, 2*time.Second)

	for _, want := range []string{
		"Benchmark: allgatherv",
		"Distribution: spike",
		"Ranks: 8",
		"Transport: grpc",
		"Sizes: 1..1048576",
		"Std dev: correct",
		"Config: bench.yaml",
		"Elapsed: 2s",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("summary %q missing %q", text, want)
		}
	}
}

func TestTrafficText(t *testing.T) {
	text := trafficText(clientmetrics.Snapshot{
		Collectives:   12,
		BytesSent:     2048,
		BytesReceived: 4096,
		Errors:        1,
		ByOp:          map[string]int64{"barrier": 4, "allgather": 8},
	}, 2*time.Second)

	for _, want := range []string{
		"Collectives:  12",
		"Sent:         2.0 KiB",
		"Received:     4.0 KiB",
		"Recv rate:    2.0 KiB/s",
		"Errors:       1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("traffic %q missing %q", text, want)
		}
	}
	if strings.Index(text, "allgather") > strings.Index(text, "barrier") {
		t.Errorf("expected ops sorted by name, got %q", text)
	}
}

func TestDashboardUpdate(t *testing.T) {
	snap := clientmetrics.Snapshot{Collectives: 3}
	d := newDashboard(SweepConfig{Benchmark: "allgather", Processes: 2, Sizes: 4}, func() clientmetrics.Snapshot {
		return snap
	}, nil)

	d.OnSize(metrics.SizeStats{Size: 1, AvgLatencyUs: 1.5, Iterations: 10})
	d.OnSize(metrics.SizeStats{Size: 2, AvgLatencyUs: 2.5, Iterations: 10})
	d.update()

	if d.progress.Percent != 50 {
		t.Errorf("progress = %d, expected 50", d.progress.Percent)
	}
	if d.progress.Label != "2/4 sizes" {
		t.Errorf("progress label = %q", d.progress.Label)
	}
	if len(d.latencyPlot.Data) != 3 || len(d.latencyPlot.Data[0]) != 2 {
		t.Errorf("plot data = %v", d.latencyPlot.Data)
	}
	if !strings.Contains(d.latencyPlot.Title, "Last: 2 bytes avg 2.50us") {
		t.Errorf("plot title = %q", d.latencyPlot.Title)
	}
	if len(d.sizeTable.Rows) != 3 {
		t.Errorf("table rows = %v", d.sizeTable.Rows)
	}
	if !strings.Contains(d.trafficPara.Text, "Collectives:  3") {
		t.Errorf("traffic = %q", d.trafficPara.Text)
	}
}
