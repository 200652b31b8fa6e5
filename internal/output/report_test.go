package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/torosent/collbench/internal/history"
	"github.com/torosent/collbench/internal/metrics"
	"github.com/torosent/collbench/internal/threshold"
)

func sampleReport() *metrics.Report {
	return &metrics.Report{
		RunID:      "01J0000000000000000000TEST",
		Benchmark:  "allgather",
		Processes:  4,
		Transport:  "local",
		StdDevMode: metrics.StdDevCorrect,
		Sizes: []metrics.SizeStats{
			{Size: 1, Iterations: 1000, Skip: 200, AvgLatencyUs: 1.5, MinLatencyUs: 1.25, MaxLatencyUs: 2, StdDevUs: 0.1},
			{Size: 2, Iterations: 1000, Skip: 200, AvgLatencyUs: 1.75, MinLatencyUs: 1.5, MaxLatencyUs: 2.25, StdDevUs: 0.12},
			{Size: 16384, Iterations: 100, Skip: 10, AvgLatencyUs: 123.456, MinLatencyUs: 100, MaxLatencyUs: 150.005, StdDevUs: 7.5},
		},
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		benchmark string
		accel     string
		want      string
	}{
		{"allgather", "", "# OSU MPI Allgather Latency Test"},
		{"allgather", "none", "# OSU MPI Allgather Latency Test"},
		{"allgatherv", "", "# OSU MPI Allgatherv Latency Test"},
		{"allgatherv", "cuda", "# OSU MPI-CUDA Allgatherv Latency Test"},
		{"allgather", "rocm", "# OSU MPI-ROCM Allgather Latency Test"},
	}

	for _, tt := range tests {
		if got := Header(tt.benchmark, tt.accel); got != tt.want {
			t.Errorf("Header(%q, %q) = %q, want %q", tt.benchmark, tt.accel, got, tt.want)
		}
	}
}

func TestPrintPreamble(t *testing.T) {
	var buf bytes.Buffer
	PrintPreamble(&buf, "allgather", "")

	lines := strings.Split(buf.String(), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected at least 3 lines, got %q", buf.String())
	}
	if lines[0] != "" {
		t.Errorf("expected blank first line, got %q", lines[0])
	}
	if lines[1] != "# OSU MPI Allgather Latency Test" {
		t.Errorf("banner = %q", lines[1])
	}
	want := fmt.Sprintf("%-10s%18s%18s%18s%12s", "# Size", "Avg Latency(us)", "Min Latency(us)", "Max Latency(us)", "Iterations")
	if lines[2] != want {
		t.Errorf("column header = %q, want %q", lines[2], want)
	}
}

func TestPrintSizeLine(t *testing.T) {
	var buf bytes.Buffer
	PrintSizeLine(&buf, sampleReport().Sizes[2])

	want := fmt.Sprintf("%-10d%18.2f%18.2f%18.2f%12d\n", 16384, 123.456, 100.0, 150.005, 100) +
		fmt.Sprintf("%-10s%18.2f\n", "Std dev:", 7.5)
	if buf.String() != want {
		t.Errorf("PrintSizeLine() = %q, want %q", buf.String(), want)
	}
	if !strings.HasPrefix(buf.String(), "16384     ") {
		t.Errorf("size column not left aligned: %q", buf.String())
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleReport())

	output := buf.String()
	if !strings.Contains(output, "# OSU MPI Allgather Latency Test") {
		t.Errorf("expected banner in output")
	}
	if got := strings.Count(output, "Std dev:"); got != 3 {
		t.Errorf("expected 3 std dev lines, got %d", got)
	}
	for _, size := range []string{"\n1 ", "\n2 ", "\n16384 "} {
		if !strings.Contains(output, size) {
			t.Errorf("expected size row %q in output", strings.TrimSpace(size))
		}
	}
}

func TestPrintReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, &metrics.Report{Benchmark: "allgatherv"})

	output := buf.String()
	if !strings.Contains(output, "Allgatherv") {
		t.Errorf("expected allgatherv banner")
	}
	if strings.Contains(output, "Std dev:") {
		t.Errorf("expected no size rows for an empty report")
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["benchmark"] != "allgather" {
		t.Errorf("benchmark = %v", decoded["benchmark"])
	}
	sizes, ok := decoded["sizes"].([]interface{})
	if !ok || len(sizes) != 3 {
		t.Fatalf("sizes = %v", decoded["sizes"])
	}
	first := sizes[0].(map[string]interface{})
	if first["avg_latency_us"] != 1.5 {
		t.Errorf("avg_latency_us = %v", first["avg_latency_us"])
	}
	if _, ok := first["exact_bytes"]; ok {
		t.Errorf("exact_bytes should be omitted for fixed-size runs")
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintYAMLReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintYAMLReport() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded["std_dev_mode"] != "correct" {
		t.Errorf("std_dev_mode = %v", decoded["std_dev_mode"])
	}
	if decoded["processes"] != 4 {
		t.Errorf("processes = %v", decoded["processes"])
	}
	sizes, ok := decoded["sizes"].([]interface{})
	if !ok || len(sizes) != 3 {
		t.Errorf("sizes = %v", decoded["sizes"])
	}
}

func TestPrintThresholdResults(t *testing.T) {
	results := []threshold.Result{
		{Threshold: threshold.Threshold{Raw: "latency:avg < 200"}, Actual: 123.456, Pass: true},
		{Threshold: threshold.Threshold{Raw: "latency:max < 100"}, Actual: 150.005, WorstSize: 16384, Message: "max latency 150.01us at size 16384"},
	}

	var buf bytes.Buffer
	PrintThresholdResults(&buf, results)

	output := buf.String()
	if !strings.Contains(output, "[PASS] latency:avg < 200") {
		t.Errorf("expected passing line, got:\n%s", output)
	}
	if !strings.Contains(output, "[FAIL] latency:max < 100 (max latency 150.01us at size 16384)") {
		t.Errorf("expected failing line with message, got:\n%s", output)
	}
	if !strings.Contains(output, "1/2 thresholds passed") {
		t.Errorf("expected summary, got:\n%s", output)
	}
}

func TestPrintThresholdResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintThresholdResults(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestPrintComparison(t *testing.T) {
	regs := []history.Regression{
		{Size: 1, BaselineAvg: 1, CurrentAvg: 1.5, Ratio: 1.5},
		{Size: 2, BaselineAvg: 2, CurrentAvg: 1, Ratio: 0.5},
	}

	var buf bytes.Buffer
	PrintComparison(&buf, "01BASE", regs)

	output := buf.String()
	if !strings.Contains(output, "Baseline 01BASE:") {
		t.Errorf("expected baseline header, got:\n%s", output)
	}
	row := fmt.Sprintf("%-10d%18.2f%18.2f%12.3f", 1, 1.0, 1.5, 1.5)
	if !strings.Contains(output, row) {
		t.Errorf("expected row %q, got:\n%s", row, output)
	}
	if !strings.Contains(output, "Worst: size 1 at 1.50x baseline") {
		t.Errorf("expected worst line, got:\n%s", output)
	}
}

func TestPrintComparisonNoCommonSizes(t *testing.T) {
	var buf bytes.Buffer
	PrintComparison(&buf, "01BASE", nil)
	if !strings.Contains(buf.String(), "no common message sizes") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestTextReporterWritesPreambleOnce(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf)

	r.Start("allgather", "")
	r.Start("allgather", "")
	for _, s := range sampleReport().Sizes {
		r.OnSize(s)
	}

	var want bytes.Buffer
	PrintReport(&want, sampleReport())
	if buf.String() != want.String() {
		t.Errorf("streamed output differs from PrintReport:\n%s\nwant:\n%s", buf.String(), want.String())
	}
}

func TestTextReporterNilWriter(t *testing.T) {
	r := NewTextReporter(nil)
	r.Start("allgather", "")
	r.OnSize(metrics.SizeStats{Size: 1})
}
