package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/collbench/internal/config"
)

// quick keeps a sweep to four sizes and a handful of iterations.
var quick = []string{"-m", "1:8", "-i", "3", "-x", "1", "-n", "3", "--log-level", "error"}

func runArgs(t *testing.T, extra ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args := append(append([]string{}, quick...), extra...)
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRunTextOutput(t *testing.T) {
	out, _, err := runArgs(t)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if !strings.Contains(out, "# OSU MPI Allgather Latency Test") {
		t.Errorf("missing banner in output:\n%s", out)
	}
	if !strings.Contains(out, "Avg Latency(us)") {
		t.Errorf("missing column header in output:\n%s", out)
	}
	for _, size := range []int{1, 2, 4, 8} {
		if !strings.Contains(out, fmt.Sprintf("\n%-10d", size)) {
			t.Errorf("missing size %d in output:\n%s", size, out)
		}
	}
	if got := strings.Count(out, "Std dev:"); got != 4 {
		t.Errorf("std dev lines = %d, want 4", got)
	}
}

func TestRunJSONOutput(t *testing.T) {
	out, _, err := runArgs(t, "--benchmark", "allgatherv", "--distribution", "spike", "--json-output")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var report struct {
		RunID        string `json:"run_id"`
		Benchmark    string `json:"benchmark"`
		Distribution string `json:"distribution"`
		Processes    int    `json:"processes"`
		Transport    string `json:"transport"`
		Sizes        []struct {
			Size       int `json:"size"`
			Iterations int `json:"iterations"`
			ExactBytes int `json:"exact_bytes"`
		} `json:"sizes"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, out)
	}
	if report.RunID == "" {
		t.Errorf("run_id is empty")
	}
	if report.Benchmark != "allgatherv" || report.Distribution != "spike" {
		t.Errorf("benchmark = %q/%q", report.Benchmark, report.Distribution)
	}
	if report.Processes != 3 || report.Transport != "local" {
		t.Errorf("group = %d/%q", report.Processes, report.Transport)
	}
	if len(report.Sizes) != 4 {
		t.Fatalf("sizes = %d, want 4", len(report.Sizes))
	}
	for _, s := range report.Sizes {
		if s.Iterations != 3 {
			t.Errorf("size %d iterations = %d, want 3", s.Size, s.Iterations)
		}
		if s.ExactBytes <= 0 {
			t.Errorf("size %d exact_bytes = %d, want > 0", s.Size, s.ExactBytes)
		}
	}
}

func TestRunYAMLOutput(t *testing.T) {
	out, _, err := runArgs(t, "--yaml-output")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out, "benchmark: allgather") {
		t.Errorf("stdout is not a YAML report:\n%s", out)
	}
	if strings.Contains(out, "# OSU") {
		t.Errorf("text table leaked into YAML output")
	}
}

func TestRunThresholds(t *testing.T) {
	out, _, err := runArgs(t, "--threshold", "sizes:count >= 4")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out, "1/1 thresholds passed") {
		t.Errorf("missing threshold summary:\n%s", out)
	}

	out, _, err = runArgs(t, "--threshold", "latency:avg < 0", "--threshold", "sizes:count >= 4")
	if err == nil {
		t.Fatalf("run() error = nil, want threshold failure")
	}
	if !strings.Contains(err.Error(), "1 of 2 thresholds failed") {
		t.Errorf("run() error = %v", err)
	}
	if !strings.Contains(out, "[FAIL] latency:avg < 0") {
		t.Errorf("missing failing threshold:\n%s", out)
	}
}

func TestRunHistoryAndBaseline(t *testing.T) {
	dir := t.TempDir()
	historyFile := filepath.Join(dir, "runs.jsonl")

	if _, _, err := runArgs(t, "--history-file", historyFile, "--baseline", "latest"); err == nil {
		t.Fatalf("run() with an empty history error = nil, want baseline error")
	}

	if _, _, err := runArgs(t, "--history-file", historyFile); err != nil {
		t.Fatalf("first run() error = %v", err)
	}
	out, _, err := runArgs(t, "--history-file", historyFile, "--baseline", "latest")
	if err != nil {
		t.Fatalf("second run() error = %v", err)
	}
	if !strings.Contains(out, "Baseline ") || !strings.Contains(out, "Worst: size ") {
		t.Errorf("missing baseline comparison:\n%s", out)
	}

	data, err := os.ReadFile(historyFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("history lines = %d, want 2", lines)
	}
}

func TestRunFileSinks(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "report.html")
	promPath := filepath.Join(dir, "collbench.prom")

	if _, _, err := runArgs(t, "--html-output", htmlPath, "--metrics-textfile", promPath); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	html, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("html report: %v", err)
	}
	if !strings.Contains(string(html), "OSU MPI Allgather Latency Test") {
		t.Errorf("html report missing title")
	}

	prom, err := os.ReadFile(promPath)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(prom), "collbench_latency_avg_microseconds") {
		t.Errorf("metrics textfile missing avg gauge:\n%s", prom)
	}
	if !strings.Contains(string(prom), `collbench_sizes_total{benchmark="allgather",distribution="none"} 4`) {
		t.Errorf("metrics textfile missing size counter:\n%s", prom)
	}
}

func TestRunHelpAndVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--help"}, &stdout, &stderr); err != nil {
		t.Errorf("run(--help) error = %v", err)
	}

	stdout.Reset()
	if err := run([]string{"-v"}, &stdout, &stderr); err != nil {
		t.Errorf("run(-v) error = %v", err)
	}
	if got := stdout.String(); got != "collbench "+version+"\n" {
		t.Errorf("version output = %q", got)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"-n", "1"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "procs") {
		t.Errorf("run(-n 1) error = %v, want procs validation error", err)
	}

	err = run([]string{"--accelerator", "cuda", "-m", "1:1", "-n", "2"}, &stdout, &stderr)
	if err == nil {
		t.Errorf("run(--accelerator cuda) error = nil, want unavailable accelerator")
	}
}

func TestRunDistributed(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	outs := make([]bytes.Buffer, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for rank := 0; rank < 2; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			var stderr bytes.Buffer
			args := []string{
				"-m", "1:4", "-i", "2", "-x", "1", "-n", "2",
				"--transport", "grpc", "--coordinator", addr,
				"--rank", strconv.Itoa(rank), "--connect-timeout", "20s",
				"--log-level", "error",
			}
			errs[rank] = run(args, &outs[rank], &stderr)
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d run() error = %v", rank, err)
		}
	}
	if !strings.Contains(outs[0].String(), "# OSU MPI Allgather Latency Test") {
		t.Errorf("rank 0 output missing table:\n%s", outs[0].String())
	}
	if outs[1].Len() != 0 {
		t.Errorf("rank 1 wrote output:\n%s", outs[1].String())
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = config.LogFormatJSON
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger, err := newLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "rank", 0)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %s", out)
	}
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &record); err != nil {
		t.Fatalf("log record is not JSON: %v\n%s", err, out)
	}
	if record["msg"] != "shown" || record["transport"] != "local" {
		t.Errorf("record = %v", record)
	}
}
