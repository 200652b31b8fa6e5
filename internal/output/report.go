package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/torosent/collbench/internal/history"
	"github.com/torosent/collbench/internal/metrics"
	"github.com/torosent/collbench/internal/threshold"
)

// Column layout of the OSU latency tables.
const (
	sizeWidth       = 10
	fieldWidth      = 18
	floatPrecision  = 2
	iterationsWidth = 12
)

// Header returns the banner line of a benchmark, e.g.
// "# OSU MPI-CUDA Allgatherv Latency Test".
func Header(benchmark, accelerator string) string {
	name := "Allgather"
	if strings.EqualFold(benchmark, "allgatherv") {
		name = "Allgatherv"
	}
	suffix := ""
	if accelerator != "" && accelerator != "none" {
		suffix = "-" + strings.ToUpper(accelerator)
	}
	return fmt.Sprintf("# OSU MPI%s %s Latency Test", suffix, name)
}

// PrintPreamble writes the banner and the column header.
func PrintPreamble(w io.Writer, benchmark, accelerator string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, Header(benchmark, accelerator))
	fmt.Fprintf(w, "%-*s", sizeWidth, "# Size")
	fmt.Fprintf(w, "%*s", fieldWidth, "Avg Latency(us)")
	fmt.Fprintf(w, "%*s", fieldWidth, "Min Latency(us)")
	fmt.Fprintf(w, "%*s", fieldWidth, "Max Latency(us)")
	fmt.Fprintf(w, "%*s\n", iterationsWidth, "Iterations")
}

// PrintSizeLine writes the latency line of one size followed by its standard
// deviation line.
func PrintSizeLine(w io.Writer, s metrics.SizeStats) {
	fmt.Fprintf(w, "%-*d%*.*f%*.*f%*.*f%*d\n",
		sizeWidth, s.Size,
		fieldWidth, floatPrecision, s.AvgLatencyUs,
		fieldWidth, floatPrecision, s.MinLatencyUs,
		fieldWidth, floatPrecision, s.MaxLatencyUs,
		iterationsWidth, s.Iterations)
	fmt.Fprintf(w, "%-*s", sizeWidth, "Std dev:")
	fmt.Fprintf(w, "%*.*f\n", fieldWidth, floatPrecision, s.StdDevUs)
}

// PrintReport writes the whole sweep as an OSU latency table.
func PrintReport(w io.Writer, report *metrics.Report) {
	PrintPreamble(w, report.Benchmark, report.Accelerator)
	for _, s := range report.Sizes {
		PrintSizeLine(w, s)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report *metrics.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report *metrics.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

// PrintThresholdResults writes one line per threshold and a summary.
func PrintThresholdResults(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	passed := 0
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		status := "FAIL"
		if r.Pass {
			status = "PASS"
			passed++
		}
		fmt.Fprintf(w, "  [%s] %s", status, r.Threshold.Raw)
		if r.Message != "" {
			fmt.Fprintf(w, " (%s)", r.Message)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d/%d thresholds passed\n", passed, len(results))
}

// PrintComparison writes the per-size ratio of the current run against a
// baseline run.
func PrintComparison(w io.Writer, baselineID string, regs []history.Regression) {
	fmt.Fprintf(w, "\nBaseline %s:\n", baselineID)
	if len(regs) == 0 {
		fmt.Fprintln(w, "  no common message sizes")
		return
	}
	fmt.Fprintf(w, "%-*s%*s%*s%*s\n", sizeWidth, "# Size",
		fieldWidth, "Baseline(us)", fieldWidth, "Current(us)", iterationsWidth, "Ratio")
	for _, r := range regs {
		fmt.Fprintf(w, "%-*d%*.*f%*.*f%*.3f\n", sizeWidth, r.Size,
			fieldWidth, floatPrecision, r.BaselineAvg,
			fieldWidth, floatPrecision, r.CurrentAvg,
			iterationsWidth, r.Ratio)
	}
	if worst, ok := history.Worst(regs); ok {
		fmt.Fprintf(w, "Worst: size %d at %.2fx baseline\n", worst.Size, worst.Ratio)
	}
}

// TextReporter streams the OSU table as sizes complete.
type TextReporter struct {
	mu       sync.Mutex
	w        io.Writer
	preamble bool
}

func NewTextReporter(w io.Writer) *TextReporter {
	if w == nil {
		w = io.Discard
	}
	return &TextReporter{w: w}
}

// Start writes the preamble once.
func (t *TextReporter) Start(benchmark, accelerator string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.preamble {
		return
	}
	t.preamble = true
	PrintPreamble(t.w, benchmark, accelerator)
}

// OnSize writes the lines of one completed size.
func (t *TextReporter) OnSize(s metrics.SizeStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	PrintSizeLine(t.w, s)
}
