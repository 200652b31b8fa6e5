package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/collbench/internal/history"
	"github.com/torosent/collbench/internal/metrics"
	"github.com/torosent/collbench/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Title            string
	Report           *metrics.Report
	ThresholdSummary *ThresholdSummary
	Comparison       *ComparisonSummary
	SizesJSON        string
}

// ThresholdSummary aggregates threshold outcomes for display.
type ThresholdSummary struct {
	Total   int
	Passed  int
	Failed  int
	Results []ThresholdResultJSON
}

// ThresholdResultJSON is one threshold row.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Size      int     `json:"size,omitempty"`
	Pass      bool    `json:"pass"`
}

// ComparisonSummary is the baseline section of the report.
type ComparisonSummary struct {
	BaselineID  string
	Regressions []history.Regression
	Worst       *history.Regression
}

// sizePoint is the chart series entry of one size.
type sizePoint struct {
	Size int     `json:"size"`
	Avg  float64 `json:"avg"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P99  float64 `json:"p99"`
}

// NewThresholdSummary folds evaluated thresholds into a summary. It returns
// nil when there are none.
func NewThresholdSummary(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Size:      tr.WorstSize,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// NewComparisonSummary builds the baseline section. It returns nil when no
// baseline was requested.
func NewComparisonSummary(baselineID string, regs []history.Regression) *ComparisonSummary {
	if baselineID == "" {
		return nil
	}
	c := &ComparisonSummary{BaselineID: baselineID, Regressions: regs}
	if worst, ok := history.Worst(regs); ok {
		c.Worst = &worst
	}
	return c
}

// GenerateHTMLReport generates a standalone HTML report with an embedded
// latency chart.
func GenerateHTMLReport(w io.Writer, report *metrics.Report, thresholdResults []threshold.Result, comparison *ComparisonSummary) error {
	points := make([]sizePoint, len(report.Sizes))
	for i, s := range report.Sizes {
		points[i] = sizePoint{Size: s.Size, Avg: s.AvgLatencyUs, Min: s.MinLatencyUs, Max: s.MaxLatencyUs, P99: s.P99LatencyUs}
	}
	sizesJSON, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal sizes: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Title:            Header(report.Benchmark, report.Accelerator)[2:],
		Report:           report,
		ThresholdSummary: NewThresholdSummary(thresholdResults),
		Comparison:       comparison,
		SizesJSON:        string(sizesJSON),
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatRatio": func(f float64) string {
			return fmt.Sprintf("%.3f", f)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f4f6f8;
            color: #1f2933;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header { background: #1e3a5f; color: white; padding: 28px 40px; }
        header h1 { font-size: 1.8rem; margin-bottom: 8px; }
        header .meta { opacity: 0.85; font-size: 0.9rem; }
        .content { padding: 36px 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 18px;
            margin-bottom: 36px;
        }
        .card { background: #f8fafc; border-radius: 8px; padding: 18px; border-left: 4px solid #2f6db5; }
        .card h3 { font-size: 0.8rem; color: #616e7c; text-transform: uppercase; letter-spacing: 0.5px; margin-bottom: 8px; }
        .card .value { font-size: 1.6rem; font-weight: bold; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 36px; }
        .section h2 { font-size: 1.35rem; margin-bottom: 16px; padding-bottom: 8px; border-bottom: 2px solid #e4e7eb; }
        .chart { width: 100%; height: 320px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: right; padding: 10px 12px; border-bottom: 1px solid #e4e7eb; font-variant-numeric: tabular-nums; }
        th:first-child, td:first-child { text-align: left; }
        th { background: #f8fafc; font-weight: 600; color: #52606d; font-size: 0.85rem; text-transform: uppercase; }
        .badge { display: inline-block; padding: 3px 10px; border-radius: 12px; font-size: 0.8rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
        .no-data { text-align: center; padding: 36px; color: #616e7c; font-style: italic; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>{{.Title}}</h1>
            {{if .Report.RunID}}<div class="meta">Run: {{.Report.RunID}}</div>{{end}}
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Report.Duration}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Processes</h3>
                    <div class="value">{{.Report.Processes}}</div>
                </div>
                <div class="card">
                    <h3>Sizes Measured</h3>
                    <div class="value">{{len .Report.Sizes}}</div>
                </div>
                {{if .Report.Distribution}}
                <div class="card">
                    <h3>Distribution</h3>
                    <div class="value">{{.Report.Distribution}}</div>
                </div>
                {{end}}
                <div class="card">
                    <h3>Std Dev Mode</h3>
                    <div class="value">{{.Report.StdDevMode}}</div>
                </div>
                {{if .Report.Transport}}
                <div class="card">
                    <h3>Transport</h3>
                    <div class="value">{{.Report.Transport}}</div>
                </div>
                {{end}}
            </div>

            {{if .Report.Sizes}}
            <div class="section">
                <h2>Latency by Message Size</h2>
                <div id="latency-chart" class="chart"></div>
            </div>

            <div class="section">
                <h2>Results</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Size</th>
                            <th>Avg (us)</th>
                            <th>Min (us)</th>
                            <th>Max (us)</th>
                            <th>Std Dev (us)</th>
                            <th>P99 (us)</th>
                            <th>Iterations</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Report.Sizes}}
                        <tr>
                            <td><strong>{{.Size}}</strong></td>
                            <td>{{formatFloat .AvgLatencyUs}}</td>
                            <td>{{formatFloat .MinLatencyUs}}</td>
                            <td>{{formatFloat .MaxLatencyUs}}</td>
                            <td>{{formatFloat .StdDevUs}}</td>
                            <td>{{formatFloat .P99LatencyUs}}</td>
                            <td>{{.Iterations}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{else}}
            <div class="no-data">No message sizes were measured.</div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Size</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Size}}{{.Size}}{{else}}-{{end}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">PASS</span>
                                {{else}}
                                <span class="badge badge-error">FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Comparison}}
            <div class="section">
                <h2>Baseline {{.Comparison.BaselineID}}</h2>
                {{if .Comparison.Regressions}}
                <table>
                    <thead>
                        <tr>
                            <th>Size</th>
                            <th>Baseline (us)</th>
                            <th>Current (us)</th>
                            <th>Ratio</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Comparison.Regressions}}
                        <tr>
                            <td><strong>{{.Size}}</strong></td>
                            <td>{{formatFloat .BaselineAvg}}</td>
                            <td>{{formatFloat .CurrentAvg}}</td>
                            <td>{{formatRatio .Ratio}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{else}}
                <div class="no-data">No message sizes in common with the baseline.</div>
                {{end}}
            </div>
            {{end}}
        </div>
    </div>

    {{if .Report.Sizes}}
    <script>
        const sizes = JSON.parse({{.SizesJSON}});
        const el = document.getElementById('latency-chart');
        new uPlot({
            width: el.offsetWidth,
            height: 320,
            scales: { x: { time: false, distr: 3 }, y: { distr: 3 } },
            series: [
                { label: "Size (bytes)" },
                { label: "Avg", stroke: "#2f6db5", width: 2 },
                { label: "Min", stroke: "#10b981", width: 1 },
                { label: "Max", stroke: "#ef4444", width: 1 },
                { label: "P99", stroke: "#f59e0b", width: 1, dash: [6, 4] }
            ],
            axes: [
                { label: "Message size (bytes)" },
                { label: "Latency (us)" }
            ]
        }, [
            sizes.map(s => Math.max(s.size, 1)),
            sizes.map(s => s.avg),
            sizes.map(s => s.min),
            sizes.map(s => s.max),
            sizes.map(s => s.p99)
        ], el);
    </script>
    {{end}}
</body>
</html>
`
