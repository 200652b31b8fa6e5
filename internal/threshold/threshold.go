package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/collbench/internal/metrics"
)

// AllSizes selects every measured size.
const AllSizes = -1

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // "latency" or "sizes"
	Size      int     // message size, or AllSizes
	Aggregate string  // e.g. "avg", "max", "stddev", "p99", "count"
	Operator  string  // e.g. "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	// WorstSize is the size that produced Actual for latency thresholds.
	WorstSize int
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a sweep report.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the report.
func (e *Evaluator) Evaluate(report *metrics.Report) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, report))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, report *metrics.Report) Result {
	actual, worst, err := extractMetricValue(t, report)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			WorstSize: worst,
			Message:   fmt.Sprintf("✗ %s: error: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	if t.Metric == "latency" && t.Size == AllSizes && worst >= 0 {
		message += fmt.Sprintf(" (worst at size %d)", worst)
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		WorstSize: worst,
		Pass:      pass,
		Message:   message,
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?:@([0-9]+))?:([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "latency:avg < 50"          (average latency in µs, checked at every size)
// - "latency@1024:p99 < 80"     (one message size only)
// - "latency:stddev <= 5"       (standard deviation in µs)
// - "sizes:count >= 10"         (number of measured sizes)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric[@size]:aggregate operator value, e.g., 'latency:avg < 50')", s)
	}

	metric := matches[1]
	sizeStr := matches[2]
	aggregate := matches[3]
	operator := matches[4]
	valueStr := matches[5]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	size := AllSizes
	if sizeStr != "" {
		if metric != "latency" {
			return Threshold{}, fmt.Errorf("size selector is only valid for latency thresholds: %q", s)
		}
		size, err = strconv.Atoi(sizeStr)
		if err != nil {
			return Threshold{}, fmt.Errorf("invalid threshold size %q: %v", sizeStr, err)
		}
	}

	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: latency, sizes)", metric)
	}

	if !isValidAggregate(metric, aggregate) {
		if metric == "sizes" {
			return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported for sizes: count)", aggregate)
		}
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: avg, min, max, stddev, p50, p90, p99)", aggregate)
	}

	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Size:      size,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func isValidMetric(metric string) bool {
	return metric == "latency" || metric == "sizes"
}

func isValidAggregate(metric, aggregate string) bool {
	if metric == "sizes" {
		return aggregate == "count"
	}
	valid := []string{"avg", "mean", "min", "max", "stddev", "p50", "p90", "p99"}
	for _, v := range valid {
		if aggregate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	for _, v := range valid {
		if operator == v {
			return true
		}
	}
	return false
}

// extractMetricValue returns the value compared against t and, for latency,
// the size it came from. Without a size selector the least favourable size
// for the operator is used.
func extractMetricValue(t Threshold, report *metrics.Report) (float64, int, error) {
	if report == nil {
		return 0, -1, fmt.Errorf("no results")
	}
	switch t.Metric {
	case "sizes":
		return float64(len(report.Sizes)), -1, nil
	case "latency":
	default:
		return 0, -1, fmt.Errorf("unknown metric: %s", t.Metric)
	}

	if t.Size != AllSizes {
		s, ok := report.Size(t.Size)
		if !ok {
			return 0, t.Size, fmt.Errorf("size %d was not measured", t.Size)
		}
		v, err := extractLatencyMetric(t.Aggregate, s)
		return v, t.Size, err
	}

	if len(report.Sizes) == 0 {
		return 0, -1, fmt.Errorf("no sizes measured")
	}
	upper := t.Operator == "<" || t.Operator == "<="
	actual, worst := 0.0, -1
	for _, s := range report.Sizes {
		v, err := extractLatencyMetric(t.Aggregate, s)
		if err != nil {
			return 0, -1, err
		}
		switch {
		case worst < 0:
		case t.Operator == "==":
			if math.Abs(v-t.Value) <= math.Abs(actual-t.Value) {
				continue
			}
		case upper && v <= actual, !upper && v >= actual:
			continue
		}
		actual, worst = v, s.Size
	}
	return actual, worst, nil
}

func extractLatencyMetric(aggregate string, s metrics.SizeStats) (float64, error) {
	switch aggregate {
	case "avg", "mean":
		return s.AvgLatencyUs, nil
	case "min":
		return s.MinLatencyUs, nil
	case "max":
		return s.MaxLatencyUs, nil
	case "stddev":
		return s.StdDevUs, nil
	case "p50":
		return s.P50LatencyUs, nil
	case "p90":
		return s.P90LatencyUs, nil
	case "p99":
		return s.P99LatencyUs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for latency", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
