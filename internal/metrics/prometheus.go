package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "collbench"

var sizeLabels = []string{"benchmark", "distribution", "size"}

// Exporter publishes finished sizes as Prometheus metrics in a private
// registry.
type Exporter struct {
	registry *prometheus.Registry

	// Latency gauges in microseconds. Labels: benchmark, distribution, size.
	Avg    *prometheus.GaugeVec
	Min    *prometheus.GaugeVec
	Max    *prometheus.GaugeVec
	StdDev *prometheus.GaugeVec
	P99    *prometheus.GaugeVec

	// SizesTotal counts completed sizes. Labels: benchmark, distribution.
	SizesTotal *prometheus.CounterVec
}

func NewExporter() *Exporter {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, sizeLabels)
	}
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		Avg:      gauge("latency_avg_microseconds", "Cross-rank average latency per message size."),
		Min:      gauge("latency_min_microseconds", "Minimum per-rank average latency per message size."),
		Max:      gauge("latency_max_microseconds", "Maximum per-rank average latency per message size."),
		StdDev:   gauge("latency_stddev_microseconds", "Standard deviation of per-iteration cross-rank means."),
		P99:      gauge("latency_p99_microseconds", "99th percentile of per-iteration cross-rank means."),
		SizesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sizes_total",
			Help:      "Message sizes measured.",
		}, []string{"benchmark", "distribution"}),
	}
	e.registry.MustRegister(e.Avg, e.Min, e.Max, e.StdDev, e.P99, e.SizesTotal)
	return e
}

// Registry returns the registry holding the exporter's metrics.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observe publishes one finished size. An empty distribution is labelled
// "none".
func (e *Exporter) Observe(benchmark, distribution string, s SizeStats) {
	if distribution == "" {
		distribution = "none"
	}
	size := strconv.Itoa(s.Size)
	e.Avg.WithLabelValues(benchmark, distribution, size).Set(s.AvgLatencyUs)
	e.Min.WithLabelValues(benchmark, distribution, size).Set(s.MinLatencyUs)
	e.Max.WithLabelValues(benchmark, distribution, size).Set(s.MaxLatencyUs)
	e.StdDev.WithLabelValues(benchmark, distribution, size).Set(s.StdDevUs)
	e.P99.WithLabelValues(benchmark, distribution, size).Set(s.P99LatencyUs)
	e.SizesTotal.WithLabelValues(benchmark, distribution).Inc()
}

// ObserveReport publishes every size of r.
func (e *Exporter) ObserveReport(r *Report) {
	for _, s := range r.Sizes {
		e.Observe(r.Benchmark, r.Distribution, s)
	}
}

// WriteTextfile writes the registry in the text exposition format, atomically
// replacing path.
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
