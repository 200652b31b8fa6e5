package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/collbench/internal/comm"
	"github.com/torosent/collbench/internal/config"
	"github.com/torosent/collbench/internal/dashboard"
	"github.com/torosent/collbench/internal/history"
	"github.com/torosent/collbench/internal/metrics"
	"github.com/torosent/collbench/internal/output"
	"github.com/torosent/collbench/internal/runner"
	"github.com/torosent/collbench/internal/threshold"
)

// bench runs one process's ranks and publishes rank 0's report.
type bench struct {
	cfg    *config.Config
	logger *slog.Logger
	tracer trace.Tracer
	stdout io.Writer
	stderr io.Writer

	// report is set by rank 0 once its sweep completes.
	report *metrics.Report
}

func (b *bench) runRank(ctx context.Context, c comm.Communicator) error {
	logger := b.logger.With("rank", c.Rank(), "ranks", c.Size())
	r, err := runner.New(c, b.cfg.RunnerOptions(), logger, b.tracer)
	if err != nil {
		c.Abort(err)
		return err
	}
	if c.Rank() != 0 {
		_, err := r.Run(ctx)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	detach, err := b.attach(r, c, cancel)
	if err != nil {
		c.Abort(err)
		return err
	}
	report, err := r.Run(ctx)
	detach()
	if err != nil {
		return err
	}
	logger.Info("sweep complete", "sizes", len(report.Sizes), "duration", report.Duration)
	b.report = report
	return nil
}

// attach registers rank 0's live observers. The returned func stops them.
func (b *bench) attach(r *runner.Runner, c comm.Communicator, shutdown func()) (func(), error) {
	opt := r.Options()
	total := len(runner.Runs(opt))
	distName := ""
	if opt.Benchmark.Variable() {
		distName = opt.Distribution.String()
	}

	switch {
	case b.cfg.Dashboard:
		dash, err := dashboard.New(dashboard.SweepConfig{
			Benchmark:    string(opt.Benchmark),
			Distribution: distName,
			Processes:    c.Size(),
			Transport:    string(b.cfg.Transport),
			MinSize:      opt.MinSize,
			MaxSize:      opt.MaxSize,
			Sizes:        total,
			StdDevMode:   string(opt.StdDevMode),
			ConfigFile:   b.cfg.ConfigFile,
		}, c.Stats, shutdown)
		if err != nil {
			return nil, err
		}
		r.Observe(dash)
		dash.Start()
		return dash.Stop, nil
	case b.cfg.JSONOutput || b.cfg.YAMLOutput:
		progress := output.NewProgressReporter(total, progressInterval, b.stderr)
		r.Observe(progress)
		progress.Start()
		return func() {
			progress.Stop()
			fmt.Fprintln(b.stderr, progress.Line())
		}, nil
	default:
		text := output.NewTextReporter(b.stdout)
		text.Start(string(opt.Benchmark), opt.Accel.String())
		r.Observe(text)
		return func() {}, nil
	}
}

// publish writes rank 0's report to every configured sink and checks the
// thresholds. A failed threshold is returned as an error after all sinks
// have been written.
func (b *bench) publish(report *metrics.Report) error {
	cfg := b.cfg
	report.RunID = history.NewRunID()
	report.Transport = string(cfg.Transport)

	var comparison *output.ComparisonSummary
	if cfg.HistoryFile != "" {
		store := history.NewStore(cfg.HistoryFile)
		if cfg.Baseline != "" {
			baseline, err := store.Lookup(cfg.Baseline)
			if err != nil {
				return fmt.Errorf("baseline: %w", err)
			}
			comparison = output.NewComparisonSummary(baseline.RunID, history.Compare(baseline, report))
		}
		if err := store.Append(report); err != nil {
			return err
		}
		b.logger.Info("run recorded", "run_id", report.RunID, "history", store.Path())
	}

	var results []threshold.Result
	if len(cfg.Thresholds) > 0 {
		thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
		if err != nil {
			return err
		}
		results = threshold.NewEvaluator(thresholds).Evaluate(report)
	}

	summary := b.stdout
	switch {
	case cfg.JSONOutput:
		if err := output.PrintJSONReport(b.stdout, report); err != nil {
			return err
		}
		summary = b.stderr
	case cfg.YAMLOutput:
		if err := output.PrintYAMLReport(b.stdout, report); err != nil {
			return err
		}
		summary = b.stderr
	case cfg.Dashboard:
		output.PrintReport(b.stdout, report)
	}
	if comparison != nil {
		output.PrintComparison(summary, comparison.BaselineID, comparison.Regressions)
	}
	output.PrintThresholdResults(summary, results)

	if cfg.HTMLOutput != "" {
		if err := writeHTMLReport(cfg.HTMLOutput, report, results, comparison); err != nil {
			return err
		}
	}

	if cfg.MetricsTextfile != "" {
		exporter := metrics.NewExporter()
		exporter.ObserveReport(report)
		if err := exporter.WriteTextfile(cfg.MetricsTextfile); err != nil {
			return err
		}
	}

	if !threshold.AllPassed(results) {
		failed := 0
		for _, r := range results {
			if !r.Pass {
				failed++
			}
		}
		return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	return nil
}

func writeHTMLReport(path string, report *metrics.Report, results []threshold.Result, comparison *output.ComparisonSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	if err := output.GenerateHTMLReport(f, report, results, comparison); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
