package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/collbench/internal/buffer"
	"github.com/torosent/collbench/internal/distribution"
	"github.com/torosent/collbench/internal/metrics"
	"github.com/torosent/collbench/internal/runner"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "collbench",
		Short:         "Allgather and allgatherv latency benchmark",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	def := runner.DefaultOptions()

	// Benchmark flags
	flags.String("benchmark", string(def.Benchmark), "Collective to measure: 'allgather' or 'allgatherv'")
	flags.StringP("message-size", "m", "", "Message size range as [min:]max (e.g. 4:65536)")
	flags.Int("min-size", def.MinSize, "Smallest message size in bytes")
	flags.Int("max-size", def.MaxSize, "Largest message size in bytes")
	flags.IntP("iterations", "i", def.Iterations, "Measured iterations per size")
	flags.IntP("warmup", "x", def.Skip, "Warm-up iterations per size")
	flags.Int("iterations-large", def.IterationsLarge, "Measured iterations for sizes above the large threshold")
	flags.Int("warmup-large", def.SkipLarge, "Warm-up iterations for sizes above the large threshold")
	flags.Int("large-threshold", def.LargeThreshold, "Sizes strictly above this use the large iteration counts")
	flags.String("distribution", def.Distribution.String(), "Per-rank size distribution for allgatherv (regular, broadcast, spike, half_full, linearly_decreasing, geometric_curve or 0-5)")
	flags.StringP("accelerator", "d", def.Accel.String(), "Buffer memory: 'none', 'cuda', 'openacc' or 'rocm'")
	flags.IntP("mem-limit", "M", def.MemLimit, "Per-process memory limit in bytes; max size is clamped to limit/procs")
	flags.String("std-dev-mode", string(def.StdDevMode), "Standard deviation formula: 'correct' or 'legacy'")

	// Group flags
	flags.IntP("procs", "n", defaultProcs, "Number of ranks in the group")
	flags.String("transport", string(TransportLocal), "Transport: 'local' (in-process ranks) or 'grpc' (one process per rank)")
	flags.Int("rank", 0, "Rank of this process for the grpc transport")
	flags.String("coordinator", "", "Coordinator address host:port; rank 0 listens on it, other ranks dial it")
	flags.Duration("connect-timeout", defaultConnectTimeout, "How long a rank waits for the coordinator")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("yaml-output", false, "Emit YAML formatted output")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.StringSlice("threshold", nil, "Latency thresholds (repeatable, e.g., 'latency:avg < 50' or 'latency@1024:p99 < 80')")
	flags.String("history-file", "", "Append each run to this JSON lines file")
	flags.String("baseline", "", "Compare against a recorded run: 'latest' or a run ID (prefix)")
	flags.String("metrics-textfile", "", "Write Prometheus metrics to this textfile")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Logging flags
	flags.String("log-level", defaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", string(LogFormatText), "Log format: 'text' or 'json'")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for traces (enables tracing)")
	flags.String("tracing-protocol", "", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 0, "Trace sampling ratio within [0, 1] (0 uses the exporter default)")

	flags.BoolP("version", "v", false, "Print version and exit")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// parseMessageSize parses "[min:]max". Either bound may be left empty.
func parseMessageSize(s string) (minSize, maxSize int, hasMin, hasMax bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false, false, fmt.Errorf("empty message size")
	}
	lo, hi, ranged := strings.Cut(s, ":")
	if !ranged {
		lo, hi = "", lo
	}
	if lo = strings.TrimSpace(lo); lo != "" {
		if minSize, err = strconv.Atoi(lo); err != nil {
			return 0, 0, false, false, fmt.Errorf("invalid min size %q: %w", lo, err)
		}
		hasMin = true
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		if maxSize, err = strconv.Atoi(hi); err != nil {
			return 0, 0, false, false, fmt.Errorf("invalid max size %q: %w", hi, err)
		}
		hasMax = true
	}
	if !hasMin && !hasMax {
		return 0, 0, false, false, fmt.Errorf("message size %q sets no bound", s)
	}
	return minSize, maxSize, hasMin, hasMax, nil
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("benchmark") {
		val, err := fs.GetString("benchmark")
		if err != nil {
			return err
		}
		b, err := runner.ParseBenchmark(val)
		if err != nil {
			return err
		}
		cfg.Benchmark = b
	}
	if fs.Changed("min-size") {
		val, err := fs.GetInt("min-size")
		if err != nil {
			return err
		}
		cfg.MinSize = val
	}
	if fs.Changed("max-size") {
		val, err := fs.GetInt("max-size")
		if err != nil {
			return err
		}
		cfg.MaxSize = val
	}
	if fs.Changed("message-size") {
		val, err := fs.GetString("message-size")
		if err != nil {
			return err
		}
		lo, hi, hasMin, hasMax, err := parseMessageSize(val)
		if err != nil {
			return fmt.Errorf("message-size: %w", err)
		}
		if hasMin {
			cfg.MinSize = lo
		}
		if hasMax {
			cfg.MaxSize = hi
		}
	}
	if fs.Changed("iterations") {
		val, err := fs.GetInt("iterations")
		if err != nil {
			return err
		}
		cfg.Iterations = val
	}
	if fs.Changed("warmup") {
		val, err := fs.GetInt("warmup")
		if err != nil {
			return err
		}
		cfg.Skip = val
	}
	if fs.Changed("iterations-large") {
		val, err := fs.GetInt("iterations-large")
		if err != nil {
			return err
		}
		cfg.IterationsLarge = val
	}
	if fs.Changed("warmup-large") {
		val, err := fs.GetInt("warmup-large")
		if err != nil {
			return err
		}
		cfg.SkipLarge = val
	}
	if fs.Changed("large-threshold") {
		val, err := fs.GetInt("large-threshold")
		if err != nil {
			return err
		}
		cfg.LargeThreshold = val
	}
	if fs.Changed("distribution") {
		val, err := fs.GetString("distribution")
		if err != nil {
			return err
		}
		k, err := distribution.Parse(val)
		if err != nil {
			return err
		}
		cfg.Distribution = k
	}
	if fs.Changed("accelerator") {
		val, err := fs.GetString("accelerator")
		if err != nil {
			return err
		}
		a, err := buffer.ParseAccel(val)
		if err != nil {
			return err
		}
		cfg.Accelerator = a
	}
	if fs.Changed("mem-limit") {
		val, err := fs.GetInt("mem-limit")
		if err != nil {
			return err
		}
		cfg.MemLimit = val
	}
	if fs.Changed("std-dev-mode") {
		val, err := fs.GetString("std-dev-mode")
		if err != nil {
			return err
		}
		mode, err := metrics.ParseStdDevMode(val)
		if err != nil {
			return err
		}
		cfg.StdDevMode = mode
	}
	if fs.Changed("procs") {
		val, err := fs.GetInt("procs")
		if err != nil {
			return err
		}
		cfg.Procs = val
	}
	if fs.Changed("transport") {
		val, err := fs.GetString("transport")
		if err != nil {
			return err
		}
		cfg.Transport = Transport(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("rank") {
		val, err := fs.GetInt("rank")
		if err != nil {
			return err
		}
		cfg.Rank = val
	}
	if fs.Changed("coordinator") {
		val, err := fs.GetString("coordinator")
		if err != nil {
			return err
		}
		cfg.Coordinator = strings.TrimSpace(val)
	}
	if fs.Changed("connect-timeout") {
		val, err := fs.GetDuration("connect-timeout")
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("yaml-output") {
		val, err := fs.GetBool("yaml-output")
		if err != nil {
			return err
		}
		cfg.YAMLOutput = val
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("history-file") {
		val, err := fs.GetString("history-file")
		if err != nil {
			return err
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}
	if fs.Changed("baseline") {
		val, err := fs.GetString("baseline")
		if err != nil {
			return err
		}
		cfg.Baseline = strings.TrimSpace(val)
	}
	if fs.Changed("metrics-textfile") {
		val, err := fs.GetString("metrics-textfile")
		if err != nil {
			return err
		}
		cfg.MetricsTextfile = strings.TrimSpace(val)
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	return nil
}
