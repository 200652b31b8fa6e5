package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/torosent/collbench/internal/buffer"
	"github.com/torosent/collbench/internal/distribution"
	"github.com/torosent/collbench/internal/metrics"
	"github.com/torosent/collbench/internal/runner"
	"github.com/torosent/collbench/internal/threshold"
	"github.com/torosent/collbench/internal/tracing"
)

type Transport string

const (
	TransportLocal Transport = "local"
	TransportGRPC  Transport = "grpc"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

const (
	defaultProcs          = 2
	defaultConnectTimeout = 30 * time.Second
	defaultLogLevel       = "info"
)

type Config struct {
	Benchmark       runner.Benchmark   `mapstructure:"benchmark"`
	MinSize         int                `mapstructure:"min_size"`
	MaxSize         int                `mapstructure:"max_size"`
	Iterations      int                `mapstructure:"iterations"`
	Skip            int                `mapstructure:"skip"`
	IterationsLarge int                `mapstructure:"iterations_large"`
	SkipLarge       int                `mapstructure:"skip_large"`
	LargeThreshold  int                `mapstructure:"large_threshold"`
	Distribution    distribution.Kind  `mapstructure:"distribution"`
	Accelerator     buffer.Accel       `mapstructure:"accelerator"`
	MemLimit        int                `mapstructure:"mem_limit"`
	StdDevMode      metrics.StdDevMode `mapstructure:"std_dev_mode"`

	Procs          int           `mapstructure:"procs"`
	Transport      Transport     `mapstructure:"transport"`
	Rank           int           `mapstructure:"rank"`
	Coordinator    string        `mapstructure:"coordinator"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	JSONOutput      bool     `mapstructure:"json_output"`
	YAMLOutput      bool     `mapstructure:"yaml_output"`
	HTMLOutput      string   `mapstructure:"html_output"`
	Dashboard       bool     `mapstructure:"dashboard"`
	Thresholds      []string `mapstructure:"thresholds"`
	HistoryFile     string   `mapstructure:"history_file"`
	Baseline        string   `mapstructure:"baseline"`
	MetricsTextfile string   `mapstructure:"metrics_textfile"`

	LogLevel  string         `mapstructure:"log_level"`
	LogFormat LogFormat      `mapstructure:"log_format"`
	Tracing   tracing.Config `mapstructure:"tracing"`

	ConfigFile string `mapstructure:"-"`
}

// Default returns the configuration used when neither a file nor flags
// override a setting.
func Default() *Config {
	opt := runner.DefaultOptions()
	return &Config{
		Benchmark:       opt.Benchmark,
		MinSize:         opt.MinSize,
		MaxSize:         opt.MaxSize,
		Iterations:      opt.Iterations,
		Skip:            opt.Skip,
		IterationsLarge: opt.IterationsLarge,
		SkipLarge:       opt.SkipLarge,
		LargeThreshold:  opt.LargeThreshold,
		Distribution:    opt.Distribution,
		Accelerator:     opt.Accel,
		MemLimit:        opt.MemLimit,
		StdDevMode:      opt.StdDevMode,
		Procs:           defaultProcs,
		Transport:       TransportLocal,
		ConnectTimeout:  defaultConnectTimeout,
		LogLevel:        defaultLogLevel,
		LogFormat:       LogFormatText,
	}
}

// RunnerOptions returns the sweep options this configuration describes.
func (c Config) RunnerOptions() runner.Options {
	return runner.Options{
		Benchmark:       c.Benchmark,
		MinSize:         c.MinSize,
		MaxSize:         c.MaxSize,
		Iterations:      c.Iterations,
		Skip:            c.Skip,
		IterationsLarge: c.IterationsLarge,
		SkipLarge:       c.SkipLarge,
		LargeThreshold:  c.LargeThreshold,
		Distribution:    c.Distribution,
		Accel:           c.Accelerator,
		MemLimit:        c.MemLimit,
		StdDevMode:      c.StdDevMode,
	}
}

// Hosting reports whether this process hosts rank 0 and so owns the
// results.
func (c Config) Hosting() bool {
	return c.Transport != TransportGRPC || c.Rank == 0
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Benchmark != runner.BenchmarkAllgather && c.Benchmark != runner.BenchmarkAllgatherv {
		issues = append(issues, fmt.Sprintf("benchmark %q is not supported", c.Benchmark))
	}
	if c.MinSize < 0 {
		issues = append(issues, "min size must be >= 0")
	}
	if c.MaxSize < c.MinSize {
		issues = append(issues, fmt.Sprintf("max size %d must be >= min size %d", c.MaxSize, c.MinSize))
	}
	if c.Iterations < 1 {
		issues = append(issues, "iterations must be >= 1")
	}
	if c.IterationsLarge < 1 {
		issues = append(issues, "iterations_large must be >= 1")
	}
	if c.Skip < 0 {
		issues = append(issues, "warmup must be >= 0")
	}
	if c.SkipLarge < 0 {
		issues = append(issues, "warmup_large must be >= 0")
	}
	if c.LargeThreshold < 0 {
		issues = append(issues, "large_threshold must be >= 0")
	}
	if c.MemLimit < 1 {
		issues = append(issues, "mem limit must be >= 1")
	}
	if !c.Distribution.Valid() {
		issues = append(issues, fmt.Sprintf("distribution %d is not supported", int(c.Distribution)))
	}
	if _, err := metrics.ParseStdDevMode(string(c.StdDevMode)); err != nil {
		issues = append(issues, err.Error())
	}

	if c.Procs < 2 {
		issues = append(issues, "procs must be >= 2")
	}
	switch c.Transport {
	case TransportLocal:
	case TransportGRPC:
		if strings.TrimSpace(c.Coordinator) == "" {
			issues = append(issues, "coordinator address is required for the grpc transport")
		}
		if c.Rank < 0 || c.Rank >= c.Procs {
			issues = append(issues, fmt.Sprintf("rank %d must be in [0, %d)", c.Rank, c.Procs))
		}
	default:
		issues = append(issues, fmt.Sprintf("transport %q is not supported", c.Transport))
	}
	if c.ConnectTimeout < 0 {
		issues = append(issues, "connect timeout must be >= 0")
	}

	if c.Dashboard && (c.JSONOutput || c.YAMLOutput) {
		issues = append(issues, "dashboard and json-output/yaml-output are mutually exclusive")
	}
	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json-output and yaml-output are mutually exclusive")
	}
	if c.Baseline != "" && c.HistoryFile == "" {
		issues = append(issues, "baseline requires history-file")
	}
	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		issues = append(issues, fmt.Sprintf("log format %q is not supported", c.LogFormat))
	}

	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracing(t tracing.Config) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing sample rate must be within [0, 1]")
	}
	return issues
}
