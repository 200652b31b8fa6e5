package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/collbench/internal/buffer"
	"github.com/torosent/collbench/internal/distribution"
	"github.com/torosent/collbench/internal/metrics"
	"github.com/torosent/collbench/internal/runner"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// ErrVersionRequested is returned when the user asks for the version.
var ErrVersionRequested = errors.New("version requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Without arguments the OSU defaults are used.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if wantsVersion, err := flagSet.GetBool("version"); err == nil && wantsVersion {
		return nil, ErrVersionRequested
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "benchmark"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("benchmark: %w", err)
		}
		b, err := runner.ParseBenchmark(val)
		if err != nil {
			return fmt.Errorf("benchmark: %w", err)
		}
		cfg.Benchmark = b
	}

	if raw, ok := lookupSetting(settings, "messagesize", "message_size", "message-size"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("messageSize: %w", err)
		}
		lo, hi, hasMin, hasMax, err := parseMessageSize(val)
		if err != nil {
			return fmt.Errorf("messageSize: %w", err)
		}
		if hasMin {
			cfg.MinSize = lo
		}
		if hasMax {
			cfg.MaxSize = hi
		}
	}

	intSettings := []struct {
		label       string
		keys        []string
		destination *int
	}{
		{"minSize", []string{"minsize", "min_size", "min-size"}, &cfg.MinSize},
		{"maxSize", []string{"maxsize", "max_size", "max-size"}, &cfg.MaxSize},
		{"iterations", []string{"iterations"}, &cfg.Iterations},
		{"skip", []string{"skip", "warmup"}, &cfg.Skip},
		{"iterationsLarge", []string{"iterationslarge", "iterations_large", "iterations-large"}, &cfg.IterationsLarge},
		{"skipLarge", []string{"skiplarge", "skip_large", "warmup_large", "warmup-large"}, &cfg.SkipLarge},
		{"largeThreshold", []string{"largethreshold", "large_threshold", "large-threshold"}, &cfg.LargeThreshold},
		{"memLimit", []string{"memlimit", "mem_limit", "mem-limit"}, &cfg.MemLimit},
		{"procs", []string{"procs"}, &cfg.Procs},
		{"rank", []string{"rank"}, &cfg.Rank},
	}
	for _, s := range intSettings {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.label, err)
		}
		*s.destination = val
	}

	if raw, ok := lookupSetting(settings, "distribution"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("distribution: %w", err)
		}
		k, err := distribution.Parse(val)
		if err != nil {
			return fmt.Errorf("distribution: %w", err)
		}
		cfg.Distribution = k
	}

	if raw, ok := lookupSetting(settings, "accelerator", "accel"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("accelerator: %w", err)
		}
		a, err := buffer.ParseAccel(val)
		if err != nil {
			return fmt.Errorf("accelerator: %w", err)
		}
		cfg.Accelerator = a
	}

	if raw, ok := lookupSetting(settings, "stddevmode", "std_dev_mode", "std-dev-mode"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("stdDevMode: %w", err)
		}
		mode, err := metrics.ParseStdDevMode(val)
		if err != nil {
			return fmt.Errorf("stdDevMode: %w", err)
		}
		cfg.StdDevMode = mode
	}

	if raw, ok := lookupSetting(settings, "transport"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		cfg.Transport = Transport(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "coordinator"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("coordinator: %w", err)
		}
		cfg.Coordinator = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "connecttimeout", "connect_timeout", "connect-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("connectTimeout: %w", err)
		}
		cfg.ConnectTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "yamloutput", "yaml_output", "yaml-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("yamlOutput: %w", err)
		}
		cfg.YAMLOutput = val
	}

	if raw, ok := lookupSetting(settings, "htmloutput", "html_output", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("htmlOutput: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "historyfile", "history_file", "history-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("historyFile: %w", err)
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "baseline"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
		cfg.Baseline = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "metricstextfile", "metrics_textfile", "metrics-textfile"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metricsTextfile: %w", err)
		}
		cfg.MetricsTextfile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "logformat", "log_format", "log-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logFormat: %w", err)
		}
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(cfg, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyTracingSettings(cfg *Config, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		cfg.Tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		cfg.Tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		cfg.Tracing.Propagate = &val
	}
	return nil
}
