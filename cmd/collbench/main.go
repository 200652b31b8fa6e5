package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/torosent/collbench/internal/buffer"
	"github.com/torosent/collbench/internal/comm"
	"github.com/torosent/collbench/internal/config"
	"github.com/torosent/collbench/internal/tracing"
)

const (
	progressInterval       = time.Second
	tracingShutdownTimeout = 5 * time.Second
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		switch {
		case errors.Is(err, config.ErrHelpRequested):
			return nil
		case errors.Is(err, config.ErrVersionRequested):
			fmt.Fprintf(stdout, "collbench %s\n", version)
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if err := buffer.InitAccel(cfg.Accelerator); err != nil {
		return err
	}
	defer func() {
		if err := buffer.CleanupAccel(cfg.Accelerator); err != nil {
			logger.Warn("accelerator cleanup failed", "error", err)
		}
	}()

	b := &bench{
		cfg:    cfg,
		logger: logger,
		tracer: provider.Tracer(),
		stdout: stdout,
		stderr: stderr,
	}

	switch cfg.Transport {
	case config.TransportGRPC:
		err = runDistributed(ctx, b, provider)
	default:
		err = comm.Spawn(ctx, cfg.Procs, b.runRank)
	}
	if err != nil {
		return err
	}
	if b.report == nil {
		return nil
	}
	return b.publish(b.report)
}

// runDistributed joins this process to a gRPC group. Rank 0 hosts the
// coordinator; every other rank dials it.
func runDistributed(ctx context.Context, b *bench, provider *tracing.Provider) error {
	cfg := b.cfg
	if cfg.Hosting() {
		coord, err := comm.Listen(cfg.Coordinator, cfg.Procs,
			grpc.ChainUnaryInterceptor(tracing.UnaryServerInterceptor(provider.Tracer())))
		if err != nil {
			return err
		}
		b.logger.Info("coordinator listening", "addr", coord.Addr().String(), "ranks", cfg.Procs)
		c := coord.Endpoint()
		defer c.Close()
		return b.runRank(ctx, c)
	}

	var opts []grpc.DialOption
	if provider.ShouldPropagate() {
		opts = append(opts, grpc.WithChainUnaryInterceptor(tracing.UnaryClientInterceptor()))
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	c, err := comm.Dial(dialCtx, cfg.Coordinator, cfg.Rank, cfg.Procs, opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return b.runRank(ctx, c)
}

// newLogger builds the process logger on w from the configured level and
// format.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.LogFormat {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("transport", string(cfg.Transport)), nil
}
