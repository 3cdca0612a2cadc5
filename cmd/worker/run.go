package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mteval/internal/worker/client"
	"mteval/internal/worker/processor"
	"mteval/internal/worker/runner"
	"mteval/internal/worker/supervisor"
	"mteval/pkg/config"
	"mteval/pkg/logger"
)

func runWorker(ctx context.Context, opts *workerOptions) error {
	if err := logger.Setup(config.LoggerConfig{Level: opts.logLevel, Output: "console"}); err != nil {
		return err
	}

	mode, err := runner.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	requiresReferences, err := resolveMetric(opts)
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate worker binary: %w", err)
	}
	engine := supervisor.New(supervisor.Config{
		Path:        exe,
		Args:        computeArgs(opts),
		StopTimeout: opts.stopTimeout,
		MaxFailures: opts.maxFailures,
	})
	api := client.New(client.Config{
		Host:      opts.host,
		Token:     opts.token,
		Namespace: opts.namespace,
		Timeout:   opts.httpTimeout,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := runner.New(runner.Config{
		Metric:             opts.metric,
		RequiresReferences: requiresReferences,
		Username:           opts.username,
		Queue:              opts.queue,
		Mode:               mode,
		HeartbeatInterval:  opts.heartbeatInterval,
		PollInterval:       opts.pollInterval,
		ShutdownTimeout:    opts.stopTimeout + opts.httpTimeout,
	}, api, engine)

	if err := r.Run(ctx); err != nil {
		logger.ErrorCtx(ctx, "worker %d stopped: %v", r.WorkerID(), err)
		return err
	}
	logger.InfoCtx(ctx, "worker %d finished", r.WorkerID())
	return nil
}

// resolveMetric validates the metric flags and reports whether references are needed
func resolveMetric(opts *workerOptions) (bool, error) {
	if _, err := processor.ParseOptions(opts.config); err != nil {
		return false, err
	}
	if opts.metricCommand != "" {
		return opts.requiresReferences, nil
	}
	def, ok := processor.Default().Lookup(opts.metric)
	if !ok {
		return false, fmt.Errorf("unknown metric %q, pass --metric-command for custom metrics", opts.metric)
	}
	return def.RequiresReferences, nil
}

// buildProcessor creates the processor the compute subprocess runs
func buildProcessor(opts *workerOptions) (processor.Processor, error) {
	procOpts, err := processor.ParseOptions(opts.config)
	if err != nil {
		return nil, err
	}
	if opts.metricCommand != "" {
		return processor.NewCommand(opts.metricCommand, procOpts)
	}
	p, _, err := processor.Default().Build(opts.metric, procOpts)
	return p, err
}

func runCompute(ctx context.Context, opts *workerOptions) error {
	// stdout carries the protocol, so logs go to stderr
	if err := logger.Setup(config.LoggerConfig{Level: opts.logLevel, Output: "stderr"}); err != nil {
		return err
	}
	// the parent owns shutdown through the poison pill
	signal.Ignore(syscall.SIGINT)

	p, err := buildProcessor(opts)
	if err != nil {
		return err
	}
	return supervisor.Serve(ctx, os.Stdin, os.Stdout, p)
}
