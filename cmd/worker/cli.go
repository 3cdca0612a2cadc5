package main

import (
	"fmt"
	"time"

	"mteval/internal/worker/processor"

	"github.com/spf13/cobra"
)

// workerOptions flags shared by the run and compute commands
type workerOptions struct {
	host               string
	token              string
	username           string
	namespace          string
	metric             string
	metricCommand      string
	requiresReferences bool
	mode               string
	logLevel           string
	config             string
	queue              string

	heartbeatInterval time.Duration
	pollInterval      time.Duration
	httpTimeout       time.Duration
	maxFailures       int
	stopTimeout       time.Duration
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mteval-worker",
		Short:         "Metric worker for the MT evaluation scheduler",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newComputeCommand())
	rootCmd.AddCommand(newMetricsCommand())
	return rootCmd
}

func newRunCommand() *cobra.Command {
	opts := &workerOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Register with the scheduler and compute jobs for one metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "http://localhost:8000", "scheduler base URL")
	f.StringVar(&opts.token, "token", "", "bearer token for the scheduler API")
	f.StringVar(&opts.username, "username", "", "user that owns the worker (optional)")
	f.StringVar(&opts.namespace, "namespace", "default", "namespace to work in")
	f.StringVar(&opts.queue, "queue", "", "job queue (defaults to the scheduler's default queue)")
	addMetricFlags(cmd, opts)
	f.BoolVar(&opts.requiresReferences, "requires-references", false, "the --metric-command metric needs reference translations")
	f.StringVar(&opts.mode, "mode", "persistent", "persistent or one-shot")
	f.DurationVar(&opts.heartbeatInterval, "heartbeat-interval", 5*time.Second, "heartbeat period")
	f.DurationVar(&opts.pollInterval, "poll-interval", 5*time.Second, "sleep between empty polls in persistent mode")
	f.DurationVar(&opts.httpTimeout, "http-timeout", 60*time.Second, "timeout of each scheduler request")
	f.IntVar(&opts.maxFailures, "max-failures", 3, "consecutive subprocess failures before giving up")
	f.DurationVar(&opts.stopTimeout, "stop-timeout", 10*time.Second, "subprocess stop budget")
	return cmd
}

func newComputeCommand() *cobra.Command {
	opts := &workerOptions{}
	cmd := &cobra.Command{
		Use:    "compute",
		Short:  "Metric subprocess entrypoint (reads work on stdin, writes results to stdout)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(cmd.Context(), opts)
		},
	}
	addMetricFlags(cmd, opts)
	return cmd
}

func addMetricFlags(cmd *cobra.Command, opts *workerOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.metric, "metric", "", "metric name")
	f.StringVar(&opts.metricCommand, "metric-command", "", "external executable that scores one job (JSON on stdin and stdout)")
	f.StringVar(&opts.config, "config", "", "processor configuration as a JSON object")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	_ = cmd.MarkFlagRequired("metric")
}

func newMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List built-in metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := processor.Default()
			for _, name := range registry.Names() {
				def, _ := registry.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\trequires_references=%t\n", name, def.RequiresReferences)
			}
			return nil
		},
	}
}

// computeArgs rebuilds the flags the compute subprocess needs
func computeArgs(opts *workerOptions) []string {
	args := []string{"compute", "--metric", opts.metric, "--log-level", opts.logLevel}
	if opts.metricCommand != "" {
		args = append(args, "--metric-command", opts.metricCommand)
	}
	if opts.config != "" {
		args = append(args, "--config", opts.config)
	}
	return args
}
