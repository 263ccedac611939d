package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nemanja-m/gotransform/internal/coordinator/storage"
	"github.com/nemanja-m/gotransform/internal/dataaccess"
	"github.com/nemanja-m/gotransform/internal/metrics"
	"github.com/nemanja-m/gotransform/internal/shared/config"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/pkg/local"
	"github.com/nemanja-m/gotransform/pkg/transforms"

	_ "github.com/nemanja-m/gotransform/transforms/builtin"
)

var exitCode int

var rootCmd = &cobra.Command{
	Use:   "gotransform",
	Short: "Run transformation jobs on a single machine",
	Long: `Apply a chain of table transforms to every file of a dataset, using a pool of
in-process workers and no network services.`,
	SilenceUsage: true,
}

var runFlags struct {
	config   string
	input    string
	output   string
	workers  int
	maxFiles int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the job described by a config file",
	Long: `Run the job described by a config file. Flags override the matching config
values. Exit status is 0 when every file succeeded, 2 when some files failed
and 1 when the job was aborted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runJob(cmd)
	},
}

var transformsCmd = &cobra.Command{
	Use:   "transforms",
	Short: "List the available transforms",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, name := range transforms.List() {
			desc, err := transforms.Describe(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\n", name, desc)
		}
		return w.Flush()
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.config, "config", "c", "", "path to config file")
	f.StringVar(&runFlags.input, "input", "", "input dataset location")
	f.StringVar(&runFlags.output, "output", "", "output location")
	f.IntVar(&runFlags.workers, "workers", 0, "number of workers")
	f.IntVar(&runFlags.maxFiles, "max-files", 0, "process at most this many files")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(transformsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func runJob(cmd *cobra.Command) error {
	cfg, err := config.LoadCoordinator(runFlags.config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cmd, cfg)

	logger, closer, err := logging.New(logging.Options{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	data, err := dataaccess.New(cfg.Input, cfg.Output, cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize data access: %w", err)
	}
	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	report, err := local.RunWith(cmd.Context(), cfg, data, storage.NewInMemoryJobStore(), collector, logger)
	if report == nil {
		return err
	}
	exitCode = report.ExitCode
	if err != nil && !errors.Is(err, local.ErrStopped) {
		logger.Error("Job did not run to completion", "error", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d failed, %d not attempted\n",
		report.JobID, report.Status, len(report.Failures), len(report.NotAttempted))
	return nil
}

// applyOverrides copies explicitly set flags over cfg and turns off every
// network service.
func applyOverrides(cmd *cobra.Command, cfg *config.CoordinatorConfig) {
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.Input.Path = runFlags.input
	}
	if f.Changed("output") {
		cfg.Output.Path = runFlags.output
	}
	if f.Changed("workers") {
		cfg.Job.Workers = runFlags.workers
	}
	if f.Changed("max-files") {
		cfg.Input.MaxFiles = runFlags.maxFiles
	}
	cfg.REST.Enabled = false
	cfg.GRPC.Enabled = false
}
