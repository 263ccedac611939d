package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nemanja-m/gotransform/internal/dataaccess"
	"github.com/nemanja-m/gotransform/internal/shared/config"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/internal/worker/api/grpc"
	"github.com/nemanja-m/gotransform/internal/worker/service"
	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"

	_ "github.com/nemanja-m/gotransform/transforms/builtin"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process files handed out by a coordinator",
	Long: `Connect to a coordinator's gRPC API, pull one file at a time, run the
configured transform chain over it and report the outcome. The worker exits
once the coordinator has no more work.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadWorker(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return pkgcore.NewError(pkgcore.KindConfiguration, err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = uuid.New().String()
	}

	chain, err := transforms.BuildChain(cfg.Job.Transforms)
	if err != nil {
		return err
	}
	if chain.HasAccumulator() {
		return pkgcore.Errorf(pkgcore.KindConfiguration,
			"stateful transform %s can only run inside the coordinator", chain.Accumulator().Name())
	}

	data, err := dataaccess.New(cfg.Input, cfg.Output, cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize data access: %w", err)
	}

	client, err := grpc.NewCoordinatorClient(cfg.Coordinator, workerID)
	if err != nil {
		return err
	}
	defer client.Close()

	processor := service.NewTableProcessor(data, chain, logger)
	worker := service.NewWorkerService(workerID, client, processor, cfg.Worker.HeartbeatInterval, logger)

	hint := chain.Resources()
	logger.Info("Worker started",
		"worker_id", workerID,
		"coordinator", cfg.Coordinator.Addr,
		"transforms", chain.Names(),
		"cpu_hint", hint.CPU,
		"memory_hint_bytes", hint.MemoryBytes,
		"heartbeat", cfg.Worker.HeartbeatInterval.String(),
	)

	if err := worker.Run(ctx); err != nil {
		return err
	}
	logger.Info("Shutting down worker", "worker_id", workerID)
	return nil
}
