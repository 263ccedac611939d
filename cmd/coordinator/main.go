package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	coordgrpc "github.com/nemanja-m/gotransform/internal/coordinator/api/grpc"
	"github.com/nemanja-m/gotransform/internal/coordinator/api/rest"
	"github.com/nemanja-m/gotransform/internal/coordinator/service"
	"github.com/nemanja-m/gotransform/internal/coordinator/storage"
	"github.com/nemanja-m/gotransform/internal/dataaccess"
	"github.com/nemanja-m/gotransform/internal/metrics"
	"github.com/nemanja-m/gotransform/internal/shared/config"
	"github.com/nemanja-m/gotransform/internal/shared/logging"

	_ "github.com/nemanja-m/gotransform/transforms/builtin"
)

const shutdownTimeout = 30 * time.Second

var (
	configPath  string
	keepServing bool

	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run a transformation job",
	Long: `Enumerate the input dataset, dispatch every file to local and remote workers,
and write the transformed tables plus a job report to the output location.

The process exits with 0 when every file succeeded, 2 when some files failed
and 1 when the job was aborted.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.Flags().BoolVar(&keepServing, "keep-serving", false,
		"keep the REST API up after the job finishes until interrupted")
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

func run(ctx context.Context) error {
	cfg, err := config.LoadCoordinator(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
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

	data, err := dataaccess.New(cfg.Input, cfg.Output, cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize data access: %w", err)
	}
	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	store := storage.NewInMemoryJobStore()
	orchestrator := service.NewOrchestrator(cfg, data, store, collector, logger)

	// Both listeners are bound before the job starts so a taken port fails
	// the command instead of leaving remote workers with nowhere to connect.
	var grpcServer *coordgrpc.Server
	if cfg.GRPC.Enabled {
		grpcServer = coordgrpc.NewServer(cfg.GRPC, orchestrator, logger)
		lis, err := grpcServer.Listen()
		if err != nil {
			return err
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server failed", "error", err)
			}
		}()
	}

	var restServer *http.Server
	if cfg.REST.Enabled {
		restServer = rest.NewServer(cfg.REST, service.NewJobService(store), collector.Registry(), logger)
		lis, err := net.Listen("tcp", cfg.REST.Addr)
		if err != nil {
			err = fmt.Errorf("failed to listen on %s: %w", cfg.REST.Addr, err)
			return multierror.Append(err, shutdown(nil, grpcServer)).ErrorOrNil()
		}
		go func() {
			logger.Info("REST API listening", "addr", lis.Addr().String())
			if err := restServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("REST server failed", "error", err)
			}
		}()
	}

	report, runErr := orchestrator.Run(ctx)
	if runErr != nil && !errors.Is(runErr, service.ErrStopped) {
		logger.Error("Job did not run to completion", "error", runErr)
	}
	if report != nil {
		exitCode = report.ExitCode
	} else {
		exitCode = 1
	}

	if keepServing && restServer != nil && ctx.Err() == nil {
		logger.Info("Job finished, REST API stays up until interrupted", "addr", cfg.REST.Addr)
		<-ctx.Done()
	}

	if err := shutdown(restServer, grpcServer); err != nil {
		logger.Error("Shutdown finished with errors", "error", err)
	}
	return nil
}

func shutdown(restServer *http.Server, grpcServer *coordgrpc.Server) error {
	var result *multierror.Error

	if grpcServer != nil {
		grpcServer.Stop(shutdownTimeout)
	}
	if restServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := restServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("rest: %w", err))
		}
	}
	return result.ErrorOrNil()
}
