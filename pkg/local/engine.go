// Package local runs a whole transformation job inside the calling process,
// with every worker as a goroutine and no network services.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/coordinator/service"
	"github.com/nemanja-m/gotransform/internal/coordinator/stats"
	"github.com/nemanja-m/gotransform/internal/coordinator/storage"
	"github.com/nemanja-m/gotransform/internal/dataaccess"
	"github.com/nemanja-m/gotransform/internal/metrics"
	"github.com/nemanja-m/gotransform/internal/shared/config"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/pkg/transforms"

	_ "github.com/nemanja-m/gotransform/transforms/builtin"
)

type (
	Report        = core.Report
	FailureRecord = core.FailureRecord
)

// ErrStopped is returned when the context was cancelled before every file
// was attempted.
var ErrStopped = service.ErrStopped

// Config describes a job over a local directory tree.
type Config struct {
	Name string
	// Workers defaults to the number of CPUs.
	Workers     int
	MaxRetries  int
	TaskTimeout time.Duration
	Transforms  []transforms.Spec

	Input         string
	Output        string
	Extensions    []string
	MaxFiles      int
	Checkpointing bool

	// Pushgateway, when set, receives the job's metrics at the end.
	Pushgateway string

	LogLevel  string
	LogFormat string
	LogOutput io.Writer
}

type Engine struct {
	config Config
}

func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Run executes the job. The report is returned even when the job aborts;
// its ExitCode is the process status a CLI should use.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if e.config.Input == "" || e.config.Output == "" {
		return nil, errors.New("input and output directories are required")
	}
	cfg := e.coordinatorConfig()

	logger, closer, err := logging.New(logging.Options{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: e.config.LogOutput,
	})
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	data, err := dataaccess.New(cfg.Input, cfg.Output, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data access: %w", err)
	}
	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return RunWith(ctx, cfg, data, storage.NewInMemoryJobStore(), collector, logger)
}

// RunWith runs a fully assembled job.
func RunWith(
	ctx context.Context,
	cfg *config.CoordinatorConfig,
	data dataaccess.DataAccess,
	store core.JobStore,
	collector *metrics.Collector,
	logger logging.Logger,
) (*Report, error) {
	return service.NewOrchestrator(cfg, data, store, collector, logger).Run(ctx)
}

func (e *Engine) coordinatorConfig() *config.CoordinatorConfig {
	c := e.config

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	name := c.Name
	if name == "" {
		name = "gotransform"
	}
	extensions := c.Extensions
	if extensions == nil {
		extensions = []string{".parquet"}
	}
	level := c.LogLevel
	if level == "" {
		level = "info"
	}

	return &config.CoordinatorConfig{
		DataConfig: config.DataConfig{
			Job: config.JobConfig{
				Name:        name,
				Workers:     workers,
				MaxRetries:  c.MaxRetries,
				TaskTimeout: c.TaskTimeout,
				Transforms:  c.Transforms,
			},
			Input: config.InputConfig{
				Type:          "local",
				Path:          c.Input,
				Extensions:    extensions,
				MaxFiles:      c.MaxFiles,
				Checkpointing: c.Checkpointing,
			},
			Output:  config.OutputConfig{Type: "local", Path: c.Output},
			Logging: config.LoggingConfig{Level: level, Format: c.LogFormat},
		},
		Statistics: config.StatisticsConfig{
			MaxKeys: stats.DefaultMaxKeys,
			MinKeys: stats.DefaultMinKeys,
		},
		Metrics: config.MetricsConfig{PushgatewayURL: c.Pushgateway, JobName: name},
	}
}
