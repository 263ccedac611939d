package core

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nemanja-m/gotransform/internal/shared/rpc"
)

// ErrNoMoreTasks is returned by PullTask once the job has no work left for
// this worker.
var ErrNoMoreTasks = errors.New("no more tasks")

type CoordinatorClient interface {
	// PullTask returns the next task, or nil when none is ready yet.
	PullTask(ctx context.Context) (*rpc.Task, error)
	ReportResult(ctx context.Context, result *rpc.Result) error
	Heartbeat(ctx context.Context, taskID uuid.UUID) error
	Close() error
}

type WorkerService interface {
	Run(ctx context.Context) error
}

type TaskExecutor interface {
	Execute(ctx context.Context, task *rpc.Task) *rpc.Result
}
