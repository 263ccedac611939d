package service

import (
	"context"
	"errors"
	"time"

	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/internal/worker/core"
)

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

type workerService struct {
	id                string
	client            core.CoordinatorClient
	executor          core.TaskExecutor
	heartbeatInterval time.Duration
	logger            logging.Logger
}

// NewWorkerService returns a worker that pulls one file at a time until the
// coordinator reports no more work or ctx is cancelled. A zero
// heartbeatInterval disables lease heartbeats.
func NewWorkerService(
	id string,
	client core.CoordinatorClient,
	executor core.TaskExecutor,
	heartbeatInterval time.Duration,
	logger logging.Logger,
) core.WorkerService {
	return &workerService{
		id:                id,
		client:            client,
		executor:          executor,
		heartbeatInterval: heartbeatInterval,
		logger:            logger.With("worker_id", id),
	}
}

// Run checks for cancellation only between files. A file that has been
// pulled is always processed and reported, even after ctx is cancelled.
func (w *workerService) Run(ctx context.Context) error {
	backoff := minBackoff

	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker stopped")
			return nil
		}

		task, err := w.client.PullTask(ctx)
		if errors.Is(err, core.ErrNoMoreTasks) {
			w.logger.Info("No more tasks, worker exiting")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("Failed to pull task", "error", err)
			if !sleep(ctx, backoff) {
				continue
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if task == nil {
			if sleep(ctx, backoff) {
				backoff = min(backoff*2, maxBackoff)
			}
			continue
		}

		backoff = minBackoff

		w.logger.Info("Received task",
			"task_id", task.ID.String(),
			"path", task.File.Path,
			"attempt", task.Attempt,
		)

		// Pulled files are finished regardless of cancellation.
		taskCtx := context.WithoutCancel(ctx)
		stopHeartbeat := w.startHeartbeat(taskCtx, task.ID.String(), func(hctx context.Context) error {
			return w.client.Heartbeat(hctx, task.ID)
		})
		result := w.executor.Execute(taskCtx, task)
		stopHeartbeat()

		result.WorkerID = w.id
		if result.Err() == nil {
			w.logger.Info("Task completed", "task_id", task.ID.String(), "status", result.Status)
		} else {
			w.logger.Error("Task execution failed", "task_id", task.ID.String(), "error", result.Err())
		}
		if err := w.client.ReportResult(taskCtx, result); err != nil {
			w.logger.Error("Failed to report task result", "task_id", task.ID.String(), "error", err)
		}
	}
}

func (w *workerService) startHeartbeat(ctx context.Context, taskID string, beat func(context.Context) error) func() {
	if w.heartbeatInterval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := beat(ctx)
				switch {
				case ctx.Err() != nil:
					return
				case err != nil:
					w.logger.Warn("Failed to send heartbeat", "task_id", taskID, "error", err)
				default:
					w.logger.Debug("Heartbeat sent", "task_id", taskID)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
