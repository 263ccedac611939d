package core

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nemanja-m/gotransform/internal/shared/rpc"
)

// ErrStaleTask is returned for reports about a task that is no longer the
// current attempt of its file, e.g. after its lease expired.
var ErrStaleTask = errors.New("task is no longer current")

// JobService answers status queries about runs.
type JobService interface {
	GetJob(id uuid.UUID) (*Job, error)
	GetLatestJob() (*Job, error)
	GetJobs(filter JobFilter) ([]*Job, int, error)
}

// TaskService hands file tasks to workers and accepts their results.
type TaskService interface {
	// Pull blocks until a task is available or the job has no more work, in
	// which case done is true.
	Pull(ctx context.Context, workerID string) (task *rpc.Task, done bool, err error)
	Report(ctx context.Context, result *rpc.Result) error
	// Heartbeat extends the lease of an in-flight task. It returns false when
	// the task is no longer the current attempt of its file.
	Heartbeat(ctx context.Context, hb rpc.Heartbeat) (bool, error)
}
