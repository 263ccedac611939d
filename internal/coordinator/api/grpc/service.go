package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/internal/shared/rpc"
)

// CoordinatorService exposes a core.TaskService to remote workers.
type CoordinatorService struct {
	tasks    core.TaskService
	pullWait time.Duration

	logger logging.Logger
}

var _ rpc.CoordinatorServer = (*CoordinatorService)(nil)

func NewCoordinatorService(tasks core.TaskService, pullWait time.Duration, logger logging.Logger) *CoordinatorService {
	return &CoordinatorService{
		tasks:    tasks,
		pullWait: pullWait,
		logger:   logger,
	}
}

// PullTask parks the request for at most pullWait. A response with neither
// a task nor done tells the worker to ask again.
func (s *CoordinatorService) PullTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	workerID := rpc.PullRequestFromStruct(req)
	if workerID == "" {
		return nil, status.Error(codes.InvalidArgument, "worker_id is required")
	}

	pullCtx := ctx
	if s.pullWait > 0 {
		var cancel context.CancelFunc
		pullCtx, cancel = context.WithTimeout(ctx, s.pullWait)
		defer cancel()
	}

	task, done, err := s.tasks.Pull(pullCtx, workerID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return rpc.PullResponse{}.ToStruct()
		}
		s.logger.Error("Failed to pull task", "worker_id", workerID, "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	if task != nil {
		s.logger.Debug("Task dispatched to remote worker",
			"worker_id", workerID,
			"task_id", task.ID.String(),
			"path", task.File.Path,
			"attempt", task.Attempt,
		)
	}
	return rpc.PullResponse{Task: task, Done: done}.ToStruct()
}

func (s *CoordinatorService) ReportResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	result, err := rpc.ResultFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	err = s.tasks.Report(ctx, result)
	switch {
	case errors.Is(err, core.ErrStaleTask):
		s.logger.Warn("Ignoring stale result",
			"worker_id", result.WorkerID,
			"task_id", result.TaskID.String(),
			"attempt", result.Attempt,
		)
		return rpc.Ack(false), nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return rpc.Ack(true), nil
}

func (s *CoordinatorService) Heartbeat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	hb, err := rpc.HeartbeatFromStruct(req)
	if err != nil {
		s.logger.Error("Invalid heartbeat", "error", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ok, err := s.tasks.Heartbeat(ctx, hb)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}

	s.logger.Debug("Heartbeat received", "worker_id", hb.WorkerID, "task_id", hb.TaskID.String(), "accepted", ok)
	return rpc.Ack(ok), nil
}
