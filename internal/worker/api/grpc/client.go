package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/nemanja-m/gotransform/internal/shared/config"
	"github.com/nemanja-m/gotransform/internal/shared/rpc"
	"github.com/nemanja-m/gotransform/internal/worker/core"
)

// ErrRejected is returned when the coordinator no longer tracks the task a
// report or heartbeat refers to.
var ErrRejected = errors.New("coordinator rejected the task")

type CoordinatorClient struct {
	conn   *grpc.ClientConn
	client *rpc.CoordinatorStub

	workerID    string
	pullTimeout time.Duration
}

var _ core.CoordinatorClient = (*CoordinatorClient)(nil)

func NewCoordinatorClient(cfg config.CoordinatorConnConfig, workerID string, opts ...grpc.DialOption) (*CoordinatorClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(
			keepalive.ClientParameters{
				Time:                cfg.GRPC.KeepaliveTime,
				Timeout:             cfg.GRPC.KeepaliveTimeout,
				PermitWithoutStream: true,
			},
		),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator: %w", err)
	}

	return &CoordinatorClient{
		conn:        conn,
		client:      rpc.NewCoordinatorStub(conn),
		workerID:    workerID,
		pullTimeout: cfg.PullTimeout,
	}, nil
}

// PullTask returns nil when the coordinator had no work before the pull
// timeout elapsed, and core.ErrNoMoreTasks once the job is finished.
func (c *CoordinatorClient) PullTask(ctx context.Context) (*rpc.Task, error) {
	req, err := rpc.PullRequestToStruct(c.workerID)
	if err != nil {
		return nil, err
	}

	if c.pullTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.pullTimeout)
		defer cancel()
	}

	out, err := c.client.PullTask(ctx, req, grpc.WaitForReady(true))
	if err != nil {
		if status.Code(err) == codes.DeadlineExceeded && ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pull task: %w", err)
	}

	resp, err := rpc.PullResponseFromStruct(out)
	if err != nil {
		return nil, fmt.Errorf("invalid pull response: %w", err)
	}
	if resp.Done {
		return nil, core.ErrNoMoreTasks
	}
	return resp.Task, nil
}

func (c *CoordinatorClient) ReportResult(ctx context.Context, result *rpc.Result) error {
	req, err := result.ToStruct()
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	out, err := c.client.ReportResult(ctx, req, grpc.WaitForReady(true))
	if err != nil {
		return fmt.Errorf("failed to report result: %w", err)
	}
	if !rpc.Accepted(out) {
		return ErrRejected
	}
	return nil
}

func (c *CoordinatorClient) Heartbeat(ctx context.Context, taskID uuid.UUID) error {
	req, err := rpc.Heartbeat{TaskID: taskID, WorkerID: c.workerID}.ToStruct()
	if err != nil {
		return err
	}
	out, err := c.client.Heartbeat(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	if !rpc.Accepted(out) {
		return ErrRejected
	}
	return nil
}

func (c *CoordinatorClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
