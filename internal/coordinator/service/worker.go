package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nemanja-m/gotransform/internal/shared/rpc"
	workercore "github.com/nemanja-m/gotransform/internal/worker/core"
	workerservice "github.com/nemanja-m/gotransform/internal/worker/service"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

// localClient connects an in-process worker to the orchestrator without a
// network hop.
type localClient struct {
	o        *Orchestrator
	workerID string
}

var _ workercore.CoordinatorClient = (*localClient)(nil)

func (c *localClient) PullTask(ctx context.Context) (*rpc.Task, error) {
	task, done, err := c.o.pull(ctx, c.workerID, false)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, workercore.ErrNoMoreTasks
	}
	return task, nil
}

func (c *localClient) ReportResult(ctx context.Context, result *rpc.Result) error {
	return c.o.Report(ctx, result)
}

func (c *localClient) Heartbeat(ctx context.Context, taskID uuid.UUID) error {
	ok, err := c.o.Heartbeat(ctx, rpc.Heartbeat{TaskID: taskID, WorkerID: c.workerID})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("task lease no longer held")
	}
	return nil
}

func (c *localClient) Close() error {
	return nil
}

// startLocalWorkers runs one worker per chain. Each worker owns its chain.
func (o *Orchestrator) startLocalWorkers(ctx context.Context, g *errgroup.Group, chains []*transforms.Chain) {
	// Local workers only need heartbeats when a task timeout is set.
	var heartbeat time.Duration
	if t := o.cfg.Job.TaskTimeout; t > 0 {
		heartbeat = t / 3
	}

	for i, chain := range chains {
		id := fmt.Sprintf("local-%d", i)
		executor := workerservice.NewTableProcessor(o.data, chain, o.logger)
		client := &localClient{o: o, workerID: id}
		worker := workerservice.NewWorkerService(id, client, executor, heartbeat, o.logger)
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}
}
