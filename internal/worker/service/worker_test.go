package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/internal/shared/rpc"
	"github.com/nemanja-m/gotransform/internal/worker/core"
	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
)

type mockCoordinatorClient struct {
	mu sync.Mutex

	tasks       []*rpc.Task
	taskIndex   int
	pullErrs    []error // returned before any task
	onPull      func(task *rpc.Task)
	heartbeats  int
	reported    []*rpc.Result
	reportErr   error
	idleReturns int // pulls answered with nil before tasks are handed out
}

func (m *mockCoordinatorClient) PullTask(ctx context.Context) (*rpc.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pullErrs) > 0 {
		err := m.pullErrs[0]
		m.pullErrs = m.pullErrs[1:]
		return nil, err
	}
	if m.idleReturns > 0 {
		m.idleReturns--
		return nil, nil
	}
	if m.taskIndex >= len(m.tasks) {
		return nil, core.ErrNoMoreTasks
	}
	task := m.tasks[m.taskIndex]
	m.taskIndex++
	if m.onPull != nil {
		m.onPull(task)
	}
	return task, nil
}

func (m *mockCoordinatorClient) ReportResult(ctx context.Context, result *rpc.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported = append(m.reported, result)
	return m.reportErr
}

func (m *mockCoordinatorClient) Heartbeat(ctx context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return nil
}

func (m *mockCoordinatorClient) Close() error {
	return nil
}

type mockExecutor struct {
	mu       sync.Mutex
	executed []uuid.UUID
	delay    time.Duration
	err      error
}

func (m *mockExecutor) Execute(ctx context.Context, task *rpc.Task) *rpc.Result {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, task.ID)
	r := &rpc.Result{TaskID: task.ID, FileIndex: task.File.Index, Attempt: task.Attempt, Status: pkgcore.OutcomeSuccess}
	if m.err != nil {
		r.Status = pkgcore.OutcomeFailure
		r.SetErr(m.err)
	}
	return r
}

func newTasks(n int) []*rpc.Task {
	tasks := make([]*rpc.Task, n)
	for i := range tasks {
		tasks[i] = &rpc.Task{ID: uuid.New(), File: pkgcore.FileReference{Path: "f.parquet", Index: i}, Attempt: 1}
	}
	return tasks
}

func TestWorkerService_ProcessesUntilNoMoreTasks(t *testing.T) {
	client := &mockCoordinatorClient{tasks: newTasks(3)}
	executor := &mockExecutor{}

	svc := NewWorkerService("w1", client, executor, 0, logging.Nop())
	require.NoError(t, svc.Run(context.Background()))

	require.Len(t, client.reported, 3)
	for i, r := range client.reported {
		assert.Equal(t, "w1", r.WorkerID)
		assert.Equal(t, i, r.FileIndex)
	}
	assert.Len(t, executor.executed, 3)
}

func TestWorkerService_ReportsFailures(t *testing.T) {
	client := &mockCoordinatorClient{tasks: newTasks(1)}
	executor := &mockExecutor{err: pkgcore.Errorf(pkgcore.KindTransform, "bad input")}

	svc := NewWorkerService("w1", client, executor, 0, logging.Nop())
	require.NoError(t, svc.Run(context.Background()))

	require.Len(t, client.reported, 1)
	assert.Equal(t, pkgcore.OutcomeFailure, client.reported[0].Status)
	assert.Equal(t, pkgcore.KindTransform, client.reported[0].ErrKind)
}

func TestWorkerService_BacksOffOnPullErrors(t *testing.T) {
	client := &mockCoordinatorClient{
		tasks:       newTasks(1),
		pullErrs:    []error{errors.New("unavailable"), errors.New("unavailable")},
		idleReturns: 1,
	}
	executor := &mockExecutor{}

	start := time.Now()
	svc := NewWorkerService("w1", client, executor, 0, logging.Nop())
	require.NoError(t, svc.Run(context.Background()))

	// 100ms + 200ms + 400ms of backoff before the task is handed out.
	assert.GreaterOrEqual(t, time.Since(start), 700*time.Millisecond)
	assert.Len(t, client.reported, 1)
}

func TestWorkerService_FinishesPulledTaskAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockCoordinatorClient{tasks: newTasks(3)}
	client.onPull = func(task *rpc.Task) {
		if task.File.Index == 0 {
			cancel()
		}
	}
	executor := &mockExecutor{}

	svc := NewWorkerService("w1", client, executor, 0, logging.Nop())
	require.NoError(t, svc.Run(ctx))

	require.Len(t, client.reported, 1)
	assert.Equal(t, 0, client.reported[0].FileIndex)
	assert.Equal(t, 1, client.taskIndex)
}

func TestWorkerService_StopsWhileBackingOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockCoordinatorClient{pullErrs: []error{errors.New("unavailable")}}

	done := make(chan error, 1)
	svc := NewWorkerService("w1", client, &mockExecutor{}, 0, logging.Nop())
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorkerService_SendsHeartbeatsWhileExecuting(t *testing.T) {
	client := &mockCoordinatorClient{tasks: newTasks(1)}
	executor := &mockExecutor{delay: 200 * time.Millisecond}

	svc := NewWorkerService("w1", client, executor, 20*time.Millisecond, logging.Nop())
	require.NoError(t, svc.Run(context.Background()))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.GreaterOrEqual(t, client.heartbeats, 3)
}
