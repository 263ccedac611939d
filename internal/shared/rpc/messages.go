// Package rpc defines the messages exchanged between the coordinator and its
// workers and their protobuf encoding. Messages travel as structpb.Struct so
// the service needs no generated code.
package rpc

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nemanja-m/gotransform/pkg/core"
)

// Task asks a worker to process one file.
type Task struct {
	ID      uuid.UUID
	JobID   uuid.UUID
	File    core.FileReference
	Attempt int
	// Collect asks the worker to return its tables instead of writing them.
	Collect bool
}

// Result is a worker's report for one task.
type Result struct {
	TaskID    uuid.UUID
	WorkerID  string
	FileIndex int
	Attempt   int
	Status    core.OutcomeStatus
	Metrics   core.Metrics
	Outputs   []string

	ErrKind    core.ErrorKind
	ErrStage   string
	ErrMessage string
	Transient  bool

	// Tables is only set by in-process workers running with Collect.
	Tables []*core.Table
}

// SetErr records err on the result, keeping its classification.
func (r *Result) SetErr(err error) {
	if err == nil {
		return
	}
	var e *core.Error
	if errors.As(err, &e) {
		r.ErrKind = e.Kind
		r.ErrStage = e.Stage
		r.Transient = e.Transient
		if e.Err != nil {
			r.ErrMessage = e.Err.Error()
		}
		return
	}
	r.ErrKind = core.KindOf(err)
	r.ErrMessage = err.Error()
}

// Err rebuilds the classified error carried by the result, or nil.
func (r *Result) Err() error {
	if r.Status != core.OutcomeFailure {
		return nil
	}
	kind := r.ErrKind
	if kind == "" {
		kind = core.KindTransform
	}
	return &core.Error{
		Kind:      kind,
		Stage:     r.ErrStage,
		Transient: r.Transient,
		Err:       errors.New(r.ErrMessage),
	}
}

// PullResponse carries either a task or the signal that no work remains.
type PullResponse struct {
	Task *Task
	Done bool
}

func PullRequestToStruct(workerID string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"worker_id": workerID})
}

func PullRequestFromStruct(s *structpb.Struct) string {
	return s.GetFields()["worker_id"].GetStringValue()
}

// Heartbeat tells the coordinator a worker is still processing a task.
type Heartbeat struct {
	TaskID   uuid.UUID
	WorkerID string
}

func (h Heartbeat) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"task_id":   h.TaskID.String(),
		"worker_id": h.WorkerID,
	})
}

func HeartbeatFromStruct(s *structpb.Struct) (Heartbeat, error) {
	f := s.GetFields()
	id, err := uuid.Parse(f["task_id"].GetStringValue())
	if err != nil {
		return Heartbeat{}, fmt.Errorf("invalid task id: %w", err)
	}
	return Heartbeat{TaskID: id, WorkerID: f["worker_id"].GetStringValue()}, nil
}

// Ack is the reply to reports and heartbeats. Accepted is false when the
// coordinator no longer tracks the task, e.g. after its lease expired.
func Ack(accepted bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"accepted": structpb.NewBoolValue(accepted),
	}}
}

func Accepted(s *structpb.Struct) bool {
	return s.GetFields()["accepted"].GetBoolValue()
}

func (t *Task) fields() map[string]any {
	return map[string]any{
		"id":         t.ID.String(),
		"job_id":     t.JobID.String(),
		"path":       t.File.Path,
		"size":       t.File.Size,
		"file_index": t.File.Index,
		"attempt":    t.Attempt,
		"collect":    t.Collect,
	}
}

func taskFromFields(f map[string]*structpb.Value) (*Task, error) {
	id, err := uuid.Parse(f["id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid task id: %w", err)
	}
	jobID, err := uuid.Parse(f["job_id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid job id: %w", err)
	}
	return &Task{
		ID:    id,
		JobID: jobID,
		File: core.FileReference{
			Path:  f["path"].GetStringValue(),
			Size:  int64(f["size"].GetNumberValue()),
			Index: int(f["file_index"].GetNumberValue()),
		},
		Attempt: int(f["attempt"].GetNumberValue()),
		Collect: f["collect"].GetBoolValue(),
	}, nil
}

func (p PullResponse) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{"done": p.Done}
	if p.Task != nil {
		m["task"] = p.Task.fields()
	}
	return structpb.NewStruct(m)
}

func PullResponseFromStruct(s *structpb.Struct) (PullResponse, error) {
	f := s.GetFields()
	resp := PullResponse{Done: f["done"].GetBoolValue()}
	if tv, ok := f["task"]; ok && tv.GetStructValue() != nil {
		task, err := taskFromFields(tv.GetStructValue().GetFields())
		if err != nil {
			return PullResponse{}, err
		}
		resp.Task = task
	}
	return resp, nil
}

// ToStruct encodes everything but Tables, which never cross the wire.
// Metric values without a protobuf representation are sent as strings.
func (r *Result) ToStruct() (*structpb.Struct, error) {
	metrics := make(map[string]any, len(r.Metrics))
	for k, v := range r.Metrics {
		if _, err := structpb.NewValue(v); err != nil {
			v = fmt.Sprint(v)
		}
		metrics[k] = v
	}
	outputs := make([]any, len(r.Outputs))
	for i, o := range r.Outputs {
		outputs[i] = o
	}
	return structpb.NewStruct(map[string]any{
		"task_id":     r.TaskID.String(),
		"worker_id":   r.WorkerID,
		"file_index":  r.FileIndex,
		"attempt":     r.Attempt,
		"status":      string(r.Status),
		"metrics":     metrics,
		"outputs":     outputs,
		"err_kind":    string(r.ErrKind),
		"err_stage":   r.ErrStage,
		"err_message": r.ErrMessage,
		"transient":   r.Transient,
	})
}

func ResultFromStruct(s *structpb.Struct) (*Result, error) {
	f := s.GetFields()
	taskID, err := uuid.Parse(f["task_id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid task id: %w", err)
	}
	r := &Result{
		TaskID:     taskID,
		WorkerID:   f["worker_id"].GetStringValue(),
		FileIndex:  int(f["file_index"].GetNumberValue()),
		Attempt:    int(f["attempt"].GetNumberValue()),
		Status:     core.OutcomeStatus(f["status"].GetStringValue()),
		ErrKind:    core.ErrorKind(f["err_kind"].GetStringValue()),
		ErrStage:   f["err_stage"].GetStringValue(),
		ErrMessage: f["err_message"].GetStringValue(),
		Transient:  f["transient"].GetBoolValue(),
	}
	if m := f["metrics"].GetStructValue(); m != nil {
		r.Metrics = core.Metrics(m.AsMap())
	}
	for _, o := range f["outputs"].GetListValue().GetValues() {
		r.Outputs = append(r.Outputs, o.GetStringValue())
	}
	return r, nil
}
