package core

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

type JobStatus string

const (
	JobStatusRunning               JobStatus = "RUNNING"
	JobStatusCompleted             JobStatus = "COMPLETED"
	JobStatusCompletedWithFailures JobStatus = "COMPLETED_WITH_FAILURES"
	JobStatusAborted               JobStatus = "ABORTED"
)

// JobStatuses lists every job status, for exporting one gauge per status.
var JobStatuses = []JobStatus{
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusCompletedWithFailures,
	JobStatusAborted,
}

// ExitCode maps a final job status to a process exit status.
func (s JobStatus) ExitCode() int {
	switch s {
	case JobStatusCompleted:
		return 0
	case JobStatusCompletedWithFailures:
		return 2
	default:
		return 1
	}
}

func (s JobStatus) Terminal() bool {
	return s != JobStatusRunning && s != ""
}

type FileState string

const (
	FileStatePending        FileState = "PENDING"
	FileStateInFlight       FileState = "IN_FLIGHT"
	FileStateSucceeded      FileState = "SUCCEEDED"
	FileStateRetrying       FileState = "RETRYING"
	FileStateFailedTerminal FileState = "FAILED_TERMINAL"
)

// fileTransitions lists the legal next states. InFlight may fall back to
// Pending when a dispatched task never reached a worker. Succeeded may turn
// into FailedTerminal when a stateful stage fails to write output that the
// file triggered.
var fileTransitions = map[FileState][]FileState{
	FileStatePending:   {FileStateInFlight},
	FileStateInFlight:  {FileStateSucceeded, FileStateRetrying, FileStateFailedTerminal, FileStatePending},
	FileStateRetrying:  {FileStatePending, FileStateFailedTerminal},
	FileStateSucceeded: {FileStateFailedTerminal},
}

// FileTask is the coordinator's record of one input file.
type FileTask struct {
	File        pkgcore.FileReference
	State       FileState
	Attempts    int
	Transitions []FileState

	LastError string
	LastKind  pkgcore.ErrorKind

	// Set while InFlight.
	TaskID   uuid.UUID
	WorkerID string
	Deadline time.Time

	StartedAt *time.Time
	EndedAt   *time.Time
}

func NewFileTask(file pkgcore.FileReference) *FileTask {
	return &FileTask{
		File:        file,
		State:       FileStatePending,
		Transitions: []FileState{FileStatePending},
	}
}

// Transition moves the task to state to, recording it in the history.
func (t *FileTask) Transition(to FileState) error {
	if !slices.Contains(fileTransitions[t.State], to) {
		return fmt.Errorf("illegal file transition %s -> %s for %s", t.State, to, t.File.Path)
	}
	t.State = to
	t.Transitions = append(t.Transitions, to)
	return nil
}

func (t *FileTask) Terminal() bool {
	return t.State == FileStateSucceeded || t.State == FileStateFailedTerminal
}

// Clone returns a copy that shares no slices with t.
func (t *FileTask) Clone() FileTask {
	c := *t
	c.Transitions = slices.Clone(t.Transitions)
	return c
}

// FailureRecord describes a file that ended FailedTerminal.
type FailureRecord struct {
	File     string            `json:"file"`
	Kind     pkgcore.ErrorKind `json:"error_kind"`
	Message  string            `json:"message"`
	Attempts int               `json:"attempts"`
}

// Report is the persisted outcome of a job run.
type Report struct {
	JobID           uuid.UUID         `json:"job_id"`
	Name            string            `json:"name"`
	Status          JobStatus         `json:"status"`
	ExitCode        int               `json:"exit_code"`
	Cause           string            `json:"cause,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
	DurationSeconds float64           `json:"duration_seconds"`
	Statistics      map[string]any    `json:"statistics"`
	Failures        []FailureRecord   `json:"failures"`
	NotAttempted    []string          `json:"not_attempted"`
	Transforms      []transforms.Spec `json:"transforms"`
	Storage         string            `json:"storage,omitempty"`
}

type JobProgress struct {
	Total        int
	Pending      int
	InFlight     int
	Retrying     int
	Succeeded    int
	Failed       int
	NotAttempted int
}

// Job is a point-in-time projection of a run, published for status queries.
type Job struct {
	ID         uuid.UUID
	Name       string
	Status     JobStatus
	Cause      string
	Progress   JobProgress
	Files      []FileTask
	Failures   []FailureRecord
	Statistics map[string]any
	Transforms []transforms.Spec

	StartedAt   *time.Time
	CompletedAt *time.Time
}

func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt == nil {
		return time.Since(*j.StartedAt)
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// FilesInState returns the job's files in the given state, or all files
// when state is empty.
func (j *Job) FilesInState(state FileState) []FileTask {
	if state == "" {
		return j.Files
	}
	var files []FileTask
	for _, f := range j.Files {
		if f.State == state {
			files = append(files, f)
		}
	}
	return files
}

type JobFilter struct {
	Status *JobStatus
	Limit  int
	Offset int
}
