package rest

import (
	"time"
)

type GetJobResponse struct {
	JobID      string          `json:"job_id"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	ExitCode   *int            `json:"exit_code,omitempty"`
	Cause      string          `json:"cause,omitempty"`
	Progress   ProgressInfo    `json:"progress"`
	Timestamps TimestampsInfo  `json:"timestamps"`
	Statistics map[string]any  `json:"statistics"`
	Failures   []FailureInfo   `json:"failures"`
	Transforms []TransformInfo `json:"transforms"`
	Links      Links           `json:"links"`
}

type ProgressInfo struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	InFlight     int `json:"in_flight"`
	Retrying     int `json:"retrying"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	NotAttempted int `json:"not_attempted"`
}

type TimestampsInfo struct {
	Started         *time.Time `json:"started"`
	Completed       *time.Time `json:"completed"`
	DurationSeconds float64    `json:"duration_seconds"`
}

type TransformInfo struct {
	Name   string            `json:"name"`
	Config map[string]string `json:"config,omitempty"`
}

type Links struct {
	Self     string `json:"self"`
	Files    string `json:"files"`
	Failures string `json:"failures"`
}

type FailureInfo struct {
	File      string `json:"file"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Attempts  int    `json:"attempts"`
}

type ListJobsResponse struct {
	Jobs       []JobSummary `json:"jobs"`
	Total      int          `json:"total"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
	NextOffset *int         `json:"next_offset,omitempty"`
}

type JobSummary struct {
	JobID       string     `json:"job_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Files       int        `json:"files"`
	Failed      int        `json:"failed"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type GetFilesResponse struct {
	Files []FileInfo `json:"files"`
}

type FileInfo struct {
	Index       int        `json:"index"`
	Path        string     `json:"path"`
	Size        int64      `json:"size"`
	State       string     `json:"state"`
	Attempts    int        `json:"attempts"`
	WorkerID    string     `json:"worker_id,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Transitions []string   `json:"transitions"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

type GetFailuresResponse struct {
	Failures []FailureInfo `json:"failures"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
