package rest

import (
	"fmt"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
)

func ToGetJobResponse(job *core.Job) GetJobResponse {
	failures := make([]FailureInfo, 0, len(job.Failures))
	for _, f := range job.Failures {
		failures = append(failures, ToFailureInfo(f))
	}

	transforms := make([]TransformInfo, 0, len(job.Transforms))
	for _, s := range job.Transforms {
		transforms = append(transforms, TransformInfo{Name: s.Name, Config: s.Config})
	}

	statistics := job.Statistics
	if statistics == nil {
		statistics = map[string]any{}
	}

	var exitCode *int
	if job.Status.Terminal() {
		code := job.Status.ExitCode()
		exitCode = &code
	}

	self := fmt.Sprintf("/api/jobs/%s", job.ID)
	return GetJobResponse{
		JobID:    job.ID.String(),
		Name:     job.Name,
		Status:   string(job.Status),
		ExitCode: exitCode,
		Cause:    job.Cause,
		Progress: ProgressInfo{
			Total:        job.Progress.Total,
			Pending:      job.Progress.Pending,
			InFlight:     job.Progress.InFlight,
			Retrying:     job.Progress.Retrying,
			Succeeded:    job.Progress.Succeeded,
			Failed:       job.Progress.Failed,
			NotAttempted: job.Progress.NotAttempted,
		},
		Timestamps: TimestampsInfo{
			Started:         job.StartedAt,
			Completed:       job.CompletedAt,
			DurationSeconds: job.Duration().Seconds(),
		},
		Statistics: statistics,
		Failures:   failures,
		Transforms: transforms,
		Links: Links{
			Self:     self,
			Files:    self + "/files",
			Failures: self + "/failures",
		},
	}
}

func ToJobSummary(job *core.Job) JobSummary {
	return JobSummary{
		JobID:       job.ID.String(),
		Name:        job.Name,
		Status:      string(job.Status),
		Files:       job.Progress.Total,
		Failed:      job.Progress.Failed,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

func ToFileInfo(ft *core.FileTask) FileInfo {
	transitions := make([]string, len(ft.Transitions))
	for i, s := range ft.Transitions {
		transitions[i] = string(s)
	}
	info := FileInfo{
		Index:       ft.File.Index,
		Path:        ft.File.Path,
		Size:        ft.File.Size,
		State:       string(ft.State),
		Attempts:    ft.Attempts,
		ErrorKind:   string(ft.LastKind),
		LastError:   ft.LastError,
		Transitions: transitions,
		StartTime:   ft.StartedAt,
		EndTime:     ft.EndedAt,
	}
	if ft.State == core.FileStateInFlight {
		info.WorkerID = ft.WorkerID
	}
	return info
}

func ToFailureInfo(f core.FailureRecord) FailureInfo {
	return FailureInfo{
		File:      f.File,
		ErrorKind: string(f.Kind),
		Message:   f.Message,
		Attempts:  f.Attempts,
	}
}
