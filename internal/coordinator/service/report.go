package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/coordinator/stats"
)

// run ties a scheduler to the metadata needed to project it as a core.Job.
// sched and agg are nil when the job aborted before enumeration finished.
type run struct {
	o       *Orchestrator
	started time.Time
	sched   *scheduler
	agg     *stats.Aggregator
}

func newRun(o *Orchestrator, started time.Time, sched *scheduler, agg *stats.Aggregator) *run {
	if agg == nil {
		agg = stats.NewAggregator(o.cfg.Statistics.MaxKeys, o.cfg.Statistics.MinKeys)
	}
	return &run{o: o, started: started, sched: sched, agg: agg}
}

func (r *run) snapshot(status core.JobStatus, cause string) *core.Job {
	started := r.started
	job := &core.Job{
		ID:         r.o.jobID,
		Name:       r.o.cfg.Job.Name,
		Status:     status,
		Cause:      cause,
		Statistics: r.agg.Snapshot(),
		Transforms: r.o.cfg.Job.Transforms,
		StartedAt:  &started,
	}
	if r.sched != nil {
		job.Progress = r.sched.progress()
		job.Failures = r.sched.failures()
		job.Files = make([]core.FileTask, len(r.sched.files))
		for i, ft := range r.sched.files {
			job.Files[i] = ft.Clone()
		}
	}
	if status.Terminal() {
		completed := time.Now().UTC()
		job.CompletedAt = &completed
		job.Progress.NotAttempted = job.Progress.Pending + job.Progress.Retrying + job.Progress.InFlight
	}
	return job
}

func (o *Orchestrator) abort(ctx context.Context, r *run, err error) (*core.Report, error) {
	o.logger.Error("Job aborted", "error", err)
	return o.complete(ctx, r, core.JobStatusAborted, err.Error()), err
}

// complete publishes the final projection, persists the report next to the
// outputs and pushes metrics when a Pushgateway is configured.
func (o *Orchestrator) complete(ctx context.Context, r *run, status core.JobStatus, cause string) *core.Report {
	ctx = context.WithoutCancel(ctx)

	var notAttempted []string
	if r.sched != nil {
		notAttempted = r.sched.notAttempted()
		if len(notAttempted) > 0 {
			r.agg.Merge(map[string]any{stats.FilesNotAttempted: float64(len(notAttempted))})
			for range notAttempted {
				o.collector.FileState("not_attempted")
			}
		}
	}

	job := r.snapshot(status, cause)
	o.publish(job)
	o.collector.JobStatus(string(status), statusLabels()...)

	report := &core.Report{
		JobID:           job.ID,
		Name:            job.Name,
		Status:          status,
		ExitCode:        status.ExitCode(),
		Cause:           cause,
		StartedAt:       *job.StartedAt,
		CompletedAt:     *job.CompletedAt,
		DurationSeconds: job.Duration().Seconds(),
		Statistics:      job.Statistics,
		Failures:        job.Failures,
		NotAttempted:    notAttempted,
		Transforms:      job.Transforms,
		Storage:         o.describeStorage(),
	}
	if report.Failures == nil {
		report.Failures = []core.FailureRecord{}
	}
	if report.NotAttempted == nil {
		report.NotAttempted = []string{}
	}

	if err := o.writeReport(ctx, report); err != nil {
		o.logger.Error("Failed to write job report", "error", err)
	}
	if url := o.cfg.Metrics.PushgatewayURL; url != "" {
		if err := o.collector.Push(ctx, url, o.cfg.Metrics.JobName); err != nil {
			o.logger.Warn("Failed to push metrics", "gateway", url, "error", err)
		}
	}

	o.logger.Info("Job finished",
		"status", status,
		"exit_code", report.ExitCode,
		"duration", time.Duration(report.DurationSeconds*float64(time.Second)).String(),
		"failed", len(report.Failures),
		"not_attempted", len(report.NotAttempted),
	)
	return report
}

func (o *Orchestrator) writeReport(ctx context.Context, report *core.Report) error {
	if o.data == nil {
		return nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return o.data.WriteReport(ctx, data)
}

func (o *Orchestrator) publish(job *core.Job) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveJob(job); err != nil {
		o.logger.Warn("Failed to save job snapshot", "error", err)
	}
}
