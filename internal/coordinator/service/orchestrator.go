package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/coordinator/stats"
	"github.com/nemanja-m/gotransform/internal/dataaccess"
	"github.com/nemanja-m/gotransform/internal/metrics"
	"github.com/nemanja-m/gotransform/internal/shared/config"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/internal/shared/rpc"
	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

// ErrStopped is returned by Run when it was cancelled before every file was
// attempted.
var ErrStopped = errors.New("job stopped before all files were attempted")

// Orchestrator runs one job. A single coordinator goroutine owns all
// scheduling state; workers, local or remote, talk to it only through
// Pull, Report and Heartbeat.
type Orchestrator struct {
	cfg       *config.CoordinatorConfig
	data      dataaccess.DataAccess
	store     core.JobStore
	collector *metrics.Collector
	logger    logging.Logger

	jobID            uuid.UUID
	snapshotInterval time.Duration
	writeRetryDelay  time.Duration

	pulls      chan *pullRequest
	cancels    chan *pullRequest
	results    chan resultMsg
	heartbeats chan heartbeatMsg

	finished     chan struct{}
	finishedOnce sync.Once
}

var _ core.TaskService = (*Orchestrator)(nil)

func NewOrchestrator(
	cfg *config.CoordinatorConfig,
	data dataaccess.DataAccess,
	store core.JobStore,
	collector *metrics.Collector,
	logger logging.Logger,
) *Orchestrator {
	jobID := uuid.New()
	return &Orchestrator{
		cfg:              cfg,
		data:             data,
		store:            store,
		collector:        collector,
		logger:           logger.With("job_id", jobID.String()),
		jobID:            jobID,
		snapshotInterval: time.Second,
		writeRetryDelay:  200 * time.Millisecond,
		pulls:            make(chan *pullRequest),
		cancels:          make(chan *pullRequest),
		results:          make(chan resultMsg),
		heartbeats:       make(chan heartbeatMsg),
		finished:         make(chan struct{}),
	}
}

func (o *Orchestrator) JobID() uuid.UUID {
	return o.jobID
}

// Run executes the job and returns its report. The report is always
// returned; the error is non-nil when the job was aborted.
// Cancelling ctx stops dispatching: files already handed to a worker are
// finished and recorded, the rest are reported as not attempted.
func (o *Orchestrator) Run(ctx context.Context) (*core.Report, error) {
	defer o.markFinished()

	started := time.Now().UTC()
	o.logger.Info("Starting job", "name", o.cfg.Job.Name, "storage", o.describeStorage())
	o.collector.JobStatus(string(core.JobStatusRunning), statusLabels()...)

	template, chains, err := o.prepare()
	if err != nil {
		return o.abort(ctx, newRun(o, started, nil, nil), err)
	}

	files, err := o.enumerate(ctx, template.HasAccumulator())
	if err != nil {
		return o.abort(ctx, newRun(o, started, nil, nil), err)
	}

	agg := stats.NewAggregator(o.cfg.Statistics.MaxKeys, o.cfg.Statistics.MinKeys)
	s := newScheduler(o.jobID, files, o.cfg.Job.MaxRetries, agg, o.collector, o.logger)
	s.collect = template.HasAccumulator()
	s.taskTimeout = o.cfg.Job.TaskTimeout
	if o.cfg.GRPC.Enabled {
		s.remoteLease = o.cfg.GRPC.LeaseTimeout
	}
	r := newRun(o, started, s, agg)

	var (
		g     errgroup.Group
		seq   *sequencer
		seqIn chan seqItem
	)
	if template.HasAccumulator() {
		seqIn = make(chan seqItem, len(files))
		s.seq = seqIn
		names := template.Names()
		stage := fmt.Sprintf("stage %d (%s)", len(names), names[len(names)-1])
		seq = newSequencer(template.Accumulator(), stage, o.data, o.cfg.Job.MaxRetries, agg, o.collector, o.logger)
		seq.retryDelay = o.writeRetryDelay
		// Outputs of files that finished are written even after a stop.
		seqCtx := context.WithoutCancel(ctx)
		g.Go(func() error {
			return seq.run(seqCtx, seqIn)
		})
	}

	o.publish(r.snapshot(core.JobStatusRunning, ""))
	o.logger.Info("Dispatching files",
		"files", len(files),
		"local_workers", len(chains),
		"remote_workers", o.cfg.GRPC.Enabled,
		"max_retries", o.cfg.Job.MaxRetries,
	)

	o.startLocalWorkers(ctx, &g, chains)
	o.loop(ctx, r)
	o.markFinished()

	if seqIn != nil {
		close(seqIn)
	}
	if err := g.Wait(); err != nil {
		o.logger.Error("Worker group failed", "error", err)
	}
	if seq != nil {
		s.sequencerFailed(seq.failures)
	}

	status, cause := s.status()
	report := o.complete(ctx, r, status, cause)
	if status == core.JobStatusAborted {
		return report, ErrStopped
	}
	return report, nil
}

// prepare validates the configuration and builds one chain per local worker
// plus a template chain whose accumulator, if any, the sequencer owns.
func (o *Orchestrator) prepare() (*transforms.Chain, []*transforms.Chain, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, nil, pkgcore.NewError(pkgcore.KindConfiguration, err)
	}

	template, err := transforms.BuildChain(o.cfg.Job.Transforms)
	if err != nil {
		return nil, nil, configurationError(err)
	}
	if template.HasAccumulator() {
		name := template.Accumulator().Name()
		if o.cfg.GRPC.Enabled {
			return nil, nil, pkgcore.Errorf(pkgcore.KindConfiguration,
				"stateful transform %s cannot be combined with remote workers", name)
		}
		if o.cfg.Input.Checkpointing {
			return nil, nil, pkgcore.Errorf(pkgcore.KindConfiguration,
				"stateful transform %s cannot be combined with checkpointing", name)
		}
	}

	hint := template.Resources()
	o.logger.Info("Transform chain ready",
		"stages", template.Names(),
		"cpu_hint", hint.CPU,
		"memory_hint_bytes", hint.MemoryBytes,
		"workers", o.cfg.Job.Workers,
	)

	var (
		chains []*transforms.Chain
		errs   *multierror.Error
	)
	for i := range o.cfg.Job.Workers {
		chain, err := transforms.BuildChain(o.cfg.Job.Transforms)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("worker %d: %w", i, err))
			continue
		}
		chains = append(chains, chain)
	}
	if err := errs.ErrorOrNil(); err != nil {
		if len(chains) == 0 {
			return nil, nil, fmt.Errorf("no worker could be initialized: %w", err)
		}
		o.logger.Warn("Some workers failed to initialize", "started", len(chains), "error", err)
	}
	return template, chains, nil
}

// enumerate lists the dataset and applies checkpointing and the file limit.
// Per-file output names are checked on the full listing, so a file skipped
// as completed is not overwritten by a sibling's numbered output. A
// sequenced run names outputs by emission order and cannot clash.
func (o *Orchestrator) enumerate(ctx context.Context, sequenced bool) ([]pkgcore.FileReference, error) {
	files, err := o.data.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate dataset: %w", err)
	}
	total := len(files)

	if !sequenced {
		if err := dataaccess.CheckOutputNames(files); err != nil {
			return nil, err
		}
	}

	skipped := 0
	if o.cfg.Input.Checkpointing {
		outputs, err := o.data.ListOutputs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list existing outputs: %w", err)
		}
		files, skipped = dataaccess.SkipCompleted(files, outputs)
	}
	files = dataaccess.Limit(files, o.cfg.Input.MaxFiles)

	o.logger.Info("Dataset enumerated", "found", total, "skipped", skipped, "scheduled", len(files))
	return files, nil
}

// loop is the coordinator goroutine. It exits once every file is terminal,
// or after a stop once nothing is in flight.
func (o *Orchestrator) loop(ctx context.Context, r *run) {
	s := r.sched
	defer s.finish()

	stop := ctx.Done()
	leases := time.NewTicker(s.leaseCheckInterval())
	defer leases.Stop()
	snapshots := time.NewTicker(o.snapshotInterval)
	defer snapshots.Stop()

	for !s.done() {
		s.dispatch()

		select {
		case <-stop:
			stop = nil
			s.stop()
		case req := <-o.pulls:
			s.park(req)
		case req := <-o.cancels:
			s.cancel(req)
		case msg := <-o.results:
			msg.reply <- s.record(msg.result)
		case msg := <-o.heartbeats:
			msg.reply <- s.heartbeat(msg.hb)
		case now := <-leases.C:
			s.expireLeases(now)
		case <-snapshots.C:
			o.publish(r.snapshot(core.JobStatusRunning, ""))
		}
	}
}

// Pull parks a remote worker's request until a file is available or the
// job ends.
func (o *Orchestrator) Pull(ctx context.Context, workerID string) (*rpc.Task, bool, error) {
	return o.pull(ctx, workerID, true)
}

func (o *Orchestrator) pull(ctx context.Context, workerID string, remote bool) (*rpc.Task, bool, error) {
	req := &pullRequest{workerID: workerID, remote: remote, reply: make(chan pullReply, 1)}

	select {
	case o.pulls <- req:
	case <-o.finished:
		return nil, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	select {
	case reply := <-req.reply:
		return reply.task, reply.done, nil
	case <-ctx.Done():
		select {
		case o.cancels <- req:
		case <-o.finished:
		}
		return nil, false, ctx.Err()
	}
}

// Report records a worker's result. It returns core.ErrStaleTask when the
// result belongs to an attempt that is no longer current.
func (o *Orchestrator) Report(ctx context.Context, result *rpc.Result) error {
	msg := resultMsg{result: result, reply: make(chan bool, 1)}
	select {
	case o.results <- msg:
	case <-o.finished:
		return core.ErrStaleTask
	case <-ctx.Done():
		return ctx.Err()
	}
	if !<-msg.reply {
		return core.ErrStaleTask
	}
	return nil
}

func (o *Orchestrator) Heartbeat(ctx context.Context, hb rpc.Heartbeat) (bool, error) {
	msg := heartbeatMsg{hb: hb, reply: make(chan bool, 1)}
	select {
	case o.heartbeats <- msg:
	case <-o.finished:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return <-msg.reply, nil
}

func (o *Orchestrator) markFinished() {
	o.finishedOnce.Do(func() {
		close(o.finished)
	})
}

func (o *Orchestrator) describeStorage() string {
	if o.data == nil {
		return ""
	}
	return o.data.Describe()
}

func configurationError(err error) error {
	if pkgcore.IsConfigurationError(err) {
		return err
	}
	return pkgcore.NewError(pkgcore.KindConfiguration, err)
}

func statusLabels() []string {
	labels := make([]string, len(core.JobStatuses))
	for i, s := range core.JobStatuses {
		labels[i] = string(s)
	}
	return labels
}
