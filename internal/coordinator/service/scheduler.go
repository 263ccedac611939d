package service

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/coordinator/stats"
	"github.com/nemanja-m/gotransform/internal/metrics"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/internal/shared/rpc"
	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
)

type pullRequest struct {
	workerID string
	remote   bool
	reply    chan pullReply // buffered, written at most once
}

type pullReply struct {
	task *rpc.Task
	done bool
}

type resultMsg struct {
	result *rpc.Result
	reply  chan bool
}

type heartbeatMsg struct {
	hb    rpc.Heartbeat
	reply chan bool
}

// scheduler is the state of one run. It is owned by the coordinator
// goroutine and never touched concurrently.
type scheduler struct {
	jobID  uuid.UUID
	files  []*core.FileTask
	queue  core.FileQueue
	ledger *core.RetryLedger

	byTask map[uuid.UUID]int
	leases map[int]time.Duration
	parked []*pullRequest

	inFlight int
	open     int
	stopping bool

	collect     bool
	taskTimeout time.Duration
	remoteLease time.Duration

	agg       *stats.Aggregator
	collector *metrics.Collector
	seq       chan<- seqItem
	logger    logging.Logger
}

func newScheduler(
	jobID uuid.UUID,
	files []pkgcore.FileReference,
	maxRetries int,
	agg *stats.Aggregator,
	collector *metrics.Collector,
	logger logging.Logger,
) *scheduler {
	s := &scheduler{
		jobID:     jobID,
		files:     make([]*core.FileTask, len(files)),
		queue:     core.NewFileQueue(),
		ledger:    core.NewRetryLedger(maxRetries),
		byTask:    make(map[uuid.UUID]int),
		leases:    make(map[int]time.Duration),
		open:      len(files),
		agg:       agg,
		collector: collector,
		logger:    logger,
	}
	for i, f := range files {
		ft := core.NewFileTask(f)
		s.files[i] = ft
		// Push only fails for nil tasks.
		_ = s.queue.Push(ft, core.TaskPriorityNormal)
	}
	return s
}

// done reports whether the run loop may exit: every file is terminal, or a
// stop was requested and nothing is in flight.
func (s *scheduler) done() bool {
	return s.open == 0 || (s.stopping && s.inFlight == 0)
}

func (s *scheduler) park(req *pullRequest) {
	if s.stopping {
		req.reply <- pullReply{done: true}
		return
	}
	s.parked = append(s.parked, req)
}

// dispatch hands Pending files to parked pulls in queue order.
func (s *scheduler) dispatch() {
	for !s.stopping && len(s.parked) > 0 && s.queue.Len() > 0 {
		ft, err := s.queue.Pop()
		if err != nil {
			return
		}
		req := s.parked[0]
		s.parked = s.parked[1:]

		idx := ft.File.Index
		s.transition(ft, core.FileStateInFlight)
		ft.Attempts = s.ledger.Charge(idx)
		ft.TaskID = uuid.New()
		ft.WorkerID = req.workerID
		now := time.Now().UTC()
		if ft.StartedAt == nil {
			ft.StartedAt = &now
		}

		lease := s.taskTimeout
		if lease == 0 && req.remote {
			lease = s.remoteLease
		}
		s.leases[idx] = lease
		ft.Deadline = time.Time{}
		if lease > 0 {
			ft.Deadline = now.Add(lease)
		}

		s.byTask[ft.TaskID] = idx
		s.inFlight++

		s.logger.Debug("File dispatched",
			"path", ft.File.Path,
			"attempt", ft.Attempts,
			"worker_id", req.workerID,
		)
		req.reply <- pullReply{task: &rpc.Task{
			ID:      ft.TaskID,
			JobID:   s.jobID,
			File:    ft.File,
			Attempt: ft.Attempts,
			Collect: s.collect,
		}}
	}
	s.collector.Queue(s.queue.Len(), s.inFlight)
}

// cancel handles a pull whose caller gave up. A task already handed to it
// goes back to the front of the queue without charging an attempt.
func (s *scheduler) cancel(req *pullRequest) {
	select {
	case r := <-req.reply:
		if r.task != nil {
			s.requeue(r.task)
		}
	default:
		s.parked = slices.DeleteFunc(s.parked, func(p *pullRequest) bool { return p == req })
	}
}

func (s *scheduler) requeue(task *rpc.Task) {
	idx, ok := s.byTask[task.ID]
	if !ok {
		return
	}
	ft := s.files[idx]
	s.release(ft)
	s.transition(ft, core.FileStatePending)
	s.ledger.Refund(idx)
	ft.Attempts = s.ledger.Attempts(idx)
	_ = s.queue.Push(ft, core.TaskPriorityHigh)
	s.logger.Debug("File requeued", "path", ft.File.Path)
}

// release forgets the current attempt of an InFlight file.
func (s *scheduler) release(ft *core.FileTask) {
	delete(s.byTask, ft.TaskID)
	ft.TaskID = uuid.Nil
	ft.Deadline = time.Time{}
	s.inFlight--
}

// record applies a worker report and returns false when it refers to an
// attempt that is no longer current.
func (s *scheduler) record(r *rpc.Result) bool {
	idx, ok := s.byTask[r.TaskID]
	if !ok {
		s.logger.Warn("Ignoring stale result",
			"task_id", r.TaskID.String(),
			"worker_id", r.WorkerID,
			"file_index", r.FileIndex,
		)
		return false
	}
	ft := s.files[idx]
	s.release(ft)
	s.collector.ObserveAttempt(string(r.Status), r.Metrics)

	if r.Status != pkgcore.OutcomeFailure {
		s.succeed(ft, r)
		return true
	}

	err := r.Err()
	if err == nil {
		err = pkgcore.Errorf(pkgcore.KindTransform, "worker reported a failure without an error")
	}
	s.fail(ft, err, pkgcore.IsTransient(err))
	return true
}

func (s *scheduler) succeed(ft *core.FileTask, r *rpc.Result) {
	s.transition(ft, core.FileStateSucceeded)
	s.end(ft)
	s.agg.Merge(r.Metrics)
	s.agg.Merge(map[string]any{stats.FilesProcessed: 1.0})
	s.collector.FileState("succeeded")
	if s.seq != nil {
		s.seq <- seqItem{file: ft.File, tables: r.Tables}
	}
	s.logger.Info("File completed",
		"path", ft.File.Path,
		"status", r.Status,
		"attempt", ft.Attempts,
		"worker_id", r.WorkerID,
	)
}

// fail moves an attempt's file to Retrying and back to the end of the queue
// while retries remain, and to FailedTerminal otherwise. Once the job is
// stopping a transient failure leaves the file Pending with its last error,
// so it is reported as not attempted rather than retried.
func (s *scheduler) fail(ft *core.FileTask, err error, transient bool) {
	ft.LastError = err.Error()
	ft.LastKind = pkgcore.KindOf(err)

	if transient {
		s.transition(ft, core.FileStateRetrying)
		if s.stopping {
			s.transition(ft, core.FileStatePending)
			s.logger.Warn("File not retried, job is stopping",
				"path", ft.File.Path,
				"attempt", ft.Attempts,
				"error", err,
			)
			return
		}
		if s.ledger.CanRetry(ft.File.Index) {
			s.transition(ft, core.FileStatePending)
			_ = s.queue.Push(ft, core.TaskPriorityNormal)
			s.agg.Merge(map[string]any{stats.FilesRetried: 1.0})
			s.collector.FileState("retried")
			s.logger.Warn("Retrying file",
				"path", ft.File.Path,
				"attempt", ft.Attempts,
				"max_retries", s.ledger.MaxRetries(),
				"error", err,
			)
			return
		}
		ft.LastKind = pkgcore.KindRetryExhausted
	}

	s.transition(ft, core.FileStateFailedTerminal)
	s.end(ft)
	s.agg.Merge(map[string]any{stats.FilesFailed: 1.0})
	s.collector.FileState("failed")
	if s.seq != nil {
		s.seq <- seqItem{file: ft.File, failed: true}
	}
	s.logger.Error("File failed",
		"path", ft.File.Path,
		"kind", ft.LastKind,
		"attempts", ft.Attempts,
		"error", err,
	)
}

func (s *scheduler) end(ft *core.FileTask) {
	now := time.Now().UTC()
	ft.EndedAt = &now
	s.open--
}

// heartbeat extends the lease of the task's file.
func (s *scheduler) heartbeat(hb rpc.Heartbeat) bool {
	idx, ok := s.byTask[hb.TaskID]
	if !ok {
		return false
	}
	if lease := s.leases[idx]; lease > 0 {
		s.files[idx].Deadline = time.Now().UTC().Add(lease)
	}
	return true
}

// stop ends dispatching. Parked pulls are told there is no more work.
func (s *scheduler) stop() {
	if s.stopping {
		return
	}
	s.stopping = true
	dropped := s.queue.Drain()
	s.logger.Info("Stopping job, waiting for in-flight files",
		"in_flight", s.inFlight,
		"not_dispatched", len(dropped),
	)
	s.finish()
}

// finish answers every parked pull with done.
func (s *scheduler) finish() {
	for _, req := range s.parked {
		req.reply <- pullReply{done: true}
	}
	s.parked = nil
	s.collector.Queue(s.queue.Len(), s.inFlight)
}

// sequencerFailed marks files whose stateful output could not be produced.
func (s *scheduler) sequencerFailed(failures map[int]error) {
	for idx, err := range failures {
		ft := s.files[idx]
		if ft.State != core.FileStateSucceeded {
			continue
		}
		s.transition(ft, core.FileStateFailedTerminal)
		ft.LastError = err.Error()
		ft.LastKind = pkgcore.KindOf(err)
		s.agg.Merge(map[string]any{stats.FilesProcessed: -1.0, stats.FilesFailed: 1.0})
		s.collector.FileState("failed")
		s.logger.Error("File failed in stateful stage", "path", ft.File.Path, "kind", ft.LastKind, "error", err)
	}
}

func (s *scheduler) transition(ft *core.FileTask, to core.FileState) {
	if err := ft.Transition(to); err != nil {
		s.logger.Error("Invalid file transition", "error", err)
	}
}

func (s *scheduler) failures() []core.FailureRecord {
	var records []core.FailureRecord
	for _, ft := range s.files {
		if ft.State == core.FileStateFailedTerminal {
			records = append(records, core.FailureRecord{
				File:     ft.File.Path,
				Kind:     ft.LastKind,
				Message:  ft.LastError,
				Attempts: ft.Attempts,
			})
		}
	}
	return records
}

func (s *scheduler) notAttempted() []string {
	var paths []string
	for _, ft := range s.files {
		if !ft.Terminal() {
			paths = append(paths, ft.File.Path)
		}
	}
	return paths
}

func (s *scheduler) progress() core.JobProgress {
	p := core.JobProgress{Total: len(s.files)}
	for _, ft := range s.files {
		switch ft.State {
		case core.FileStatePending:
			p.Pending++
		case core.FileStateInFlight:
			p.InFlight++
		case core.FileStateRetrying:
			p.Retrying++
		case core.FileStateSucceeded:
			p.Succeeded++
		case core.FileStateFailedTerminal:
			p.Failed++
		}
	}
	return p
}

// status derives the final job status once the run loop has exited.
func (s *scheduler) status() (core.JobStatus, string) {
	p := s.progress()
	switch {
	case s.stopping && p.Pending+p.Retrying+p.InFlight > 0:
		return core.JobStatusAborted, "stopped"
	case p.Failed > 0:
		return core.JobStatusCompletedWithFailures, ""
	default:
		return core.JobStatusCompleted, ""
	}
}
