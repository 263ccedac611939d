package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/nemanja-m/gotransform/internal/coordinator/stats"
	"github.com/nemanja-m/gotransform/internal/dataaccess"
	"github.com/nemanja-m/gotransform/internal/metrics"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

// seqItem is a file's terminal outcome as seen by the sequencer. Failed files
// carry no tables and are only used to advance the ordering point.
type seqItem struct {
	file   pkgcore.FileReference
	tables []*pkgcore.Table
	failed bool
}

// sequencer is the single ordering point in front of the accumulator. It
// feeds files in enumeration order no matter in which order workers finish
// them and writes what the accumulator emits.
type sequencer struct {
	acc        transforms.Accumulator
	stage      string
	data       dataaccess.DataAccess
	maxRetries int
	retryDelay time.Duration
	agg        *stats.Aggregator
	collector  *metrics.Collector
	logger     logging.Logger

	next     int
	buffered map[int]seqItem
	emitted  int
	last     *pkgcore.FileReference

	// failures maps file index to the error that file's outputs hit.
	failures map[int]error
}

func newSequencer(
	acc transforms.Accumulator,
	stage string,
	data dataaccess.DataAccess,
	maxRetries int,
	agg *stats.Aggregator,
	collector *metrics.Collector,
	logger logging.Logger,
) *sequencer {
	return &sequencer{
		acc:        acc,
		stage:      stage,
		data:       data,
		maxRetries: maxRetries,
		retryDelay: 200 * time.Millisecond,
		agg:        agg,
		collector:  collector,
		logger:     logger.With("stage", stage),
		buffered:   make(map[int]seqItem),
		failures:   make(map[int]error),
	}
}

// run consumes in until it is closed, then flushes the accumulator.
func (s *sequencer) run(ctx context.Context, in <-chan seqItem) error {
	for item := range in {
		s.buffered[item.file.Index] = item
		for {
			next, ok := s.buffered[s.next]
			if !ok {
				break
			}
			delete(s.buffered, s.next)
			s.next++
			s.consume(ctx, next)
		}
	}

	// Anything still buffered sits behind a file that was never finished
	// because the job was stopped.
	for _, idx := range slices.Sorted(maps.Keys(s.buffered)) {
		s.consume(ctx, s.buffered[idx])
	}
	s.buffered = nil

	s.flush(ctx)
	return nil
}

func (s *sequencer) consume(ctx context.Context, item seqItem) {
	if item.failed {
		return
	}
	file := item.file
	s.last = &file
	if tracker, ok := s.acc.(transforms.InputTracker); ok {
		tracker.StartInput(file.Index)
	}

	for _, t := range item.tables {
		out, m, err := s.acc.Add(ctx, t)
		s.agg.Merge(m)
		if err != nil {
			s.fail(file, s.stageError(err))
			return
		}
		if err := s.write(ctx, file, out); err != nil {
			s.fail(file, err)
			return
		}
	}
}

// flush attributes the remainder to the last file that was consumed.
func (s *sequencer) flush(ctx context.Context) {
	out, m, err := s.acc.Flush(ctx)
	s.agg.Merge(m)
	if s.last == nil {
		return
	}
	if err != nil {
		s.fail(*s.last, s.stageError(err))
		return
	}
	if err := s.write(ctx, *s.last, out); err != nil {
		s.fail(*s.last, err)
	}
}

func (s *sequencer) write(ctx context.Context, trigger pkgcore.FileReference, tables []*pkgcore.Table) error {
	for _, t := range tables {
		rel := dataaccess.SequencedOutputPath(trigger, s.emitted)
		s.emitted++

		start := time.Now()
		n, err := s.writeWithRetry(ctx, rel, t)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			s.agg.Merge(map[string]any{"write_seconds": elapsed})
			return err
		}
		s.agg.Merge(map[string]any{
			"result_files":     1.0,
			"result_size":      float64(n),
			"result_doc_count": float64(t.NumRows()),
			"write_seconds":    elapsed,
		})
		s.collector.TablesWritten(1, n)
		s.logger.Debug("Table written", "path", rel, "rows", t.NumRows(), "trigger", trigger.Path)
	}
	return nil
}

// writeWithRetry retries transient write errors in place, up to maxRetries
// times.
func (s *sequencer) writeWithRetry(ctx context.Context, rel string, t *pkgcore.Table) (int64, error) {
	for attempt := 0; ; attempt++ {
		n, err := s.data.WriteTable(ctx, rel, t)
		if err == nil {
			return n, nil
		}
		var ce *pkgcore.Error
		if !errors.As(err, &ce) {
			err = pkgcore.NewError(pkgcore.KindWrite, err)
		}
		if !pkgcore.IsTransient(err) || attempt >= s.maxRetries {
			return 0, err
		}
		s.logger.Warn("Retrying table write", "path", rel, "attempt", attempt+1, "error", err)
		if !sleep(ctx, s.retryDelay*time.Duration(attempt+1)) {
			return 0, err
		}
	}
}

func (s *sequencer) fail(file pkgcore.FileReference, err error) {
	if _, exists := s.failures[file.Index]; !exists {
		s.failures[file.Index] = err
	}
}

func (s *sequencer) stageError(err error) error {
	var ce *pkgcore.Error
	if errors.As(err, &ce) {
		wrapped := *ce
		wrapped.Stage = s.stage
		return &wrapped
	}
	return &pkgcore.Error{Kind: pkgcore.KindTransform, Stage: s.stage, Err: err}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
