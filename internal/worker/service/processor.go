package service

import (
	"context"
	"errors"
	"time"

	"github.com/nemanja-m/gotransform/internal/dataaccess"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
	"github.com/nemanja-m/gotransform/internal/shared/rpc"
	"github.com/nemanja-m/gotransform/internal/worker/core"
	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

// TableProcessor reads a file, runs the stateless part of the chain over it
// and writes every output table. Tasks flagged Collect return their tables
// instead of writing them.
type TableProcessor struct {
	data   dataaccess.DataAccess
	chain  *transforms.Chain
	logger logging.Logger
}

var _ core.TaskExecutor = (*TableProcessor)(nil)

func NewTableProcessor(data dataaccess.DataAccess, chain *transforms.Chain, logger logging.Logger) *TableProcessor {
	return &TableProcessor{data: data, chain: chain, logger: logger}
}

func (p *TableProcessor) Execute(ctx context.Context, task *rpc.Task) *rpc.Result {
	result := &rpc.Result{
		TaskID:    task.ID,
		FileIndex: task.File.Index,
		Attempt:   task.Attempt,
	}
	m := pkgcore.Metrics{}
	size := float64(task.File.Size)
	m.Add("source_files", 1)
	m.Add("source_size", size)
	m["max_file_size"] = size
	m["min_file_size"] = size

	fail := func(err error) *rpc.Result {
		result.Status = pkgcore.OutcomeFailure
		result.Metrics = m
		result.SetErr(err)
		return result
	}

	start := time.Now()
	table, err := p.data.ReadTable(ctx, task.File)
	m.Add("read_seconds", time.Since(start).Seconds())
	if err != nil {
		return fail(classified(pkgcore.KindRead, err))
	}
	m.Add("source_doc_count", float64(table.NumRows()))

	start = time.Now()
	outcome := p.chain.Apply(ctx, table)
	m.Add("transform_seconds", time.Since(start).Seconds())
	m.Merge(outcome.Metrics)
	if outcome.Status == pkgcore.OutcomeFailure {
		return fail(outcome.Err)
	}

	result.Status = outcome.Status
	result.Metrics = m
	if task.Collect {
		result.Tables = outcome.Tables
		return result
	}

	start = time.Now()
	for i, t := range outcome.Tables {
		rel := dataaccess.OutputPath(task.File, i, len(outcome.Tables))
		n, err := p.data.WriteTable(ctx, rel, t)
		if err != nil {
			m.Add("write_seconds", time.Since(start).Seconds())
			return fail(classified(pkgcore.KindWrite, err))
		}
		result.Outputs = append(result.Outputs, rel)
		m.Add("result_files", 1)
		m.Add("result_size", float64(n))
		m.Add("result_doc_count", float64(t.NumRows()))
	}
	m.Add("write_seconds", time.Since(start).Seconds())

	p.logger.Debug("File processed",
		"path", task.File.Path,
		"outputs", len(result.Outputs),
		"status", result.Status,
	)
	return result
}

// classified gives errors from data access implementations that do not
// return *core.Error themselves a non-transient kind.
func classified(kind pkgcore.ErrorKind, err error) error {
	var ce *pkgcore.Error
	if errors.As(err, &ce) {
		return err
	}
	return pkgcore.NewError(kind, err)
}
