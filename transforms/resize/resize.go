// Package resize repartitions a stream of tables into tables bounded by a row
// count or an estimated byte size, merging small inputs and splitting large ones.
//
// The byte mode works on core.Table's in-memory estimate, not on the encoded
// file size. Every emitted table except the final flush estimates to at most
// the budget, with one tolerance: a single row whose own estimate exceeds the
// budget is emitted as a table of its own.
package resize

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

const (
	OptMaxRows   = "max_rows_per_table"
	OptMaxBytes  = "max_bytes_per_table"
	OptMaxMBytes = "max_mbytes_per_table"
)

const bytesPerMB = 1024 * 1024

func init() {
	transforms.MustRegister("resize", func() any {
		return &Accumulator{}
	})
}

// Accumulator buffers rows across inputs. It is not safe for concurrent use;
// one instance is owned by the single ordering point of a run.
type Accumulator struct {
	maxRows  int
	maxBytes int64
	modes    int

	pending  *core.Table
	lastSeq  int
	tracked  bool
	received int
	emitted  int
}

// New returns an accumulator for exactly one non-zero bound.
func New(maxRows int, maxBytes int64) (*Accumulator, error) {
	a := &Accumulator{maxRows: maxRows, maxBytes: maxBytes, lastSeq: -1}
	if maxRows != 0 {
		a.modes++
	}
	if maxBytes != 0 {
		a.modes++
	}
	if err := a.Validate(); err != nil {
		return nil, core.NewError(core.KindConfiguration, err)
	}
	return a, nil
}

func (a *Accumulator) Name() string {
	return "resize"
}

func (a *Accumulator) Describe() string {
	return "merges and splits tables to a target row count or byte size"
}

func (a *Accumulator) Configure(config map[string]string) error {
	a.lastSeq = -1
	a.tracked = false
	if v, ok := config[OptMaxRows]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", OptMaxRows, err)
		}
		a.maxRows = n
		a.modes++
	}
	if v, ok := config[OptMaxBytes]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", OptMaxBytes, err)
		}
		a.maxBytes = n
		a.modes++
	}
	if v, ok := config[OptMaxMBytes]; ok {
		mb, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", OptMaxMBytes, err)
		}
		a.maxBytes = int64(mb * bytesPerMB)
		if mb > 0 && a.maxBytes == 0 {
			a.maxBytes = 1
		}
		a.modes++
	}
	return nil
}

func (a *Accumulator) Validate() error {
	if a.modes != 1 {
		return fmt.Errorf("exactly one of %s, %s or %s must be set", OptMaxRows, OptMaxBytes, OptMaxMBytes)
	}
	if a.maxRows < 0 || a.maxBytes < 0 || (a.maxRows == 0 && a.maxBytes == 0) {
		return fmt.Errorf("resize bound must be greater than 0")
	}
	return nil
}

func (a *Accumulator) Resources() transforms.ResourceHint {
	if a.maxBytes > 0 {
		return transforms.ResourceHint{CPU: 0.5, MemoryBytes: 2 * a.maxBytes}
	}
	return transforms.ResourceHint{CPU: 0.5}
}

// PendingRows is the number of buffered rows not yet emitted.
func (a *Accumulator) PendingRows() int {
	return a.pending.NumRows()
}

// StartInput marks the tables that follow as belonging to input seq.
func (a *Accumulator) StartInput(seq int) {
	a.lastSeq = seq
	a.tracked = true
}

// LastSequence is the position of the last input consumed, or -1. Without
// StartInput every added table counts as an input of its own.
func (a *Accumulator) LastSequence() int {
	return a.lastSeq
}

// Add appends table to the pending buffer and emits every complete output
// table now available, in row order.
func (a *Accumulator) Add(_ context.Context, table *core.Table) ([]*core.Table, core.Metrics, error) {
	if !a.tracked {
		a.lastSeq++
	}
	a.received++
	metrics := core.Metrics{"resize_tables_in": 1.0}

	if table.NumRows() == 0 {
		return nil, metrics, nil
	}

	if a.pending == nil || a.pending.NumRows() == 0 {
		a.pending = table
	} else {
		merged, err := core.Concat(a.pending, table)
		if err != nil {
			return nil, metrics, fmt.Errorf("append input %d: %w", a.lastSeq, err)
		}
		a.pending = merged
	}

	var out []*core.Table
	if a.maxRows > 0 {
		out = a.splitRows()
	} else {
		out = a.splitBytes()
	}

	a.emitted += len(out)
	metrics["resize_tables_out"] = float64(len(out))
	metrics["resize_rows"] = float64(rowCount(out))
	return out, metrics, nil
}

// Flush emits the remainder, if any, and resets the buffer.
func (a *Accumulator) Flush(context.Context) ([]*core.Table, core.Metrics, error) {
	metrics := core.Metrics{"resize_tables_out": 0.0, "resize_rows": 0.0}
	if a.pending.NumRows() == 0 {
		a.pending = nil
		return nil, metrics, nil
	}
	rest := a.pending
	a.pending = nil
	a.emitted++
	metrics["resize_tables_out"] = 1.0
	metrics["resize_rows"] = float64(rest.NumRows())
	return []*core.Table{rest}, metrics, nil
}

func (a *Accumulator) splitRows() []*core.Table {
	n := a.pending.NumRows()
	var out []*core.Table
	start := 0
	for n-start >= a.maxRows {
		out = append(out, a.pending.Slice(start, start+a.maxRows))
		start += a.maxRows
	}
	a.keepFrom(start, len(out) > 0)
	return out
}

func (a *Accumulator) splitBytes() []*core.Table {
	t := a.pending
	n := t.NumRows()
	ncols := t.NumColumns()

	rowBytes := make([]int64, n)
	var remaining int64
	for i := range n {
		rowBytes[i] = t.RowBytes(i)
		remaining += rowBytes[i]
	}

	var out []*core.Table
	start := 0
	for start < n {
		if remaining+core.ValidityBytes(n-start, ncols) < a.maxBytes {
			break
		}
		end := start
		var chunk int64
		for end < n && chunk+rowBytes[end]+core.ValidityBytes(end-start+1, ncols) <= a.maxBytes {
			chunk += rowBytes[end]
			end++
		}
		if end == start {
			chunk = rowBytes[start]
			end = start + 1
		}
		out = append(out, t.Slice(start, end))
		remaining -= chunk
		start = end
	}
	a.keepFrom(start, len(out) > 0)
	return out
}

func (a *Accumulator) keepFrom(start int, split bool) {
	if !split {
		return
	}
	a.pending = a.pending.Slice(start, a.pending.NumRows())
}

func rowCount(tables []*core.Table) int {
	n := 0
	for _, t := range tables {
		n += t.NumRows()
	}
	return n
}
