package dataaccess

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/nemanja-m/gotransform/pkg/core"
)

// Memory keeps inputs and outputs in process memory. File sizes are the
// tables' estimated in-memory sizes.
type Memory struct {
	mu      sync.Mutex
	inputs  map[string]*core.Table
	outputs map[string]*core.Table
	report  []byte
	opts    Options
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		inputs:  make(map[string]*core.Table),
		outputs: make(map[string]*core.Table),
		opts:    opts,
	}
}

func (m *Memory) Describe() string {
	return "memory"
}

func (m *Memory) PutInput(path string, t *core.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs[path] = t
}

func (m *Memory) ListFiles(ctx context.Context) ([]core.FileReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := make([]core.FileReference, 0, len(m.inputs))
	for p, t := range m.inputs {
		if m.opts.matches(p) {
			files = append(files, core.FileReference{Path: p, Size: t.EstimatedBytes()})
		}
	}
	return m.opts.finalize(files), nil
}

func (m *Memory) ReadTable(ctx context.Context, file core.FileReference) (*core.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.inputs[file.Path]
	if !ok {
		return nil, core.Errorf(core.KindRead, "%s: not found", file.Path)
	}
	return t.Slice(0, t.NumRows()), nil
}

func (m *Memory) WriteTable(ctx context.Context, relPath string, t *core.Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, writeError(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[relPath] = t
	return t.EstimatedBytes(), nil
}

func (m *Memory) ListOutputs(ctx context.Context) ([]string, error) {
	return m.OutputPaths(), nil
}

func (m *Memory) WriteReport(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.report = slices.Clone(data)
	return nil
}

func (m *Memory) Output(path string) (*core.Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.outputs[path]
	return t, ok
}

// OutputPaths returns the written output paths in sorted order.
func (m *Memory) OutputPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.outputs))
}

func (m *Memory) Report() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}
