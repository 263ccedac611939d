package transforms

import (
	"context"
	"errors"
	"fmt"

	"github.com/nemanja-m/gotransform/pkg/core"
)

// Chain applies its stages in declared order. Every output of stage i is
// routed independently through stage i+1. An optional Accumulator is kept
// apart because it must be driven from a single ordering point.
type Chain struct {
	stages      []Transform
	accumulator Accumulator
}

func NewChain(stages []Transform, accumulator Accumulator) *Chain {
	return &Chain{stages: stages, accumulator: accumulator}
}

// BuildChain instantiates every spec through the registry. At most one
// Accumulator is allowed, and only as the last stage.
func BuildChain(specs []Spec) (*Chain, error) {
	if len(specs) == 0 {
		return nil, core.Errorf(core.KindConfiguration, "transform chain is empty")
	}

	chain := &Chain{}
	for i, spec := range specs {
		stage, err := New(spec)
		if err != nil {
			return nil, err
		}
		if acc, ok := stage.(Accumulator); ok {
			if i != len(specs)-1 {
				return nil, core.Errorf(core.KindConfiguration,
					"stateful transform %s must be the last stage, found at position %d of %d", spec.Name, i+1, len(specs))
			}
			chain.accumulator = acc
			continue
		}
		chain.stages = append(chain.stages, stage.(Transform))
	}
	return chain, nil
}

func (c *Chain) Accumulator() Accumulator {
	return c.accumulator
}

func (c *Chain) HasAccumulator() bool {
	return c.accumulator != nil
}

func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.stages)+1)
	for _, s := range c.stages {
		names = append(names, s.Name())
	}
	if c.accumulator != nil {
		names = append(names, c.accumulator.Name())
	}
	return names
}

// Resources sums CPU hints and takes the largest memory hint across stages.
func (c *Chain) Resources() ResourceHint {
	var hint ResourceHint
	visit := func(stage any) {
		if h, ok := stage.(ResourceHinter); ok {
			r := h.Resources()
			hint.CPU += r.CPU
			hint.MemoryBytes = max(hint.MemoryBytes, r.MemoryBytes)
		}
	}
	for _, s := range c.stages {
		visit(s)
	}
	if c.accumulator != nil {
		visit(c.accumulator)
	}
	return hint
}

// Apply runs the stateless stages over table. The accumulator, if any, is not
// touched. A failing stage short-circuits the whole chain; a stage returning
// no tables ends that branch without error.
func (c *Chain) Apply(ctx context.Context, table *core.Table) core.Outcome {
	metrics := core.Metrics{}
	tables := []*core.Table{table}

	for i, stage := range c.stages {
		var next []*core.Table
		for _, t := range tables {
			out, m, err := stage.Apply(ctx, t)
			metrics.Merge(m)
			if err != nil {
				return core.Failure(stageError(i, stage.Name(), err), metrics)
			}
			next = append(next, out...)
		}
		tables = next
		if len(tables) == 0 {
			break
		}
	}

	return core.Success(tables, metrics)
}

func stageError(i int, name string, err error) error {
	stage := fmt.Sprintf("stage %d (%s)", i+1, name)
	var ce *core.Error
	if errors.As(err, &ce) {
		wrapped := *ce
		wrapped.Stage = stage
		return &wrapped
	}
	return &core.Error{Kind: core.KindTransform, Stage: stage, Err: err}
}
