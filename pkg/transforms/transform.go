package transforms

import (
	"context"

	"github.com/nemanja-m/gotransform/pkg/core"
)

// Transform maps one table to zero or more tables plus metrics. Implementations
// hold configuration only; any state across files belongs in an Accumulator.
type Transform interface {
	Name() string
	Describe() string

	Configure(config map[string]string) error
	Validate() error

	Apply(ctx context.Context, table *core.Table) ([]*core.Table, core.Metrics, error)
}

// Accumulator is a stateful terminal stage fed tables in enumeration order.
// Flush releases any buffered remainder once input is exhausted.
type Accumulator interface {
	Name() string
	Describe() string

	Configure(config map[string]string) error
	Validate() error

	Add(ctx context.Context, table *core.Table) ([]*core.Table, core.Metrics, error)
	Flush(ctx context.Context) ([]*core.Table, core.Metrics, error)
}

// InputTracker is implemented by accumulators that record which input they
// are consuming. The ordering point calls StartInput with a file's
// enumeration index before feeding that file's tables.
type InputTracker interface {
	StartInput(seq int)
}

// ResourceHint is an approximate per-worker need, used for sizing guidance only.
type ResourceHint struct {
	CPU         float64
	MemoryBytes int64
}

type ResourceHinter interface {
	Resources() ResourceHint
}

// Spec names a registered transform and its options.
type Spec struct {
	Name   string            `mapstructure:"name" json:"name" validate:"required"`
	Config map[string]string `mapstructure:"config" json:"config,omitempty"`
}
