// Package noop passes tables through unchanged. The sleep option simulates
// per-file work when exercising the scheduler.
package noop

import (
	"context"
	"fmt"
	"time"

	"github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

func init() {
	transforms.MustRegister("noop", func() any {
		return &Transform{}
	})
}

type Transform struct {
	sleep time.Duration
}

func (t *Transform) Name() string {
	return "noop"
}

func (t *Transform) Describe() string {
	return "passes tables through, optionally sleeping per table"
}

func (t *Transform) Configure(config map[string]string) error {
	if v, ok := config["sleep"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid sleep: %w", err)
		}
		t.sleep = d
	}
	return nil
}

func (t *Transform) Validate() error {
	if t.sleep < 0 {
		return fmt.Errorf("sleep must not be negative")
	}
	return nil
}

func (t *Transform) Apply(ctx context.Context, table *core.Table) ([]*core.Table, core.Metrics, error) {
	if t.sleep > 0 {
		timer := time.NewTimer(t.sleep)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return []*core.Table{table}, core.Metrics{"nfiles": 1.0, "nrows": float64(table.NumRows())}, nil
}
