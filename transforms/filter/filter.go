// Package filter keeps the rows whose string column matches a regular expression.
package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

func init() {
	transforms.MustRegister("filter", func() any {
		return &Transform{column: "contents"}
	})
}

type Transform struct {
	column  string
	pattern *regexp.Regexp
	invert  bool
}

func (f *Transform) Name() string {
	return "filter"
}

func (f *Transform) Describe() string {
	return "keeps rows whose column matches a specified pattern"
}

func (f *Transform) Configure(config map[string]string) error {
	if c, ok := config["column"]; ok {
		f.column = c
	}

	expr, ok := config["pattern"]
	if !ok {
		return fmt.Errorf("pattern must be specified in the transform configuration")
	}
	if cs, ok := config["case_sensitive"]; ok && (strings.ToLower(cs) == "false" || cs == "0") {
		expr = "(?i)" + expr
	}
	if inv, ok := config["invert"]; ok && (strings.ToLower(inv) == "true" || inv == "1") {
		f.invert = true
	}

	pattern, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	f.pattern = pattern
	return nil
}

func (f *Transform) Validate() error {
	if f.pattern == nil {
		return fmt.Errorf("pattern must be specified in the transform configuration")
	}
	if f.column == "" {
		return fmt.Errorf("column must not be empty")
	}
	return nil
}

func (f *Transform) Apply(_ context.Context, table *core.Table) ([]*core.Table, core.Metrics, error) {
	col, ok := table.Column(f.column)
	if !ok {
		return nil, nil, fmt.Errorf("missing column %q", f.column)
	}
	if col.Type != core.ColumnString {
		return nil, nil, fmt.Errorf("column %q is %s, expected string", f.column, col.Type)
	}

	keep := make([]int, 0, table.NumRows())
	for i, v := range col.Values {
		s, _ := v.(string)
		if f.pattern.MatchString(s) != f.invert {
			keep = append(keep, i)
		}
	}

	metrics := core.Metrics{
		"filter_rows_in":  float64(table.NumRows()),
		"filter_rows_out": float64(len(keep)),
	}
	if len(keep) == 0 {
		return nil, metrics, nil
	}
	if len(keep) == table.NumRows() {
		return []*core.Table{table}, metrics, nil
	}
	return []*core.Table{table.SelectRows(keep)}, metrics, nil
}
