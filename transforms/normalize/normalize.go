// Package normalize applies Unicode NFC normalisation and whitespace trimming
// to string columns, optionally stripping diacritics.
package normalize

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

func init() {
	transforms.MustRegister("normalize", func() any {
		return &Transform{}
	})
}

type Transform struct {
	columns      []string
	stripAccents bool
}

func (n *Transform) Name() string {
	return "normalize"
}

func (n *Transform) Describe() string {
	return "normalises unicode and trims whitespace in string columns"
}

func (n *Transform) Configure(config map[string]string) error {
	if v, ok := config["columns"]; ok && v != "" {
		for c := range strings.SplitSeq(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				n.columns = append(n.columns, c)
			}
		}
	}
	if v, ok := config["strip_accents"]; ok && (strings.ToLower(v) == "true" || v == "1") {
		n.stripAccents = true
	}
	return nil
}

func (n *Transform) Validate() error {
	return nil
}

func (n *Transform) transformer() transform.Transformer {
	if n.stripAccents {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	}
	return norm.NFC
}

func (n *Transform) Apply(_ context.Context, table *core.Table) ([]*core.Table, core.Metrics, error) {
	targets := n.columns
	if len(targets) == 0 {
		for _, c := range table.Columns() {
			if c.Type == core.ColumnString {
				targets = append(targets, c.Name)
			}
		}
	}

	t := n.transformer()
	out := table
	changed := 0
	for _, name := range targets {
		col, ok := out.Column(name)
		if !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
		if col.Type != core.ColumnString {
			return nil, nil, fmt.Errorf("column %q is %s, expected string", name, col.Type)
		}

		values := make([]any, len(col.Values))
		for i, v := range col.Values {
			if v == nil {
				continue
			}
			s := strings.TrimSpace(v.(string))
			normalized, _, err := transform.String(t, s)
			if err != nil {
				return nil, nil, fmt.Errorf("normalize column %q row %d: %w", name, i, err)
			}
			if normalized != v.(string) {
				changed++
			}
			values[i] = normalized
		}

		var err error
		if out, err = out.WithColumn(core.Column{Name: name, Type: core.ColumnString, Values: values}); err != nil {
			return nil, nil, err
		}
	}

	return []*core.Table{out}, core.Metrics{"normalize_changed_values": float64(changed)}, nil
}
