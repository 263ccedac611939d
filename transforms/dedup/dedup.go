// Package dedup removes exact duplicate rows within a table, comparing a set
// of key columns by their xxhash digest.
package dedup

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

const (
	KeepFirst = "keep-first"
	KeepLast  = "keep-last"
)

func init() {
	transforms.MustRegister("dedup", func() any {
		return &Transform{policy: KeepFirst}
	})
}

type Transform struct {
	keys   []string
	policy string
}

func (d *Transform) Name() string {
	return "dedup"
}

func (d *Transform) Describe() string {
	return "drops rows whose key columns duplicate an earlier or later row"
}

func (d *Transform) Configure(config map[string]string) error {
	if v, ok := config["columns"]; ok {
		for c := range strings.SplitSeq(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				d.keys = append(d.keys, c)
			}
		}
	}
	if v, ok := config["policy"]; ok {
		d.policy = v
	}
	return nil
}

func (d *Transform) Validate() error {
	if len(d.keys) == 0 {
		return fmt.Errorf("columns must name at least one key column")
	}
	if d.policy != KeepFirst && d.policy != KeepLast {
		return fmt.Errorf("unknown policy %q, expected %s or %s", d.policy, KeepFirst, KeepLast)
	}
	return nil
}

func (d *Transform) Apply(_ context.Context, table *core.Table) ([]*core.Table, core.Metrics, error) {
	cols := make([]core.Column, len(d.keys))
	for i, name := range d.keys {
		c, ok := table.Column(name)
		if !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
		cols[i] = c
	}

	n := table.NumRows()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if d.policy == KeepLast {
		slices.Reverse(order)
	}

	seen := make(map[uint64]struct{}, n)
	keep := make([]int, 0, n)
	h := xxhash.New()
	for _, row := range order {
		h.Reset()
		for _, c := range cols {
			writeValue(h, c.Values[row])
		}
		sum := h.Sum64()
		if _, dup := seen[sum]; dup {
			continue
		}
		seen[sum] = struct{}{}
		keep = append(keep, row)
	}
	slices.Sort(keep)

	metrics := core.Metrics{"dedup_removed": float64(n - len(keep))}
	if len(keep) == n {
		return []*core.Table{table}, metrics, nil
	}
	return []*core.Table{table.SelectRows(keep)}, metrics, nil
}

// writeValue feeds a type-tagged, length-prefixed encoding of v so that
// adjacent key values cannot collide by concatenation.
func writeValue(h *xxhash.Digest, v any) {
	var buf [9]byte
	switch x := v.(type) {
	case nil:
		buf[0] = 0
		h.Write(buf[:1])
	case int64:
		buf[0] = 1
		binary.LittleEndian.PutUint64(buf[1:], uint64(x))
		h.Write(buf[:])
	case float64:
		buf[0] = 2
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(x))
		h.Write(buf[:])
	case bool:
		buf[0] = 3
		if x {
			buf[1] = 1
		}
		h.Write(buf[:2])
	case string:
		buf[0] = 4
		binary.LittleEndian.PutUint64(buf[1:], uint64(len(x)))
		h.Write(buf[:])
		h.WriteString(x)
	case []byte:
		buf[0] = 5
		binary.LittleEndian.PutUint64(buf[1:], uint64(len(x)))
		h.Write(buf[:])
		h.Write(x)
	}
}
