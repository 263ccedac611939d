// Package docid adds a content hash column and an optional random identifier column.
package docid

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

func init() {
	transforms.MustRegister("docid", func() any {
		return &Transform{contentColumn: "contents", hashColumn: "doc_hash"}
	})
}

type Transform struct {
	contentColumn string
	hashColumn    string
	uuidColumn    string
}

func (d *Transform) Name() string {
	return "docid"
}

func (d *Transform) Describe() string {
	return "adds an xxh3 content hash and optionally a uuid per document"
}

func (d *Transform) Configure(config map[string]string) error {
	if v, ok := config["content_column"]; ok {
		d.contentColumn = v
	}
	if v, ok := config["hash_column"]; ok {
		d.hashColumn = v
	}
	if v, ok := config["uuid_column"]; ok {
		d.uuidColumn = v
	}
	return nil
}

func (d *Transform) Validate() error {
	if d.contentColumn == "" {
		return fmt.Errorf("content_column must not be empty")
	}
	if d.hashColumn == "" && d.uuidColumn == "" {
		return fmt.Errorf("at least one of hash_column or uuid_column must be set")
	}
	if d.hashColumn != "" && d.hashColumn == d.uuidColumn {
		return fmt.Errorf("hash_column and uuid_column must differ")
	}
	return nil
}

func (d *Transform) Apply(_ context.Context, table *core.Table) ([]*core.Table, core.Metrics, error) {
	content, ok := table.Column(d.contentColumn)
	if !ok {
		return nil, nil, fmt.Errorf("missing column %q", d.contentColumn)
	}
	if content.Type != core.ColumnString {
		return nil, nil, fmt.Errorf("column %q is %s, expected string", d.contentColumn, content.Type)
	}

	out := table
	if d.hashColumn != "" {
		hashes := make([]any, len(content.Values))
		for i, v := range content.Values {
			if v == nil {
				continue
			}
			sum := xxh3.HashString128(v.(string)).Bytes()
			hashes[i] = hex.EncodeToString(sum[:])
		}
		var err error
		if out, err = out.WithColumn(core.Column{Name: d.hashColumn, Type: core.ColumnString, Values: hashes}); err != nil {
			return nil, nil, err
		}
	}
	if d.uuidColumn != "" {
		ids := make([]any, len(content.Values))
		for i := range ids {
			ids[i] = uuid.NewString()
		}
		var err error
		if out, err = out.WithColumn(core.Column{Name: d.uuidColumn, Type: core.ColumnString, Values: ids}); err != nil {
			return nil, nil, err
		}
	}

	return []*core.Table{out}, core.Metrics{"docid_rows": float64(table.NumRows())}, nil
}
