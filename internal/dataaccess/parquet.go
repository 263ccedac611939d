package dataaccess

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/nemanja-m/gotransform/pkg/core"
)

// parquet groups order their fields by name, so the declared column order
// and types travel in the file's key/value metadata.
const schemaMetadataKey = "gotransform.schema"

const readBatchSize = 1024

func parquetNode(typ core.ColumnType) (parquet.Node, error) {
	switch typ {
	case core.ColumnInt64:
		return parquet.Optional(parquet.Int(64)), nil
	case core.ColumnFloat64:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType)), nil
	case core.ColumnString:
		return parquet.Optional(parquet.String()), nil
	case core.ColumnBool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType)), nil
	case core.ColumnBytes:
		return parquet.Optional(parquet.Leaf(parquet.ByteArrayType)), nil
	}
	return nil, fmt.Errorf("unsupported column type %q", typ)
}

func parquetSchema(t *core.Table) (*parquet.Schema, error) {
	group := make(parquet.Group, t.NumColumns())
	for _, c := range t.Columns() {
		node, err := parquetNode(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		group[c.Name] = node
	}
	return parquet.NewSchema("table", group), nil
}

// EncodeParquet writes t as a zstd-compressed parquet file.
func EncodeParquet(w io.Writer, t *core.Table) error {
	if t.NumColumns() == 0 {
		return errors.New("cannot encode a table without columns")
	}
	schema, err := parquetSchema(t)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(t.Schema())
	if err != nil {
		return err
	}

	pw := parquet.NewGenericWriter[map[string]any](w, schema,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(schemaMetadataKey, string(meta)),
	)

	cols := t.Columns()
	batch := make([]map[string]any, 0, readBatchSize)
	for i := range t.NumRows() {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			if v := c.Values[i]; v != nil {
				row[c.Name] = v
			}
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if _, err := pw.Write(batch); err != nil {
				return fmt.Errorf("failed to write rows: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := pw.Write(batch); err != nil {
			return fmt.Errorf("failed to write rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// DecodeParquet reads a whole parquet file into a table. Files written by
// EncodeParquet keep their column order; other files get the file's field order.
func DecodeParquet(r io.ReaderAt, size int64) (*core.Table, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	fields, err := tableSchema(pf)
	if err != nil {
		return nil, err
	}

	total := pf.NumRows()
	columns := make([]core.Column, len(fields))
	for i, f := range fields {
		columns[i] = core.Column{Name: f.Name, Type: f.Type, Values: make([]any, 0, total)}
	}

	pfr := parquet.NewGenericReader[map[string]any](pf, pf.Schema())
	defer pfr.Close()

	buf := make([]map[string]any, readBatchSize)
	for i := range buf {
		buf[i] = make(map[string]any)
	}
	for {
		for i := range buf {
			clear(buf[i])
		}
		n, err := pfr.Read(buf)
		for _, row := range buf[:n] {
			for ci := range columns {
				v, err := coerce(columns[ci].Type, row[columns[ci].Name])
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", columns[ci].Name, err)
				}
				columns[ci].Values = append(columns[ci].Values, v)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parquet reader error: %w", err)
		}
		if n == 0 {
			break
		}
	}

	return core.NewTable(columns...)
}

func tableSchema(pf *parquet.File) ([]core.Field, error) {
	if meta, ok := pf.Lookup(schemaMetadataKey); ok {
		var fields []core.Field
		if err := json.Unmarshal([]byte(meta), &fields); err != nil {
			return nil, fmt.Errorf("invalid %s metadata: %w", schemaMetadataKey, err)
		}
		return fields, nil
	}

	var fields []core.Field
	for _, f := range pf.Schema().Fields() {
		if !f.Leaf() {
			return nil, fmt.Errorf("nested column %s is not supported", f.Name())
		}
		typ, err := columnType(f)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name(), err)
		}
		fields = append(fields, core.Field{Name: f.Name(), Type: typ})
	}
	return fields, nil
}

func columnType(f parquet.Field) (core.ColumnType, error) {
	switch f.Type().Kind() {
	case parquet.Boolean:
		return core.ColumnBool, nil
	case parquet.Int32, parquet.Int64:
		return core.ColumnInt64, nil
	case parquet.Float, parquet.Double:
		return core.ColumnFloat64, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if lt := f.Type().LogicalType(); lt != nil && lt.UTF8 != nil {
			return core.ColumnString, nil
		}
		return core.ColumnBytes, nil
	}
	return "", fmt.Errorf("unsupported parquet kind %s", f.Type().Kind())
}

func coerce(typ core.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case core.ColumnInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case int:
			return int64(x), nil
		}
	case core.ColumnFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
	case core.ColumnString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case core.ColumnBool:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case core.ColumnBytes:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, fmt.Errorf("value of type %T does not fit %s", v, typ)
}
