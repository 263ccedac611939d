package core

import (
	"fmt"
	"slices"
)

type ColumnType string

const (
	ColumnInt64   ColumnType = "int64"
	ColumnFloat64 ColumnType = "float64"
	ColumnString  ColumnType = "string"
	ColumnBool    ColumnType = "bool"
	ColumnBytes   ColumnType = "bytes"
)

// Column is a named, typed vector of values. A nil entry is a null.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

type Field struct {
	Name string
	Type ColumnType
}

// Table is an in-memory columnar batch. All columns share the same length.
type Table struct {
	columns []Column
	index   map[string]int
	rows    int
}

func NewTable(columns ...Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(columns))}
	for i, col := range columns {
		if _, exists := t.index[col.Name]; exists {
			return nil, fmt.Errorf("duplicate column: %s", col.Name)
		}
		if i == 0 {
			t.rows = len(col.Values)
		} else if len(col.Values) != t.rows {
			return nil, fmt.Errorf("column %s has %d values, expected %d", col.Name, len(col.Values), t.rows)
		}
		for j, v := range col.Values {
			if err := checkValue(col.Type, v); err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", col.Name, j, err)
			}
		}
		t.index[col.Name] = i
		t.columns = append(t.columns, col)
	}
	return t, nil
}

// MustTable is NewTable that panics on error. Intended for literals in tests.
func MustTable(columns ...Column) *Table {
	t, err := NewTable(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// EmptyTable returns a zero-row table with the given schema.
func EmptyTable(schema []Field) *Table {
	cols := make([]Column, len(schema))
	for i, f := range schema {
		cols[i] = Column{Name: f.Name, Type: f.Type, Values: []any{}}
	}
	return MustTable(cols...)
}

func checkValue(typ ColumnType, v any) error {
	if v == nil {
		return nil
	}
	ok := false
	switch typ {
	case ColumnInt64:
		_, ok = v.(int64)
	case ColumnFloat64:
		_, ok = v.(float64)
	case ColumnString:
		_, ok = v.(string)
	case ColumnBool:
		_, ok = v.(bool)
	case ColumnBytes:
		_, ok = v.([]byte)
	default:
		return fmt.Errorf("unsupported column type %q", typ)
	}
	if !ok {
		return fmt.Errorf("value of type %T does not fit %s", v, typ)
	}
	return nil
}

func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return t.rows
}

func (t *Table) NumColumns() int {
	return len(t.columns)
}

// Columns returns the columns in declared order. Callers must not mutate the values.
func (t *Table) Columns() []Column {
	return t.columns
}

func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

func (t *Table) Schema() []Field {
	fields := make([]Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = Field{Name: c.Name, Type: c.Type}
	}
	return fields
}

// SameSchema reports whether both tables have identical column names and types in the same order.
func (t *Table) SameSchema(other *Table) bool {
	return slices.Equal(t.Schema(), other.Schema())
}

// Row returns a copy of row i as column name to value.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Slice returns rows [start, end) as a new table that shares no value slices with t.
func (t *Table) Slice(start, end int) *Table {
	if start < 0 {
		start = 0
	}
	if end > t.rows {
		end = t.rows
	}
	if end < start {
		end = start
	}
	out := &Table{index: t.index, rows: end - start}
	out.columns = make([]Column, len(t.columns))
	for i, c := range t.columns {
		out.columns[i] = Column{Name: c.Name, Type: c.Type, Values: slices.Clone(c.Values[start:end])}
	}
	return out
}

// SelectRows returns a new table holding the given rows in the given order.
func (t *Table) SelectRows(indices []int) *Table {
	out := &Table{index: t.index, rows: len(indices)}
	out.columns = make([]Column, len(t.columns))
	for i, c := range t.columns {
		values := make([]any, len(indices))
		for j, idx := range indices {
			values[j] = c.Values[idx]
		}
		out.columns[i] = Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return out
}

// WithColumn returns a new table with col appended, or replacing an existing column of the same name.
func (t *Table) WithColumn(col Column) (*Table, error) {
	cols := slices.Clone(t.columns)
	if i, ok := t.index[col.Name]; ok {
		cols[i] = col
	} else {
		cols = append(cols, col)
	}
	if len(t.columns) == 0 {
		return NewTable(cols...)
	}
	if len(col.Values) != t.rows {
		return nil, fmt.Errorf("column %s has %d values, table has %d rows", col.Name, len(col.Values), t.rows)
	}
	return NewTable(cols...)
}

// Concat appends tables in order. All tables must share the schema of the first.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return &Table{index: map[string]int{}}, nil
	}
	first := tables[0]
	total := 0
	for i, tbl := range tables {
		if !first.SameSchema(tbl) {
			return nil, NewError(KindTransform, fmt.Errorf("schema of table %d does not match the first table", i))
		}
		total += tbl.rows
	}

	out := &Table{index: first.index, rows: total}
	out.columns = make([]Column, len(first.columns))
	for i, c := range first.columns {
		values := make([]any, 0, total)
		for _, tbl := range tables {
			values = append(values, tbl.columns[i].Values...)
		}
		out.columns[i] = Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return out, nil
}
