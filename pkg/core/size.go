package core

// In-memory size estimate. Fixed-width values count their width, variable-width
// values count their payload plus a 4-byte offset, nulls count nothing, and
// every column pays one validity bit per row.

const offsetBytes = 4

func valueBytes(typ ColumnType, v any) int64 {
	if v == nil {
		return 0
	}
	switch typ {
	case ColumnInt64, ColumnFloat64:
		return 8
	case ColumnBool:
		return 1
	case ColumnString:
		return int64(len(v.(string))) + offsetBytes
	case ColumnBytes:
		return int64(len(v.([]byte))) + offsetBytes
	}
	return 0
}

// ValidityBytes is the null-bitmap overhead for a rows x columns block.
func ValidityBytes(rows, columns int) int64 {
	return int64((rows+7)/8) * int64(columns)
}

// RowBytes estimates the payload of row i, excluding validity bitmaps.
func (t *Table) RowBytes(i int) int64 {
	var n int64
	for _, c := range t.columns {
		n += valueBytes(c.Type, c.Values[i])
	}
	return n
}

func (t *Table) EstimatedBytes() int64 {
	if t == nil {
		return 0
	}
	var n int64
	for i := range t.rows {
		n += t.RowBytes(i)
	}
	return n + ValidityBytes(t.rows, len(t.columns))
}
