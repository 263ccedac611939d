package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(t *testing.T, ids ...int64) *Table {
	t.Helper()
	idVals := make([]any, len(ids))
	textVals := make([]any, len(ids))
	for i, id := range ids {
		idVals[i] = id
		textVals[i] = "doc"
	}
	tbl, err := NewTable(
		Column{Name: "id", Type: ColumnInt64, Values: idVals},
		Column{Name: "text", Type: ColumnString, Values: textVals},
	)
	require.NoError(t, err)
	return tbl
}

func ids(t *Table) []any {
	c, _ := t.Column("id")
	return c.Values
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		columns []Column
		wantErr bool
	}{
		{
			name: "valid",
			columns: []Column{
				{Name: "a", Type: ColumnInt64, Values: []any{int64(1), nil}},
				{Name: "b", Type: ColumnString, Values: []any{"x", "y"}},
			},
		},
		{
			name: "length mismatch",
			columns: []Column{
				{Name: "a", Type: ColumnInt64, Values: []any{int64(1)}},
				{Name: "b", Type: ColumnString, Values: []any{"x", "y"}},
			},
			wantErr: true,
		},
		{
			name: "duplicate name",
			columns: []Column{
				{Name: "a", Type: ColumnInt64, Values: []any{int64(1)}},
				{Name: "a", Type: ColumnInt64, Values: []any{int64(2)}},
			},
			wantErr: true,
		},
		{
			name: "wrong value type",
			columns: []Column{
				{Name: "a", Type: ColumnInt64, Values: []any{"nope"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.columns...)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSliceIsIndependent(t *testing.T) {
	tbl := sampleTable(t, 1, 2, 3, 4)

	s := tbl.Slice(1, 3)
	require.Equal(t, 2, s.NumRows())
	assert.Equal(t, []any{int64(2), int64(3)}, ids(s))

	s.Columns()[0].Values[0] = int64(99)
	assert.Equal(t, int64(2), ids(tbl)[1])
}

func TestConcatPreservesOrder(t *testing.T) {
	out, err := Concat(sampleTable(t, 1, 2), sampleTable(t), sampleTable(t, 3))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, ids(out))
}

func TestConcatSchemaMismatch(t *testing.T) {
	other := MustTable(Column{Name: "id", Type: ColumnString, Values: []any{"1"}})

	_, err := Concat(sampleTable(t, 1), other)
	require.Error(t, err)
	assert.Equal(t, KindTransform, KindOf(err))
}

func TestWithColumn(t *testing.T) {
	tbl := sampleTable(t, 1, 2)

	out, err := tbl.WithColumn(Column{Name: "score", Type: ColumnFloat64, Values: []any{0.5, 1.5}})
	require.NoError(t, err)
	assert.Equal(t, 3, out.NumColumns())
	assert.Equal(t, 2, tbl.NumColumns())

	_, err = tbl.WithColumn(Column{Name: "score", Type: ColumnFloat64, Values: []any{0.5}})
	require.Error(t, err)
}

func TestEstimatedBytes(t *testing.T) {
	tbl := MustTable(
		Column{Name: "n", Type: ColumnInt64, Values: []any{int64(1), nil}},
		Column{Name: "s", Type: ColumnString, Values: []any{"abcd", "ab"}},
	)

	// payload: 8 + 0 + (4+4) + (2+4) = 22, validity: 1 byte per column
	assert.Equal(t, int64(24), tbl.EstimatedBytes())
	assert.Equal(t, int64(16), tbl.RowBytes(0))
}

func TestValidityBytes(t *testing.T) {
	assert.Equal(t, int64(0), ValidityBytes(0, 3))
	assert.Equal(t, int64(3), ValidityBytes(8, 3))
	assert.Equal(t, int64(6), ValidityBytes(9, 3))
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		transient bool
	}{
		{"transient read", TransientError(KindRead, base), KindRead, true},
		{"permanent write", NewError(KindWrite, base), KindWrite, false},
		{"transform is never transient", &Error{Kind: KindTransform, Transient: true, Err: base}, KindTransform, false},
		{"unclassified", base, KindTransform, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
}

func TestFileReferenceNaming(t *testing.T) {
	f := FileReference{Path: "a/b/part-01.parquet"}
	assert.Equal(t, "part-01", f.Stem())
	assert.Equal(t, "a/b", f.Dir())
	assert.Equal(t, "", FileReference{Path: "x.parquet"}.Dir())
}

func TestMetricsMerge(t *testing.T) {
	m := Metrics{"rows": 2, "label": "first"}
	m.Merge(Metrics{"rows": int64(3), "ratio": float32(0.5), "label": "second", "bytes": uint16(7)})
	m.Merge(Metrics{"rows": 1.5, "ratio": 0.25})
	m.Add("bytes", 1)

	assert.Equal(t, 6.5, m["rows"])
	assert.Equal(t, 0.75, m["ratio"])
	assert.Equal(t, 8.0, m["bytes"])
	assert.Equal(t, "first", m["label"])
}

func TestMetricsAddReplacesNonNumeric(t *testing.T) {
	m := Metrics{"status": "unknown"}
	m.Add("status", 2)
	assert.Equal(t, 2.0, m["status"])
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: 3, want: 3, ok: true},
		{in: int8(-2), want: -2, ok: true},
		{in: uint64(9), want: 9, ok: true},
		{in: float32(1.5), want: 1.5, ok: true},
		{in: 2.25, want: 2.25, ok: true},
		{in: "3", ok: false},
		{in: true, ok: false},
		{in: nil, ok: false},
	}
	for _, tt := range tests {
		got, ok := ToFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "%T", tt.in)
		assert.Equal(t, tt.want, got, "%T", tt.in)
	}
}
