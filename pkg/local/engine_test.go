package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/dataaccess"
	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

func writeInput(t *testing.T, dir, name string, contents ...string) {
	t.Helper()
	vals := make([]any, len(contents))
	for i, c := range contents {
		vals[i] = c
	}
	table := pkgcore.MustTable(pkgcore.Column{Name: "contents", Type: pkgcore.ColumnString, Values: vals})
	_, err := dataaccess.NewLocal("", dir, dataaccess.Options{}).WriteTable(context.Background(), name, table)
	require.NoError(t, err)
}

func readOutput(t *testing.T, dir, name string) *pkgcore.Table {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	table, err := dataaccess.DecodeParquet(f, info.Size())
	require.NoError(t, err)
	return table
}

func readReport(t *testing.T, dir string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, dataaccess.ReportName))
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	return report
}

func TestEngine_FilterChain(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeInput(t, in, "a.parquet", "keep me", "drop me", "keep too")
	writeInput(t, in, "nested/b.parquet", "drop all")

	engine := NewEngine(Config{
		Name:    "filter-run",
		Workers: 2,
		Transforms: []transforms.Spec{
			{Name: "filter", Config: map[string]string{"column": "contents", "pattern": "^keep"}},
			{Name: "noop"},
		},
		Input:     in,
		Output:    out,
		LogOutput: io.Discard,
	})

	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusCompleted, report.Status)
	assert.Equal(t, 0, report.ExitCode)
	assert.Equal(t, 2.0, report.Statistics["files_processed"])
	assert.Equal(t, 4.0, report.Statistics["filter_rows_in"])
	assert.Equal(t, 2.0, report.Statistics["filter_rows_out"])

	table := readOutput(t, out, "a.parquet")
	col, _ := table.Column("contents")
	assert.Equal(t, []any{"keep me", "keep too"}, col.Values)

	_, err = os.Stat(filepath.Join(out, "nested", "b.parquet"))
	assert.True(t, os.IsNotExist(err), "an empty outcome writes nothing")

	persisted := readReport(t, out)
	assert.Equal(t, "COMPLETED", persisted["status"])
	assert.Equal(t, "filter-run", persisted["name"])
}

func TestEngine_ResizeChain(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	for i := range 3 {
		docs := make([]string, 4)
		for j := range docs {
			docs[j] = fmt.Sprintf("doc %d-%d", i, j)
		}
		writeInput(t, in, fmt.Sprintf("part-%d.parquet", i), docs...)
	}

	engine := NewEngine(Config{
		Workers: 3,
		Transforms: []transforms.Spec{
			{Name: "resize", Config: map[string]string{"max_rows_per_table": "5"}},
		},
		Input:     in,
		Output:    out,
		LogOutput: io.Discard,
	})

	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusCompleted, report.Status)

	var rows []any
	for _, name := range []string{"part-1_0.parquet", "part-2_1.parquet", "part-2_2.parquet"} {
		col, ok := readOutput(t, out, name).Column("contents")
		require.True(t, ok)
		rows = append(rows, col.Values...)
	}
	require.Len(t, rows, 12)
	assert.Equal(t, "doc 0-0", rows[0])
	assert.Equal(t, "doc 1-0", rows[4])
	assert.Equal(t, "doc 2-3", rows[11])
}

func TestEngine_MissingInputAborts(t *testing.T) {
	out := t.TempDir()

	engine := NewEngine(Config{
		Transforms: []transforms.Spec{{Name: "noop"}},
		Input:      filepath.Join(t.TempDir(), "missing"),
		Output:     out,
		LogOutput:  io.Discard,
	})

	report, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, core.JobStatusAborted, report.Status)
	assert.Equal(t, 1, report.ExitCode)
	assert.Equal(t, "ABORTED", readReport(t, out)["status"])
}

func TestEngine_RequiresDirectories(t *testing.T) {
	_, err := NewEngine(Config{Transforms: []transforms.Spec{{Name: "noop"}}}).Run(context.Background())
	assert.Error(t, err)
}
