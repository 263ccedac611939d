// Package dataaccess enumerates input datasets and reads and writes tables
// on local disk or S3-compatible object storage. Every error it returns is a
// *core.Error classified as a read or write failure, transient or not.
package dataaccess

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/nemanja-m/gotransform/pkg/core"
)

// ReportName is the file the job report is written to, at the output root.
const ReportName = "metadata.json"

// DataAccess is the boundary between the engine and where files live.
// Paths passed to write methods are relative to the output root and use
// forward slashes.
type DataAccess interface {
	// ListFiles returns input files sorted by path, indexed in that order.
	ListFiles(ctx context.Context) ([]core.FileReference, error)
	ReadTable(ctx context.Context, file core.FileReference) (*core.Table, error)
	// WriteTable writes t and returns the number of bytes written.
	WriteTable(ctx context.Context, relPath string, t *core.Table) (int64, error)
	// ListOutputs returns the relative paths of existing output tables.
	ListOutputs(ctx context.Context) ([]string, error)
	WriteReport(ctx context.Context, data []byte) error
	Describe() string
}

// Options shared by every backend.
type Options struct {
	Extensions []string
}

func (o Options) matches(name string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(name))
	for _, e := range o.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// finalize sorts and indexes an enumeration.
func (o Options) finalize(files []core.FileReference) []core.FileReference {
	slices.SortFunc(files, func(a, b core.FileReference) int {
		return strings.Compare(a.Path, b.Path)
	})
	for i := range files {
		files[i].Index = i
	}
	return files
}

// OutputPath derives where output i of n for file is written. A single
// output keeps the input's stem; several are numbered.
func OutputPath(file core.FileReference, i, n int) string {
	name := file.Stem() + ".parquet"
	if n > 1 {
		name = fmt.Sprintf("%s_%d.parquet", file.Stem(), i)
	}
	return path.Join(file.Dir(), name)
}

// SequencedOutputPath names the seq-th table emitted by a stateful stage
// while consuming file.
func SequencedOutputPath(file core.FileReference, seq int) string {
	return path.Join(file.Dir(), fmt.Sprintf("%s_%d.parquet", file.Stem(), seq))
}

// CheckOutputNames rejects inputs whose per-file outputs could land on the
// same path: two files sharing a directory and stem, or a file named like a
// numbered output of a sibling (x_0.parquet next to x.parquet).
func CheckOutputNames(files []core.FileReference) error {
	owners := make(map[string]string, len(files))
	var clashes []string
	for _, f := range files {
		name := OutputPath(f, 0, 1)
		if other, ok := owners[name]; ok {
			clashes = append(clashes, fmt.Sprintf("%s and %s both write %s", other, f.Path, name))
			continue
		}
		owners[name] = f.Path
	}
	for _, f := range files {
		stem, ok := numberedStem(f.Stem())
		if !ok {
			continue
		}
		if owner, ok := owners[path.Join(f.Dir(), stem+".parquet")]; ok {
			clashes = append(clashes, fmt.Sprintf("outputs of %s can overwrite the output of %s", owner, f.Path))
		}
	}
	if len(clashes) > 0 {
		return core.Errorf(core.KindConfiguration, "output names clash: %s", strings.Join(clashes, "; "))
	}
	return nil
}

// numberedStem splits "x_3" into "x". The suffix must be formatted the way
// OutputPath formats output numbers.
func numberedStem(stem string) (string, bool) {
	i := strings.LastIndexByte(stem, '_')
	if i <= 0 {
		return "", false
	}
	n, err := strconv.Atoi(stem[i+1:])
	if err != nil || strconv.Itoa(n) != stem[i+1:] {
		return "", false
	}
	return stem[:i], true
}

// Limit keeps the first n files when n is positive.
func Limit(files []core.FileReference, n int) []core.FileReference {
	if n > 0 && len(files) > n {
		return files[:n]
	}
	return files
}

// SkipCompleted drops files whose primary output already exists and
// re-indexes the remainder.
func SkipCompleted(files []core.FileReference, outputs []string) (remaining []core.FileReference, skipped int) {
	done := mapset.NewThreadUnsafeSet(outputs...)
	for _, f := range files {
		if done.Contains(OutputPath(f, 0, 1)) || done.Contains(OutputPath(f, 0, 2)) {
			skipped++
			continue
		}
		f.Index = len(remaining)
		remaining = append(remaining, f)
	}
	return remaining, skipped
}
