package dataaccess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nemanja-m/gotransform/pkg/core"
)

// FindLocalFiles expands doublestar patterns into the regular files they
// match. Directories and symlinks are skipped.
func FindLocalFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, err
		}
		for _, name := range matches {
			info, err := os.Lstat(name)
			if err != nil {
				continue
			}
			if info.Mode().IsRegular() {
				files = append(files, name)
			}
		}
	}
	return files, nil
}

// Local reads inputs below one directory and writes outputs below another.
type Local struct {
	inputRoot  string
	outputRoot string
	opts       Options
}

func NewLocal(inputRoot, outputRoot string, opts Options) *Local {
	return &Local{inputRoot: inputRoot, outputRoot: outputRoot, opts: opts}
}

func (l *Local) Describe() string {
	return fmt.Sprintf("local input=%s output=%s", l.inputRoot, l.outputRoot)
}

func (l *Local) ListFiles(ctx context.Context) ([]core.FileReference, error) {
	info, err := os.Stat(l.inputRoot)
	if err != nil {
		return nil, readError(fmt.Errorf("input folder %s: %w", l.inputRoot, err))
	}
	if !info.IsDir() {
		return nil, core.Errorf(core.KindRead, "input path %s is not a directory", l.inputRoot)
	}

	paths, err := l.find(l.inputRoot)
	if err != nil {
		return nil, readError(err)
	}

	files := make([]core.FileReference, 0, len(paths))
	for _, p := range paths {
		if !l.opts.matches(p) {
			continue
		}
		info, err := os.Lstat(p)
		if err != nil {
			return nil, readError(err)
		}
		rel, err := filepath.Rel(l.inputRoot, p)
		if err != nil {
			return nil, readError(err)
		}
		files = append(files, core.FileReference{Path: filepath.ToSlash(rel), Size: info.Size()})
	}
	return l.opts.finalize(files), nil
}

func (l *Local) find(root string) ([]string, error) {
	return FindLocalFiles([]string{filepath.Join(root, "**", "*")})
}

func (l *Local) ReadTable(ctx context.Context, file core.FileReference) (*core.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, readError(err)
	}
	f, err := os.Open(filepath.Join(l.inputRoot, filepath.FromSlash(file.Path)))
	if err != nil {
		return nil, readError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, readError(err)
	}
	t, err := DecodeParquet(f, info.Size())
	if err != nil {
		return nil, readError(fmt.Errorf("%s: %w", file.Path, err))
	}
	return t, nil
}

// WriteTable writes through a temporary file and renames it into place so
// readers never observe a partial table.
func (l *Local) WriteTable(ctx context.Context, relPath string, t *core.Table) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, writeError(err)
	}
	dest := filepath.Join(l.outputRoot, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, writeError(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*.parquet")
	if err != nil {
		return 0, writeError(err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeParquet(tmp, t); err != nil {
		tmp.Close()
		return 0, writeError(fmt.Errorf("%s: %w", relPath, err))
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, writeError(err)
	}
	if err := tmp.Close(); err != nil {
		return 0, writeError(err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, writeError(err)
	}
	return info.Size(), nil
}

func (l *Local) ListOutputs(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(l.outputRoot); os.IsNotExist(err) {
		return nil, nil
	}
	paths, err := FindLocalFiles([]string{filepath.Join(l.outputRoot, "**", "*.parquet")})
	if err != nil {
		return nil, readError(err)
	}
	outputs := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(l.outputRoot, p)
		if err != nil {
			return nil, readError(err)
		}
		outputs = append(outputs, filepath.ToSlash(rel))
	}
	return outputs, nil
}

func (l *Local) WriteReport(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(l.outputRoot, 0o755); err != nil {
		return writeError(err)
	}
	if err := os.WriteFile(filepath.Join(l.outputRoot, ReportName), data, 0o644); err != nil {
		return writeError(err)
	}
	return nil
}
