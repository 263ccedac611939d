package core

import (
	"path"
	"reflect"
	"strings"
)

// FileReference identifies one input file. Path is relative to the dataset
// root and uses forward slashes. Index is the enumeration position.
type FileReference struct {
	Path  string
	Size  int64
	Index int
}

// Stem returns the file name without directory and extension.
func (f FileReference) Stem() string {
	base := path.Base(f.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Dir returns the directory part of Path, or "" for files at the root.
func (f FileReference) Dir() string {
	d := path.Dir(f.Path)
	if d == "." {
		return ""
	}
	return d
}

// Metrics maps a metric key to a numeric or string value.
type Metrics map[string]any

// Add sums v into m. A missing or non-numeric value counts as zero.
func (m Metrics) Add(key string, v float64) {
	if cur, ok := ToFloat(m[key]); ok {
		m[key] = cur + v
		return
	}
	m[key] = v
}

// Merge folds other into m. Numeric values of any Go kind are summed as
// float64; other values keep the first one seen.
func (m Metrics) Merge(other Metrics) {
	for k, v := range other {
		if f, ok := ToFloat(v); ok {
			m.Add(k, f)
			continue
		}
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
}

// ToFloat converts any Go numeric kind to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case nil, string, bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomeEmpty   OutcomeStatus = "EMPTY"
	OutcomeFailure OutcomeStatus = "FAILURE"
)

// Outcome is the result of running the chain over one input unit.
type Outcome struct {
	Status  OutcomeStatus
	Tables  []*Table
	Metrics Metrics
	Err     error
}

func Success(tables []*Table, metrics Metrics) Outcome {
	if len(tables) == 0 {
		return Outcome{Status: OutcomeEmpty, Metrics: metrics}
	}
	return Outcome{Status: OutcomeSuccess, Tables: tables, Metrics: metrics}
}

func Failure(err error, metrics Metrics) Outcome {
	return Outcome{Status: OutcomeFailure, Err: err, Metrics: metrics}
}
