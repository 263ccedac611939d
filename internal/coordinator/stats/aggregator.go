package stats

import (
	"maps"
	"sync"

	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
)

// Counter keys merged alongside transform metrics.
const (
	FilesProcessed    = "files_processed"
	FilesFailed       = "files_failed"
	FilesRetried      = "files_retried"
	FilesNotAttempted = "files_not_attempted"
)

// DefaultMaxKeys and DefaultMinKeys are the aggregation hints used when none are configured.
var (
	DefaultMaxKeys = []string{"max_file_size"}
	DefaultMinKeys = []string{"min_file_size"}
)

type rule int

const (
	ruleSum rule = iota
	ruleMax
	ruleMin
)

// Aggregator merges per-file metrics into job totals. Numeric values sum
// unless the key is a max or min hint; non-numeric values keep the first
// value seen, and a numeric value replaces a non-numeric one. Merge is safe
// for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	rules  map[string]rule
	totals map[string]any
}

func NewAggregator(maxKeys, minKeys []string) *Aggregator {
	a := &Aggregator{
		rules:  make(map[string]rule, len(maxKeys)+len(minKeys)),
		totals: make(map[string]any),
	}
	for _, k := range maxKeys {
		a.rules[k] = ruleMax
	}
	for _, k := range minKeys {
		a.rules[k] = ruleMin
	}
	a.totals[FilesProcessed] = 0.0
	a.totals[FilesFailed] = 0.0
	a.totals[FilesRetried] = 0.0
	a.totals[FilesNotAttempted] = 0.0
	return a
}

func NewDefaultAggregator() *Aggregator {
	return NewAggregator(DefaultMaxKeys, DefaultMinKeys)
}

// Merge folds partial into the running totals.
func (a *Aggregator) Merge(partial map[string]any) {
	if len(partial) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range partial {
		a.mergeLocked(k, v)
	}
}

// MergeAggregator folds another aggregator's totals into a.
func (a *Aggregator) MergeAggregator(other *Aggregator) {
	a.Merge(other.Snapshot())
}

func (a *Aggregator) mergeLocked(key string, v any) {
	f, numeric := pkgcore.ToFloat(v)
	cur, exists := a.totals[key]
	if !exists {
		if numeric {
			a.totals[key] = f
		} else {
			a.totals[key] = v
		}
		return
	}

	curF, curNumeric := cur.(float64)
	if !numeric {
		return
	}
	if !curNumeric {
		a.totals[key] = f
		return
	}
	switch a.rules[key] {
	case ruleMax:
		a.totals[key] = max(curF, f)
	case ruleMin:
		a.totals[key] = min(curF, f)
	default:
		a.totals[key] = curF + f
	}
}

// Snapshot returns a copy of the current totals.
func (a *Aggregator) Snapshot() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.totals)
}

func (a *Aggregator) Float(key string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, _ := a.totals[key].(float64)
	return f
}
