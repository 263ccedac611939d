package stats

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeRules(t *testing.T) {
	a := NewDefaultAggregator()

	a.Merge(map[string]any{"source_size": 10, "max_file_size": 10.0, "min_file_size": 10, "engine": "local"})
	a.Merge(map[string]any{"source_size": int64(5), "max_file_size": 40, "min_file_size": uint32(3), "engine": "remote"})
	a.Merge(map[string]any{"custom_metric": float32(1.5)})

	snap := a.Snapshot()
	assert.Equal(t, 15.0, snap["source_size"])
	assert.Equal(t, 40.0, snap["max_file_size"])
	assert.Equal(t, 3.0, snap["min_file_size"])
	assert.Equal(t, "local", snap["engine"])
	assert.Equal(t, 1.5, snap["custom_metric"])
}

func TestNewAggregatorStartsAtZero(t *testing.T) {
	snap := NewDefaultAggregator().Snapshot()

	assert.Equal(t, 0.0, snap[FilesProcessed])
	assert.Equal(t, 0.0, snap[FilesFailed])
	assert.Equal(t, 0.0, snap[FilesRetried])
	assert.Len(t, snap, 4)
}

func TestNumericReplacesNonNumeric(t *testing.T) {
	a := NewDefaultAggregator()
	a.Merge(map[string]any{"k": "n/a"})
	a.Merge(map[string]any{"k": 2})
	a.Merge(map[string]any{"k": "later"})
	a.Merge(map[string]any{"k": 3})

	assert.Equal(t, 5.0, a.Float("k"))
}

func TestMergeIsOrderIndependent(t *testing.T) {
	partials := make([]map[string]any, 40)
	for i := range partials {
		partials[i] = map[string]any{
			"rows":          i,
			"max_file_size": int64(i * 7 % 13),
			"min_file_size": int64(100 - i),
		}
	}

	reference := NewDefaultAggregator()
	for _, p := range partials {
		reference.Merge(p)
	}

	r := rand.New(rand.NewPCG(1, 2))
	for range 10 {
		shuffled := append([]map[string]any(nil), partials...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		// fold into two halves and merge the halves to exercise associativity
		left, right := NewDefaultAggregator(), NewDefaultAggregator()
		for i, p := range shuffled {
			if i%2 == 0 {
				left.Merge(p)
			} else {
				right.Merge(p)
			}
		}
		right.MergeAggregator(left)

		assert.Equal(t, reference.Snapshot(), right.Snapshot())
	}
}

func TestConcurrentMerge(t *testing.T) {
	a := NewAggregator([]string{"peak"}, nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			for range 100 {
				a.Merge(map[string]any{"count": 1, "peak": i})
			}
		})
	}
	wg.Wait()

	require.Equal(t, 5000.0, a.Float("count"))
	require.Equal(t, 49.0, a.Float("peak"))
}
