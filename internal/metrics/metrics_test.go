package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
)

func TestObserveAttempt(t *testing.T) {
	c, err := NewCollector()
	require.NoError(t, err)

	c.ObserveAttempt("success", pkgcore.Metrics{
		"read_seconds":  0.5,
		"source_size":   100.0,
		"result_size":   40.0,
		"result_files":  2.0,
		"unrelated_key": "x",
	})
	c.ObserveAttempt("failure", pkgcore.Metrics{"source_size": 10.0})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("failure")))
	assert.Equal(t, 110.0, testutil.ToFloat64(c.bytes.WithLabelValues("read")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.bytes.WithLabelValues("written")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.tables))
	assert.Equal(t, 1, testutil.CollectAndCount(c.phases))
}

func TestFileStateAndQueue(t *testing.T) {
	c, err := NewCollector()
	require.NoError(t, err)

	c.FileState("succeeded")
	c.FileState("succeeded")
	c.FileState("retried")
	c.Queue(3, 1)
	c.JobStatus("COMPLETED", "RUNNING", "COMPLETED")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.files.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.files.WithLabelValues("retried")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.jobStatus.WithLabelValues("RUNNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobStatus.WithLabelValues("COMPLETED")))
}

func TestPush(t *testing.T) {
	var hits atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewCollector()
	require.NoError(t, err)
	c.FileState("succeeded")

	require.NoError(t, c.Push(context.Background(), srv.URL, "nightly"))
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, strings.HasSuffix(path.Load().(string), "/job/nightly"))

	require.Error(t, c.Push(context.Background(), "", "nightly"))
}
