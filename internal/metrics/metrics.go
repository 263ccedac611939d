// Package metrics exposes job execution metrics to Prometheus, either
// scraped through the coordinator's /metrics endpoint or pushed to a
// Pushgateway when a run ends.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
)

const namespace = "gotransform"

// Phase labels for per-file timings.
const (
	PhaseRead      = "read"
	PhaseTransform = "transform"
	PhaseWrite     = "write"
)

// Collector owns a private registry so several runs in one process do not
// collide.
type Collector struct {
	reg *prometheus.Registry

	files     *prometheus.CounterVec   // files_total{state}
	attempts  *prometheus.CounterVec   // attempts_total{outcome}
	phases    *prometheus.HistogramVec // file_phase_seconds{phase}
	bytes     *prometheus.CounterVec   // bytes_total{direction}
	tables    prometheus.Counter       // output_tables_total
	pending   prometheus.Gauge
	inFlight  prometheus.Gauge
	jobStatus *prometheus.GaugeVec // job_status{status}
}

func NewCollector() (*Collector, error) {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg: reg,
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files that reached a final state or were requeued, by state.",
		}, []string{"state"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "File processing attempts reported by workers, by outcome.",
		}, []string{"outcome"}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_phase_seconds",
			Help:      "Time spent per file in each processing phase.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes read from inputs and written to outputs.",
		}, []string{"direction"}),
		tables: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_tables_total",
			Help:      "Output tables written.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_pending",
			Help:      "Files waiting for dispatch.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_in_flight",
			Help:      "Files currently dispatched to a worker.",
		}),
		jobStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_status",
			Help:      "1 for the current job status, 0 otherwise.",
		}, []string{"status"}),
	}

	for name, col := range map[string]prometheus.Collector{
		"files":     c.files,
		"attempts":  c.attempts,
		"phases":    c.phases,
		"bytes":     c.bytes,
		"tables":    c.tables,
		"pending":   c.pending,
		"in_flight": c.inFlight,
		"status":    c.jobStatus,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register %s collector: %w", name, err)
		}
	}
	return c, nil
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// FileState counts a file reaching state (succeeded, failed, retried,
// not_attempted).
func (c *Collector) FileState(state string) {
	c.files.WithLabelValues(state).Inc()
}

func (c *Collector) Queue(pending, inFlight int) {
	c.pending.Set(float64(pending))
	c.inFlight.Set(float64(inFlight))
}

func (c *Collector) JobStatus(status string, all ...string) {
	for _, s := range all {
		c.jobStatus.WithLabelValues(s).Set(0)
	}
	c.jobStatus.WithLabelValues(status).Set(1)
}

// ObserveAttempt records one worker report and the per-file metrics it
// carries.
func (c *Collector) ObserveAttempt(outcome string, m pkgcore.Metrics) {
	c.attempts.WithLabelValues(outcome).Inc()
	for key, phase := range map[string]string{
		"read_seconds":      PhaseRead,
		"transform_seconds": PhaseTransform,
		"write_seconds":     PhaseWrite,
	} {
		if v, ok := m[key].(float64); ok {
			c.phases.WithLabelValues(phase).Observe(v)
		}
	}
	if v, ok := m["source_size"].(float64); ok {
		c.bytes.WithLabelValues("read").Add(v)
	}
	if v, ok := m["result_size"].(float64); ok {
		c.bytes.WithLabelValues("written").Add(v)
	}
	if v, ok := m["result_files"].(float64); ok {
		c.tables.Add(v)
	}
}

// TablesWritten counts tables written outside a worker report.
func (c *Collector) TablesWritten(n int, size int64) {
	c.tables.Add(float64(n))
	c.bytes.WithLabelValues("written").Add(float64(size))
}

// Push sends the registry to a Pushgateway under the given job name.
func (c *Collector) Push(ctx context.Context, gatewayURL, jobName string) error {
	if gatewayURL == "" {
		return fmt.Errorf("pushgateway URL is required")
	}
	if jobName == "" {
		jobName = namespace
	}
	return push.New(gatewayURL, jobName).Gatherer(c.reg).PushContext(ctx)
}
