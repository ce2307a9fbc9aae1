package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics tracks run outcomes and per-stage latency.
type Metrics struct {
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
}

// NewMetrics creates or returns the global metrics instance.
// Metrics are registered once with the default Prometheus registry.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Runs: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Remediation runs by terminal status",
			}, []string{"status"}),
			RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "End-to-end remediation run duration",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			}),
			StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Stage execution duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			}, []string{"stage"}),
			StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pipeline_stage_failures_total",
				Help: "Stage failures by stage",
			}, []string{"stage"}),
		}
	})
	return globalMetrics
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration, ok bool) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if !ok {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}
