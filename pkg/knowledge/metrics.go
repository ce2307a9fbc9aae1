package knowledge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics tracks fix recording and recall activity.
type Metrics struct {
	FixesRecorded  prometheus.Counter
	Recalls        prometheus.Counter
	RecallResults  prometheus.Histogram
	RecallTopScore prometheus.Histogram
}

// NewMetrics creates or returns the global metrics instance.
// Metrics are registered once with the default Prometheus registry.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			FixesRecorded: promauto.NewCounter(prometheus.CounterOpts{
				Name: "knowledge_fixes_recorded_total",
				Help: "Total fixes recorded in the remediation memory",
			}),
			Recalls: promauto.NewCounter(prometheus.CounterOpts{
				Name: "knowledge_recalls_total",
				Help: "Total recall queries against the remediation memory",
			}),
			RecallResults: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "knowledge_recall_results",
				Help:    "Results returned per recall after threshold filtering",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			}),
			RecallTopScore: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "knowledge_recall_top_score",
				Help:    "Hybrid score of the best result per non-empty recall",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			}),
		}
	})
	return globalMetrics
}

// RecordFix increments the recorded fix counter.
func (m *Metrics) RecordFix() {
	m.FixesRecorded.Inc()
}

// RecordRecall records a recall query and its outcome.
func (m *Metrics) RecordRecall(results int, topScore float64) {
	m.Recalls.Inc()
	m.RecallResults.Observe(float64(results))
	if results > 0 {
		m.RecallTopScore.Observe(topScore)
	}
}
