package index

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the codebase index.
type Metrics struct {
	BuildsTotal    prometheus.Counter
	BuildDuration  prometheus.Histogram
	FilesIndexed   prometheus.Gauge
	SymbolsIndexed prometheus.Gauge

	SearchesTotal  prometheus.Counter
	SearchDuration prometheus.Histogram
	SearchResults  prometheus.Histogram
	EmptySearches  prometheus.Counter

	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	InvalidationsTotal prometheus.Counter
}

// NewMetrics creates and registers the index metrics.
//
// Registration happens once per process; subsequent calls return the same
// instance, preventing duplicate-collector panics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			BuildsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codebase_index_builds_total",
					Help: "Total number of index builds",
				},
			),

			BuildDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "codebase_index_build_duration_seconds",
					Help:    "Duration of index builds in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
				},
			),

			FilesIndexed: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "codebase_index_files",
					Help: "Number of files in the most recent index build",
				},
			),

			SymbolsIndexed: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "codebase_index_symbols",
					Help: "Number of distinct symbol names in the most recent index build",
				},
			),

			SearchesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codebase_index_searches_total",
					Help: "Total number of index searches",
				},
			),

			SearchDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "codebase_index_search_duration_seconds",
					Help:    "Duration of index searches in seconds",
					Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
				},
			),

			SearchResults: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "codebase_index_search_results",
					Help:    "Number of candidates returned per search",
					Buckets: prometheus.LinearBuckets(0, 1, 11),
				},
			),

			EmptySearches: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codebase_index_empty_searches_total",
					Help: "Total number of searches that returned no candidates",
				},
			),

			CacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codebase_index_cache_hits_total",
					Help: "Total number of cached index reuses",
				},
			),

			CacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codebase_index_cache_misses_total",
					Help: "Total number of index cache misses",
				},
			),

			InvalidationsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codebase_index_invalidations_total",
					Help: "Total number of index cache invalidations",
				},
			),
		}
	})

	return globalMetrics
}

// RecordBuild records a completed index build.
func (m *Metrics) RecordBuild(durationSeconds float64, files, symbols int) {
	m.BuildsTotal.Inc()
	m.BuildDuration.Observe(durationSeconds)
	m.FilesIndexed.Set(float64(files))
	m.SymbolsIndexed.Set(float64(symbols))
}

// RecordSearch records one search and its result count.
func (m *Metrics) RecordSearch(durationSeconds float64, results int) {
	m.SearchesTotal.Inc()
	m.SearchDuration.Observe(durationSeconds)
	m.SearchResults.Observe(float64(results))
	if results == 0 {
		m.EmptySearches.Inc()
	}
}

// RecordCacheHit records a cached index reuse.
func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records an index cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

// RecordInvalidation records an index cache invalidation.
func (m *Metrics) RecordInvalidation() {
	m.InvalidationsTotal.Inc()
}
