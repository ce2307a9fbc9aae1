// Package main generates sample remedyd metrics for Grafana dashboard
// development, so dashboards can be built and reviewed without running a
// real pipeline against real errors.
//
// The metric names and label sets mirror pkg/pipeline/metrics.go and
// pkg/knowledge/metrics.go; keep them in sync when those change.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Remediation runs by terminal status",
		},
		[]string{"status"},
	)
	pipelineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "End-to-end remediation run duration",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)
	pipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Stage execution duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"stage"},
	)
	pipelineStageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Stage failures by stage",
		},
		[]string{"stage"},
	)

	// Knowledge metrics
	knowledgeFixesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_fixes_recorded_total",
			Help: "Total fixes recorded in the remediation memory",
		},
	)
	knowledgeRecalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_recalls_total",
			Help: "Total recall queries against the remediation memory",
		},
	)
	knowledgeRecallResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledge_recall_results",
			Help:    "Results returned per recall after threshold filtering",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
	)
	knowledgeRecallTopScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "knowledge_recall_top_score",
			Help:    "Hybrid score of the best result per non-empty recall",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

var stages = []string{"LogAnalyzer", "ErrorLocator", "SolutionArchitect", "CodeGenerator", "GitManager"}

var statuses = []string{"complete", "complete", "complete", "partial_failure", "failed"}

func init() {
	prometheus.MustRegister(
		pipelineRuns,
		pipelineRunDuration,
		pipelineStageDuration,
		pipelineStageFailures,
		knowledgeFixesRecorded,
		knowledgeRecalls,
		knowledgeRecallResults,
		knowledgeRecallTopScore,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	generateSampleData()

	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	http.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":" + port}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'remedyd-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// generateSampleData seeds a plausible history: mostly complete runs,
// the occasional locator or generator failure, recall hit rates around
// what a warm memory produces.
func generateSampleData() {
	for i := 0; i < 120; i++ {
		simulateRun()
	}
	for i := 0; i < 40; i++ {
		simulateRecall()
	}
}

// generateContinuousData keeps the series moving so rate() panels show
// live traffic.
func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rand.Float64() > 0.3 {
				simulateRun()
			}
			if rand.Float64() > 0.5 {
				simulateRecall()
			}
		}
	}
}

// simulateRun records one remediation run: every stage up to a possible
// failure point, then the run totals.
func simulateRun() {
	status := randomChoice(statuses)

	failAt := len(stages)
	if status != "complete" {
		// LogAnalyzer never calls a model, so failures start later.
		failAt = 1 + rand.Intn(len(stages)-1)
	}

	var total float64
	for i, stage := range stages {
		if i > failAt {
			break
		}
		d := stageDuration(stage)
		total += d
		pipelineStageDuration.WithLabelValues(stage).Observe(d)
		if i == failAt && status != "complete" {
			pipelineStageFailures.WithLabelValues(stage).Inc()
		}
	}

	pipelineRuns.WithLabelValues(status).Inc()
	pipelineRunDuration.Observe(total)

	if status == "complete" {
		knowledgeFixesRecorded.Inc()
	}
}

// simulateRecall records one recall query with a realistic hit rate.
func simulateRecall() {
	knowledgeRecalls.Inc()
	results := rand.Intn(4)
	knowledgeRecallResults.Observe(float64(results))
	if results > 0 {
		knowledgeRecallTopScore.Observe(0.6 + rand.Float64()*0.4)
	}
}

// stageDuration returns a plausible duration for a stage. Model-backed
// stages dominate the run; the analyzer and git staging are fast.
func stageDuration(stage string) float64 {
	switch stage {
	case "LogAnalyzer":
		return rand.Float64() * 0.05
	case "GitManager":
		return 0.1 + rand.Float64()*0.4
	case "ErrorLocator":
		return 0.5 + rand.Float64()*3.0
	default:
		return 1.0 + rand.Float64()*8.0
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
