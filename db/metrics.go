package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oracle",
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Buckets:   []float64{0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
	}, []string{"repo", "method"})
	QueryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "db",
		Name:      "query_results_total",
	}, []string{"repo", "method", "result"})
)

// observeQuery starts the duration timer of a repository query, the returned
// function stops it and counts the query outcome.
func observeQuery(q queryName) func(err error) {
	start := time.Now()
	return func(err error) {
		QueryDurations.WithLabelValues(q.repo, q.method).Observe(time.Since(start).Seconds())
		QueryResults.WithLabelValues(q.repo, q.method, resultLabel(err)).Inc()
	}
}
