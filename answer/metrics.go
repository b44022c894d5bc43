package answer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CompletionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "completion",
		Name:      "results_total",
		Help:      "Counter for chat completion requests grouped by outcome.",
	}, []string{"model", "status"})
	CompletionDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oracle",
		Subsystem: "completion",
		Name:      "duration_seconds",
		Help:      "Histogram for chat completion request durations.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"model"})
)

func ObserveResult(model, status string) {
	CompletionResults.WithLabelValues(model, status).Inc()
}

func ObserveDuration(model string) func() time.Duration {
	return prometheus.NewTimer(CompletionDurations.WithLabelValues(model)).ObserveDuration
}
