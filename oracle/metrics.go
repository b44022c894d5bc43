package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LatestHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "oracle",
		Subsystem: "loop",
		Name:      "latest_head_block",
		Help:      "Shows the latest confirmed head block seen by the oracle loop.",
	}, []string{"chain_id", "address"})
	LatestProcessedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "oracle",
		Subsystem: "loop",
		Name:      "latest_processed_block",
		Help:      "Shows the persisted checkpoint. All questions up to this block are answered.",
	}, []string{"chain_id", "address"})
	ProcessedQuestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "loop",
		Name:      "processed_questions_total",
		Help:      "Counter for processed questions grouped by outcome.",
	}, []string{"chain_id", "address", "status"})
	CycleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "loop",
		Name:      "cycles_total",
		Help:      "Counter for oracle cycles grouped by outcome.",
	}, []string{"chain_id", "address", "status"})
	CycleDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oracle",
		Subsystem: "loop",
		Name:      "cycle_duration_seconds",
		Help:      "Histogram for oracle cycle durations.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"chain_id", "address"})
)
