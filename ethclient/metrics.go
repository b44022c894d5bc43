package ethclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "rpc",
		Name:      "request_results_total",
	}, []string{"chain_id", "url", "query", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oracle",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"chain_id", "url", "query"})
)

func ObserveError(chainID, url, query string, err error) {
	if err != nil {
		var rpcErr rpc.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			RequestResults.WithLabelValues(chainID, url, query, "timeout").Inc()
		case errors.As(err, &rpcErr):
			RequestResults.WithLabelValues(chainID, url, query, fmt.Sprintf("error-%d", rpcErr.ErrorCode())).Inc()
		default:
			RequestResults.WithLabelValues(chainID, url, query, "error").Inc()
		}
	} else {
		RequestResults.WithLabelValues(chainID, url, query, "ok").Inc()
	}
}

func ObserveDuration(chainID, url, query string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(chainID, url, query)).ObserveDuration
}
