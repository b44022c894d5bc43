package submitter

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SubmissionResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "oracle",
	Subsystem: "submitter",
	Name:      "results_total",
	Help:      "Counter for provideAnswer transactions grouped by outcome.",
}, []string{"chain_id", "status"})

func ObserveSubmission(chainID string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrGasEstimation):
		status = "gas_estimation"
	case errors.Is(err, ErrNonce):
		status = "nonce"
	case errors.Is(err, ErrSigning):
		status = "signing"
	case errors.Is(err, ErrEncoding):
		status = "encoding"
	default:
		status = "error"
	}
	SubmissionResults.WithLabelValues(chainID, status).Inc()
}
