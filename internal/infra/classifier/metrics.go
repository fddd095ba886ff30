package classifier

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_request_duration_seconds",
			Help:    "Duration of classifier provider requests",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider", "outcome"},
	)

	inputTruncatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_input_truncated_total",
			Help: "Classifier inputs cut to the configured maximum length",
		},
		[]string{"provider"},
	)
)

func recordRequest(provider string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome, _ = classifyError(err)
	}
	requestDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}
