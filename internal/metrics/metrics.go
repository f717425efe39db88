// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zeroshot_api_request_duration_seconds",
			Help:    "Total time taken for requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zeroshot_api_inference_duration_seconds",
			Help:    "Time spent inside the model backend in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend", "op"},
	)

	CandidateLabels = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zeroshot_api_candidate_labels",
			Help:    "Number of candidate labels per classification request",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
		},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeroshot_api_request_count_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "status"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeroshot_api_error_count",
			Help: "Error count",
		},
		[]string{"backend", "code"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeroshot_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)

	ModelReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zeroshot_api_model_ready",
			Help: "1 once the model is loaded and warmed up",
		},
		[]string{"backend"},
	)
)
