// Package metrics holds the Prometheus collectors for the analysis pipeline.
// They register on the default registry, which is also what /metrics serves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plainnow"

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analyses_total",
		Help:      "Completed analyses by normalization outcome (parsed, recovered).",
	}, []string{"outcome"})

	RefillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_refills_total",
		Help:      "Daily credit refills by result (written, fallback).",
	}, []string{"result"})

	QuotaRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_rejections_total",
		Help:      "Analysis requests rejected because the daily allowance was used up.",
	})

	DeductionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_deduction_failures_total",
		Help:      "Analyses recorded without a credit deduction.",
	})

	AIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_requests_total",
		Help:      "AI provider calls by status (ok, http_error, transport_error, bad_response, empty).",
	}, []string{"status"})

	AIRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ai_request_duration_seconds",
		Help:      "Latency of AI provider calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	})
)
