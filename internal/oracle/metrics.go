// internal/oracle/metrics.go
//
// Prometheus metrics on oracle traffic. Exposed by the HTTP server on
// /metrics via promhttp.

package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guesswho_oracle_requests_total",
			Help: "Oracle backend requests by operation and outcome.",
		},
		[]string{"op", "status"}, // status: ok | malformed | error
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guesswho_oracle_request_duration_seconds",
			Help:    "Oracle backend request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)
