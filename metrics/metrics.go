package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appserver_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appserver_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appserver_http_errors_total",
			Help: "Total number of errors that reached the terminal error handler",
		},
		[]string{"status"},
	)

	// DatabaseUp is 1 while the MongoDB connection is established
	DatabaseUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appserver_database_up",
			Help: "Whether the database connection is established",
		},
	)

	DatabaseConnectFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appserver_database_connect_failures_total",
			Help: "Total number of failed database connection attempts",
		},
	)
)
