package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for SonarQube API traffic.
var (
	sonarRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonarqube_requests_total",
		Help: "Total SonarQube API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	sonarRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sonarqube_request_duration_seconds",
		Help:    "SonarQube API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	sonarRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonarqube_retries_total",
		Help: "Transport retries after network errors by endpoint",
	}, []string{"endpoint"})

	measureBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonarqube_measure_batches_total",
		Help: "Measure batches fetched by outcome",
	}, []string{"outcome"})

	measureProjectsMissing = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonarqube_measure_projects_missing_total",
		Help: "Requested projects that returned no measures",
	})
)
