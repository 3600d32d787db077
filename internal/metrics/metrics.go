// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	StatusStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custom_report_status_streams",
			Help: "Current number of open report status streams",
		},
		[]string{"transport"}, // "sse", "websocket"
	)

	// Report Metrics
	ReportsRegistered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom_reports_registered_total",
			Help: "Total number of create requests by outcome",
		},
		[]string{"outcome"}, // "created", "existing"
	)

	ReportRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom_report_requests_total",
			Help: "Total number of fetch-or-prepare calls by resulting status",
		},
		[]string{"status"},
	)

	ReportAssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "custom_report_assembly_duration_seconds",
			Help:    "Time to assemble a report from the metrics store",
			Buckets: prometheus.DefBuckets,
		},
	)

	DataPointsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custom_report_datapoints_requested_total",
			Help: "Data points produced by decomposition",
		},
	)

	DataPointsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custom_report_datapoints_deduplicated_total",
			Help: "Data points fully satisfied by the metrics store",
		},
	)

	// Provider Metrics
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_provider_request_duration_seconds",
			Help:    "Analytics provider call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"dimension"},
	)

	ProviderRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_provider_errors_total",
			Help: "Total number of failed analytics provider calls",
		},
		[]string{"reason"}, // "status", "transport", "decode", "rate_limited"
	)

	ProviderRateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_provider_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the shared provider rate limiter",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// Queue Metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Total number of job transitions",
		},
		[]string{"queue", "state"}, // state: "added", "coalesced", "completed", "failed", "retried"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Processing time of a job attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_events_dropped_total",
			Help: "Job events not delivered to a slow in-process subscriber",
		},
	)

	JobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_jobs_active",
			Help: "Jobs currently being processed by this instance",
		},
		[]string{"queue"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "report", "datapoint"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions (expiry or capacity)",
		},
		[]string{"cache_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// NATS Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of messages published to NATS",
		},
	)

	NATSMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_consumed_total",
			Help: "Total number of messages consumed from NATS",
		},
	)

	// NATSConnectionEvents counts disconnects and reconnects per
	// connection role (publisher, jobs, events).
	NATSConnectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_connection_events_total",
			Help: "NATS connection state changes by connection role",
		},
		[]string{"role", "event"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordProviderCall records one analytics provider call.
func RecordProviderCall(dimension string, duration time.Duration, reason string) {
	ProviderRequestDuration.WithLabelValues(dimension).Observe(duration.Seconds())
	if reason != "" {
		ProviderRequestErrors.WithLabelValues(reason).Inc()
	}
}

// RecordJob records a job state transition.
func RecordJob(queue, state string) {
	JobsTotal.WithLabelValues(queue, state).Inc()
}

// RecordDedup records decomposition and dedup totals of one report.
func RecordDedup(requested, satisfied int) {
	DataPointsRequested.Add(float64(requested))
	DataPointsDeduplicated.Add(float64(satisfied))
}
