// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package metrics defines the Prometheus collectors of the service.
//
// Collectors are registered on the default registry with promauto and
// exposed by the API at /metrics. Groups:
//
//   - api_*: request counts, latency and in-flight requests
//   - custom_report_*: registrations, fetch outcomes, dedup efficiency
//   - analytics_provider_*: provider latency, errors, limiter wait
//   - queue_*: job transitions and processing time
//   - cache_*: report cache hit ratio
//   - circuit_breaker_*: provider breaker state
//
// Example PromQL for the share of data points served from storage:
//
//	rate(custom_report_datapoints_deduplicated_total[5m])
//	  / rate(custom_report_datapoints_requested_total[5m])
package metrics
