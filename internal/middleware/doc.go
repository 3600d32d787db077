// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Package middleware provides HTTP middleware shared by the API routes.

  - PrometheusMetrics: request count, latency and in-flight gauge, labelled
    by chi route pattern
  - PerformanceMonitor: ring buffer of recent requests with per-endpoint
    latency percentiles and slow request warnings
  - Compression: gzip for clients that accept it, skipping status streams

The response wrappers pass Flush and Hijack through, so the SSE and
WebSocket status endpoints work behind every middleware here.

Request ids, CORS and rate limiting come from chi and its companion
packages and are configured in package api.
*/
package middleware
