// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Package provider is the client for the external web analytics reporting
API.

One QueryConfig becomes one POST to {base_url}/reports. Column i of every
row's Data (and of the summary totals) holds the value of
query.MetricNames[i].

HTTPClient guards the provider in three layers, outermost first:

  - a token bucket limiter shared by every worker in the process, which is
    the pipeline's backpressure mechanism
  - a circuit breaker that opens after sustained server-side failures
  - retries of HTTP 429 responses honouring Retry-After

Any other non-2xx response becomes an *Error carrying the status code.
*/
package provider
