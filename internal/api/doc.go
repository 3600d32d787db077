// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Package api provides the HTTP interface of the report service.

Report endpoints:

	POST /custom-reports/create       register a report config, returns {"_id"}
	GET  /custom-reports/{id}         the report, or a pending marker while it is prepared
	GET  /custom-reports/{id}/status  progress stream (SSE, or WebSocket on upgrade)

Operational endpoints:

	GET /api/v1/health/live         liveness, never touches dependencies
	GET /api/v1/health/ready        readiness across registered components
	GET /api/v1/health/performance  recent latency percentiles per route
	GET /metrics                    Prometheus exposition

Create responses and every error use the models.APIResponse envelope:

	{"status": "success", "data": {"_id": "..."}, "metadata": {...}}
	{"status": "error", "error": {"code": "VALIDATION_ERROR", "message": "...", "details": {...}}}

GET /custom-reports/{id} returns models.FetchReportResponse directly with
200 (complete), 202 (pending), 404 (unknown id) or 500 (error).

The status stream sends one frame per status change and ends after the
first terminal status:

	event: status
	data: {"status":"pending","completedChildJobs":2,"totalChildJobs":5}

A failed fetch job ends the stream with status "error" and names the job
in failedChild.

Request ids are taken from X-Request-ID or generated, echoed in the
response and attached to every log line of the request. Rate limits are
per client IP through httprate, and CORS is handled by go-chi/cors with
origins from configuration.
*/
package api
