// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package models

import (
	"time"
)

// APIResponse is the envelope used by the operational endpoints (health,
// readiness) and by every error response.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "VALIDATION_ERROR",
//	    "message": "metrics is a required field",
//	    "details": {"field": "metrics"}
//	  },
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing and cache information.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is the structured error body.
//
// Codes used by the report endpoints:
//   - VALIDATION_ERROR: malformed or contradictory report config
//   - NOT_FOUND: unknown report id
//   - REPORT_ERROR: the report could not be prepared
//   - INTERNAL_ERROR: unexpected server failure
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CreateReportResponse is returned by POST /custom-reports/create.
type CreateReportResponse struct {
	ID string `json:"_id"`
}

// FetchReportResponse is returned by GET /custom-reports/{id}.
// Data is set only when Status is complete.
type FetchReportResponse struct {
	Status  ReportStatus `json:"status"`
	Data    *Report      `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
}
