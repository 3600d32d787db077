// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package validation provides struct validation using go-playground/validator v10.
//
// The package wraps a thread-safe singleton validator with the report
// validators registered:
//
//   - reportdate: YYYY-MM-DD calendar date
//   - fieldname: metric or dimension name usable as a document field path
//     segment (letters, digits, underscore)
//   - a struct-level rule for models.ReportConfig: start <= end, grouped
//     reports need urls, grouped reports cannot carry a breakdown dimension
//
// Field names in error messages use the JSON tag so they match the request
// body the client sent.
//
// # Usage
//
//	if err := validation.ValidateReportConfig(&cfg); err != nil {
//	    var verr *validation.RequestValidationError
//	    if errors.As(err, &verr) {
//	        apiErr := verr.ToAPIError()
//	        // respond 400 with apiErr
//	    }
//	}
package validation
