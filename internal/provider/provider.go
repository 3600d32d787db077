// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/customreports/internal/models"
)

// Provider executes one analytics query.
type Provider interface {
	Execute(ctx context.Context, query models.QueryConfig) (*Response, error)
}

// Response is a provider report. Row values are in query metric order.
type Response struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	Summary *Summary `json:"summaryData,omitempty"`
}

// Row is one dimension value of a report, such as a URL or a day.
type Row struct {
	ItemID string    `json:"itemId"`
	Value  string    `json:"value"`
	Data   []float64 `json:"data"`
}

// Summary holds the totals of every column across all rows.
type Summary struct {
	Totals         []float64 `json:"totals"`
	FilteredTotals []float64 `json:"filteredTotals"`
}

// Error is a non-2xx provider response.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same call may succeed.
func (e *Error) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// ErrRateLimited is returned when 429 responses outlast every retry.
var ErrRateLimited = errors.New("provider rate limit exceeded")

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.StatusCode
	}
	return 0
}
