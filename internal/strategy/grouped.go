// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package strategy

import (
	"context"
	"errors"

	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/provider"
)

// ErrMissingSummary is returned when a grouped query response has no
// summary totals.
var ErrMissingSummary = errors.New("grouped query response has no summary data")

// Grouped stores the summary totals of all urls in one document per date
// range.
type Grouped struct{}

func (Grouped) Kind() Kind { return KindGrouped }
func (Grouped) sealed()    {}

func (Grouped) ParseQueryResults(query models.QueryConfig, resp *provider.Response) (Parsed, error) {
	if resp == nil {
		return Parsed{}, ErrNilResponse
	}
	if resp.Summary == nil || len(resp.Summary.Totals) == 0 {
		return Parsed{}, ErrMissingSummary
	}
	return Parsed{Totals: columnValues(query.MetricNames, resp.Summary.Totals)}, nil
}

func (Grouped) DataPointToMetrics(dp models.DataPoint, parsed Parsed) (models.MetricsUpdate, bool) {
	update := models.MetricsUpdate{Key: dp.Key(), SetMetrics: pick(parsed.Totals, dp.Metrics)}
	return update, !update.Empty()
}

func (s Grouped) ToDBUpdates(_ context.Context, dps []models.DataPoint, query models.QueryConfig, resp *provider.Response) (Apply, error) {
	parsed, err := s.ParseQueryResults(query, resp)
	if err != nil {
		return nil, err
	}

	updates := make([]models.MetricsUpdate, 0, len(dps))
	for _, dp := range dps {
		if update, ok := s.DataPointToMetrics(dp, parsed); ok {
			updates = append(updates, update)
		}
	}
	return bulkApply(updates), nil
}
