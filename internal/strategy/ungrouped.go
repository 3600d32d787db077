// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package strategy

import (
	"context"
	"errors"

	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/provider"
)

// ErrNilResponse is returned when a strategy is given no response.
var ErrNilResponse = errors.New("provider response is nil")

// Ungrouped stores one document per url and date range.
type Ungrouped struct{}

func (Ungrouped) Kind() Kind { return KindUngrouped }
func (Ungrouped) sealed()    {}

func (Ungrouped) ParseQueryResults(query models.QueryConfig, resp *provider.Response) (Parsed, error) {
	if resp == nil {
		return Parsed{}, ErrNilResponse
	}
	byURL := make(map[string]map[string]float64, len(resp.Rows))
	for _, row := range resp.Rows {
		byURL[row.Value] = columnValues(query.MetricNames, row.Data)
	}
	return Parsed{ByURL: byURL}, nil
}

func (Ungrouped) DataPointToMetrics(dp models.DataPoint, parsed Parsed) (models.MetricsUpdate, bool) {
	values, ok := parsed.ByURL[dp.URL]
	if !ok {
		return models.MetricsUpdate{}, false
	}
	update := models.MetricsUpdate{Key: dp.Key(), SetMetrics: pick(values, dp.Metrics)}
	return update, !update.Empty()
}

// ToDBUpdates writes every data point whose url has a response row. Urls
// the provider omitted are logged and skipped; they stay missing and are
// requested again by the next fetch of any report that needs them.
func (s Ungrouped) ToDBUpdates(ctx context.Context, dps []models.DataPoint, query models.QueryConfig, resp *provider.Response) (Apply, error) {
	parsed, err := s.ParseQueryResults(query, resp)
	if err != nil {
		return nil, err
	}

	updates := make([]models.MetricsUpdate, 0, len(dps))
	missing := 0
	for _, dp := range dps {
		update, ok := s.DataPointToMetrics(dp, parsed)
		if !ok {
			missing++
			logging.Ctx(ctx).Debug().Str("url", dp.URL).Str("start", dp.StartDate).Msg("No provider row for url")
			continue
		}
		updates = append(updates, update)
	}
	if missing > 0 {
		logging.Ctx(ctx).Warn().
			Int("missing", missing).
			Int("requested", len(dps)).
			Str("start", query.DateRange.Start).
			Str("end", query.DateRange.End).
			Msg("Provider response is missing urls")
	}

	return bulkApply(updates), nil
}
