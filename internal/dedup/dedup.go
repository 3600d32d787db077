// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package dedup removes already stored metrics from decomposed queries so
// only missing data is fetched from the provider.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/customreports/internal/decompose"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/metrics"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/store"
)

// DefaultConcurrency bounds concurrent store lookups per report.
const DefaultConcurrency = 16

// Filter narrows query groups against a metrics store.
type Filter struct {
	reader      store.MetricsReader
	concurrency int
}

// NewFilter creates a Filter. A non-positive concurrency uses
// DefaultConcurrency.
func NewFilter(reader store.MetricsReader, concurrency int) *Filter {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Filter{reader: reader, concurrency: concurrency}
}

// Apply returns groups reduced to the metrics missing from the store.
//
//   - a data point whose document is absent is kept unchanged
//   - otherwise only its metrics absent from the stored object are kept
//   - a data point with nothing missing is dropped
//   - each query requests the union of its remaining data points' metrics
//   - a group with no data points left is dropped
//
// The input groups are not modified.
func (f *Filter) Apply(ctx context.Context, groups []decompose.QueryGroup) ([]decompose.QueryGroup, error) {
	missing := make([][][]string, len(groups))
	for i, group := range groups {
		missing[i] = make([][]string, len(group.DataPoints))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, group := range groups {
		for j, dp := range group.DataPoints {
			g.Go(func() error {
				doc, err := f.reader.Get(gctx, dp.Key())
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("dedup lookup %s %s: %w", dp.URL, dp.StartDate, err)
				}
				missing[i][j] = Missing(dp, doc)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	requested, satisfied := 0, 0
	out := make([]decompose.QueryGroup, 0, len(groups))
	for i, group := range groups {
		kept := make([]models.DataPoint, 0, len(group.DataPoints))
		for j, dp := range group.DataPoints {
			requested++
			if len(missing[i][j]) == 0 {
				satisfied++
				continue
			}
			dp.Metrics = missing[i][j]
			kept = append(kept, dp)
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, decompose.QueryGroup{Query: narrowQuery(group.Query, kept), DataPoints: kept})
	}

	metrics.RecordDedup(requested, satisfied)
	logging.Ctx(ctx).Debug().
		Int("groups_in", len(groups)).
		Int("groups_out", len(out)).
		Int("datapoints", requested).
		Int("satisfied", satisfied).
		Msg("Dedup filter applied")

	return out, nil
}

// Missing returns the metrics of dp that doc does not hold. For breakdown
// data points a metric counts as stored when any dimension record has it.
func Missing(dp models.DataPoint, doc *models.MetricsDocument) []string {
	if doc == nil {
		return append([]string(nil), dp.Metrics...)
	}

	if dp.BreakdownDimension != "" {
		records := doc.MetricsBy[dp.BreakdownDimension]
		if len(records) == 0 {
			return append([]string(nil), dp.Metrics...)
		}
		return lo.Filter(dp.Metrics, func(name string, _ int) bool {
			return !lo.SomeBy(records, func(r models.DimensionRecord) bool {
				_, ok := r.Metrics[name]
				return ok
			})
		})
	}

	if doc.Metrics == nil {
		return append([]string(nil), dp.Metrics...)
	}
	return lo.Filter(dp.Metrics, func(name string, _ int) bool {
		_, ok := doc.Metrics[name]
		return !ok
	})
}

// narrowQuery keeps the query metrics at least one kept data point still
// needs, in query order. Per-url queries also drop urls whose data points
// were dropped; grouped queries keep every url because the totals span all
// of them.
func narrowQuery(q models.QueryConfig, kept []models.DataPoint) models.QueryConfig {
	needed := make(map[string]struct{})
	urls := make(map[string]struct{}, len(kept))
	grouped := false
	for _, dp := range kept {
		for _, name := range dp.Metrics {
			needed[name] = struct{}{}
		}
		urls[dp.URL] = struct{}{}
		grouped = grouped || dp.Grouped
	}

	q.MetricNames = lo.Filter(q.MetricNames, func(name string, _ int) bool {
		_, ok := needed[name]
		return ok
	})
	if grouped {
		q.URLs = append([]string(nil), q.URLs...)
	} else {
		q.URLs = lo.Filter(q.URLs, func(url string, _ int) bool {
			_, ok := urls[url]
			return ok
		})
	}
	return q
}
