// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package strategy

import (
	"context"

	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/provider"
	"github.com/tomtom215/customreports/internal/store"
)

// Kind names a strategy variant.
type Kind int

const (
	KindUngrouped Kind = iota
	KindGrouped
	KindBreakdown
)

func (k Kind) String() string {
	switch k {
	case KindUngrouped:
		return "ungrouped"
	case KindGrouped:
		return "grouped"
	case KindBreakdown:
		return "breakdown"
	default:
		return "unknown"
	}
}

// Parsed is a provider response keyed for lookup. Which fields are set
// depends on the strategy that produced it.
type Parsed struct {
	// ByURL maps a url row to its metric values (ungrouped).
	ByURL map[string]map[string]float64
	// Totals holds summary values by metric (grouped).
	Totals map[string]float64
	// Records holds one record per dimension value (breakdown).
	Records []models.DimensionRecord
}

// Apply performs the writes computed by ToDBUpdates.
type Apply func(ctx context.Context, s store.MetricsStore) error

// Strategy maps provider results onto stored documents.
type Strategy interface {
	Kind() Kind

	// ParseQueryResults indexes resp by the columns of query.
	ParseQueryResults(query models.QueryConfig, resp *provider.Response) (Parsed, error)

	// DataPointToMetrics builds the update for one data point. ok is false
	// when the response holds nothing for it.
	DataPointToMetrics(dp models.DataPoint, parsed Parsed) (update models.MetricsUpdate, ok bool)

	// ToDBUpdates parses resp and returns the writes for dps.
	ToDBUpdates(ctx context.Context, dps []models.DataPoint, query models.QueryConfig, resp *provider.Response) (Apply, error)

	sealed()
}

// Select returns the strategy for a report shape.
func Select(grouped bool, breakdownDimension string) Strategy {
	switch {
	case breakdownDimension != "":
		return Breakdown{Dimension: breakdownDimension}
	case grouped:
		return Grouped{}
	default:
		return Ungrouped{}
	}
}

// ForConfig is Select applied to cfg.
func ForConfig(cfg models.ReportConfig) Strategy {
	return Select(cfg.Grouped, cfg.BreakdownDimension)
}

// columnValues maps query.MetricNames onto data. Columns missing from data
// are left out.
func columnValues(metricNames []string, data []float64) map[string]float64 {
	values := make(map[string]float64, len(metricNames))
	for i, name := range metricNames {
		if i >= len(data) {
			break
		}
		values[name] = data[i]
	}
	return values
}

// pick returns the entries of values named in metrics.
func pick(values map[string]float64, metrics []string) map[string]float64 {
	out := make(map[string]float64, len(metrics))
	for _, name := range metrics {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}

func bulkApply(updates []models.MetricsUpdate) Apply {
	return func(ctx context.Context, s store.MetricsStore) error {
		if len(updates) == 0 {
			return nil
		}
		return s.BulkUpsert(ctx, updates)
	}
}
