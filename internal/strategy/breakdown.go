// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/provider"
	"github.com/tomtom215/customreports/internal/store"
)

// mergeConcurrency bounds concurrent read-merge-write cycles per query.
const mergeConcurrency = 8

// MergeError reports breakdown documents that could not be written. Every
// document is attempted before it is returned.
type MergeError struct {
	Dimension string
	Failed    int
	Total     int
	Err       error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge %s breakdown: %d of %d documents failed: %v", e.Dimension, e.Failed, e.Total, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Breakdown stores per-dimension-value records under metrics_by.<Dimension>.
type Breakdown struct {
	Dimension string
}

func (Breakdown) Kind() Kind { return KindBreakdown }
func (Breakdown) sealed()    {}

func (Breakdown) ParseQueryResults(query models.QueryConfig, resp *provider.Response) (Parsed, error) {
	if resp == nil {
		return Parsed{}, ErrNilResponse
	}
	records := make([]models.DimensionRecord, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		records = append(records, models.DimensionRecord{
			DimensionValue: row.Value,
			Metrics:        columnValues(query.MetricNames, row.Data),
		})
	}
	return Parsed{Records: records}, nil
}

// DataPointToMetrics returns the incoming records for dp, restricted to the
// metrics dp requests. The update replaces metrics_by.<Dimension>; callers
// merge it with the stored records first.
func (s Breakdown) DataPointToMetrics(dp models.DataPoint, parsed Parsed) (models.MetricsUpdate, bool) {
	records := make([]models.DimensionRecord, 0, len(parsed.Records))
	for _, r := range parsed.Records {
		values := pick(r.Metrics, dp.Metrics)
		if len(values) == 0 {
			continue
		}
		records = append(records, models.DimensionRecord{DimensionValue: r.DimensionValue, Metrics: values})
	}
	if len(records) == 0 {
		return models.MetricsUpdate{}, false
	}
	return models.MetricsUpdate{
		Key:          dp.Key(),
		SetBreakdown: map[string][]models.DimensionRecord{s.Dimension: records},
	}, true
}

// ToDBUpdates returns an Apply that reads each data point's stored records,
// unions them with the incoming ones and writes the result back.
//
// The read and the write are separate operations, so two workers merging
// the same document concurrently can lose one side's new dimension values.
// Both writes carry every value they read, so the loss is limited to values
// first seen by the losing worker.
func (s Breakdown) ToDBUpdates(ctx context.Context, dps []models.DataPoint, query models.QueryConfig, resp *provider.Response) (Apply, error) {
	parsed, err := s.ParseQueryResults(query, resp)
	if err != nil {
		return nil, err
	}

	incoming := make([]models.MetricsUpdate, 0, len(dps))
	for _, dp := range dps {
		if update, ok := s.DataPointToMetrics(dp, parsed); ok {
			incoming = append(incoming, update)
		}
	}
	if len(incoming) < len(dps) {
		logging.Ctx(ctx).Debug().Str("dimension", s.Dimension).Int("empty", len(dps)-len(incoming)).Msg("Breakdown rows missing for data points")
	}

	return func(ctx context.Context, ms store.MetricsStore) error {
		return s.mergeAll(ctx, ms, incoming)
	}, nil
}

func (s Breakdown) mergeAll(ctx context.Context, ms store.MetricsStore, updates []models.MetricsUpdate) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(mergeConcurrency)
	for _, update := range updates {
		g.Go(func() error {
			if err := s.mergeOne(ctx, ms, update); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == 0 {
		return nil
	}
	return &MergeError{
		Dimension: s.Dimension,
		Failed:    len(errs),
		Total:     len(updates),
		Err:       errors.Join(errs...),
	}
}

func (s Breakdown) mergeOne(ctx context.Context, ms store.MetricsStore, update models.MetricsUpdate) error {
	doc, err := ms.Get(ctx, update.Key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read %s breakdown for %s %s: %w", s.Dimension, update.Key.URL, update.Key.StartDate, err)
	}

	var existing []models.DimensionRecord
	if doc != nil {
		existing = doc.MetricsBy[s.Dimension]
	}
	merged := MergeDimensionRecords(existing, update.SetBreakdown[s.Dimension])

	write := models.MetricsUpdate{
		Key:          update.Key,
		SetBreakdown: map[string][]models.DimensionRecord{s.Dimension: merged},
	}
	if err := ms.BulkUpsert(ctx, []models.MetricsUpdate{write}); err != nil {
		return fmt.Errorf("write %s breakdown for %s %s: %w", s.Dimension, update.Key.URL, update.Key.StartDate, err)
	}
	return nil
}

// MergeDimensionRecords unions existing and incoming by DimensionValue.
// For a value present in both, incoming metric values win and metrics only
// stored in existing are kept. The result is sorted by DimensionValue and
// shares no maps with its inputs.
func MergeDimensionRecords(existing, incoming []models.DimensionRecord) []models.DimensionRecord {
	byValue := make(map[string]map[string]float64, len(existing)+len(incoming))
	for _, records := range [][]models.DimensionRecord{existing, incoming} {
		for _, r := range records {
			metrics, ok := byValue[r.DimensionValue]
			if !ok {
				metrics = make(map[string]float64, len(r.Metrics))
				byValue[r.DimensionValue] = metrics
			}
			for name, v := range r.Metrics {
				metrics[name] = v
			}
		}
	}

	merged := make([]models.DimensionRecord, 0, len(byValue))
	for value, metrics := range byValue {
		merged = append(merged, models.DimensionRecord{DimensionValue: value, Metrics: metrics})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].DimensionValue < merged[j].DimensionValue })
	return merged
}
