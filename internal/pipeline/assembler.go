// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/customreports/internal/cache"
	"github.com/tomtom215/customreports/internal/confighash"
	"github.com/tomtom215/customreports/internal/dedup"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/metrics"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/store"
)

// DefaultAssembleConcurrency bounds concurrent store reads of one report.
const DefaultAssembleConcurrency = 16

// Assembler builds reports from stored documents.
type Assembler struct {
	reader      store.MetricsReader
	cache       *cache.ReportCache
	concurrency int
	now         func() time.Time
}

// NewAssembler creates an Assembler reading from reader. When rc is not
// nil, complete data point documents are cached and served from it. A
// cached document is used only while it holds every metric the data point
// asks for; fetch jobs drop the entries of the documents they write.
func NewAssembler(reader store.MetricsReader, rc *cache.ReportCache, concurrency int) *Assembler {
	if concurrency <= 0 {
		concurrency = DefaultAssembleConcurrency
	}
	return &Assembler{reader: reader, cache: rc, concurrency: concurrency, now: time.Now}
}

// Assemble returns the report of cfg with one row per data point, in
// data point order. A data point without a document yields a row with no
// metrics.
func (a *Assembler) Assemble(ctx context.Context, id string, cfg models.ReportConfig, dps []models.DataPoint) (*models.Report, error) {
	start := time.Now()
	rows := make([]models.ReportRow, len(dps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, dp := range dps {
		g.Go(func() error {
			doc, err := a.document(gctx, dp)
			if err != nil {
				return err
			}
			rows[i] = buildRow(dp, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assemble report %s: %w", id, err)
	}

	metrics.ReportAssemblyDuration.Observe(time.Since(start).Seconds())
	return &models.Report{
		ID:          id,
		Config:      cfg,
		Rows:        rows,
		GeneratedAt: a.now().UTC(),
	}, nil
}

func (a *Assembler) document(ctx context.Context, dp models.DataPoint) (*models.MetricsDocument, error) {
	hash := confighash.DataPointHash(dp)
	if a.cache != nil {
		doc, ok, err := a.cache.GetDataPoint(ctx, hash)
		switch {
		case err != nil:
			logging.Ctx(ctx).Warn().Err(err).Str("hash", hash).Msg("Data point cache read failed")
		case ok && len(dedup.Missing(dp, doc)) == 0:
			return doc, nil
		}
	}

	doc, err := a.reader.Get(ctx, dp.Key())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data point %s: %w", hash, err)
	}

	// Only documents holding every requested metric are cached.
	if a.cache != nil && len(dedup.Missing(dp, doc)) == 0 {
		if err := a.cache.SetDataPoint(ctx, hash, doc); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("hash", hash).Msg("Data point cache write failed")
		}
	}
	return doc, nil
}

// Invalidate drops the cached documents of dps. It is a no-op without a
// cache.
func (a *Assembler) Invalidate(ctx context.Context, dps []models.DataPoint) {
	if a == nil || a.cache == nil {
		return
	}
	for _, hash := range lo.Uniq(lo.Map(dps, func(dp models.DataPoint, _ int) string {
		return confighash.DataPointHash(dp)
	})) {
		if err := a.cache.DeleteDataPoint(ctx, hash); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("hash", hash).Msg("Data point cache invalidation failed")
		}
	}
}

func buildRow(dp models.DataPoint, doc *models.MetricsDocument) models.ReportRow {
	row := models.ReportRow{
		StartDate: dp.StartDate,
		EndDate:   dp.EndDate,
		URL:       dp.URL,
		URLs:      dp.URLs,
	}
	if doc == nil {
		return row
	}

	if dp.BreakdownDimension != "" {
		for _, rec := range doc.MetricsBy[dp.BreakdownDimension] {
			row.Breakdown = append(row.Breakdown, models.DimensionRecord{
				DimensionValue: rec.DimensionValue,
				Metrics:        lo.PickByKeys(rec.Metrics, dp.Metrics),
			})
		}
		return row
	}
	if len(doc.Metrics) > 0 {
		row.Metrics = lo.PickByKeys(doc.Metrics, dp.Metrics)
	}
	return row
}
