// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/customreports/internal/confighash"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/store"
)

func TestAssembler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := store.NewBadgerMetricsStore(openBadger(t))

	full := models.DataPoint{StartDate: "2022-10-01", EndDate: "2022-10-31", Granularity: models.GranularityNone, URL: "a", Metrics: []string{"visits"}}
	partial := models.DataPoint{StartDate: "2022-10-01", EndDate: "2022-10-31", Granularity: models.GranularityNone, URL: "b", Metrics: []string{"visits", "views"}}
	absent := models.DataPoint{StartDate: "2022-10-01", EndDate: "2022-10-31", Granularity: models.GranularityNone, URL: "c", Metrics: []string{"visits"}}
	breakdown := models.DataPoint{StartDate: "2022-10-01", EndDate: "2022-10-31", Granularity: models.GranularityNone, URL: "d", BreakdownDimension: "device", Metrics: []string{"visits"}}

	if err := ms.BulkUpsert(ctx, []models.MetricsUpdate{
		{Key: full.Key(), SetMetrics: map[string]float64{"visits": 5, "bounces": 1}},
		{Key: partial.Key(), SetMetrics: map[string]float64{"visits": 6}},
		{Key: breakdown.Key(), SetBreakdown: map[string][]models.DimensionRecord{
			"device": {{DimensionValue: "mobile", Metrics: map[string]float64{"visits": 2, "views": 9}}},
		}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rc := newReportCache()
	a := NewAssembler(ms, rc, 2)
	report, err := a.Assemble(ctx, "r1", models.ReportConfig{}, []models.DataPoint{full, partial, absent, breakdown})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if report.ID != "r1" || len(report.Rows) != 4 {
		t.Fatalf("report = %+v", report)
	}
	if got := report.Rows[0]; got.URL != "a" || len(got.Metrics) != 1 || got.Metrics["visits"] != 5 {
		t.Errorf("row a = %+v, want only the requested visits", got)
	}
	if got := report.Rows[1]; got.Metrics["visits"] != 6 {
		t.Errorf("row b = %+v", got)
	}
	if got := report.Rows[2]; got.URL != "c" || got.Metrics != nil {
		t.Errorf("row c = %+v, want no metrics", got)
	}
	rec := report.Rows[3].Breakdown
	if len(rec) != 1 || rec[0].DimensionValue != "mobile" || len(rec[0].Metrics) != 1 {
		t.Errorf("row d breakdown = %+v", rec)
	}

	if _, ok, _ := rc.GetDataPoint(ctx, confighash.DataPointHash(full)); !ok {
		t.Error("complete data point was not cached")
	}
	if _, ok, _ := rc.GetDataPoint(ctx, confighash.DataPointHash(partial)); ok {
		t.Error("partial data point was cached")
	}
}

type failingReader struct{ err error }

func (r failingReader) Get(context.Context, models.DocumentKey) (*models.MetricsDocument, error) {
	return nil, r.err
}

func TestAssembler_ReadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	a := NewAssembler(failingReader{err: boom}, nil, 0)
	_, err := a.Assemble(context.Background(), "r1", models.ReportConfig{}, []models.DataPoint{{URL: "a", Metrics: []string{"visits"}}})
	if !errors.Is(err, boom) {
		t.Errorf("Assemble err = %v, want boom", err)
	}
}

func TestAssembler_CachedDocumentMissingMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := store.NewBadgerMetricsStore(openBadger(t))
	rc := newReportCache()
	a := NewAssembler(ms, rc, 1)

	narrow := models.DataPoint{StartDate: "2022-10-01", EndDate: "2022-10-31", Granularity: models.GranularityNone, URL: "a", Metrics: []string{"visits"}}
	wide := narrow
	wide.Metrics = []string{"visits", "views"}

	if err := ms.BulkUpsert(ctx, []models.MetricsUpdate{{Key: narrow.Key(), SetMetrics: map[string]float64{"visits": 1}}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := a.Assemble(ctx, "r1", models.ReportConfig{}, []models.DataPoint{narrow}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if _, ok, _ := rc.GetDataPoint(ctx, confighash.DataPointHash(narrow)); !ok {
		t.Fatal("complete data point was not cached")
	}

	if err := ms.BulkUpsert(ctx, []models.MetricsUpdate{{Key: narrow.Key(), SetMetrics: map[string]float64{"views": 2}}}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	report, err := a.Assemble(ctx, "r2", models.ReportConfig{}, []models.DataPoint{wide})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := report.Rows[0].Metrics; got["visits"] != 1 || got["views"] != 2 {
		t.Errorf("row = %v, want the stored visits and views", got)
	}
}

func TestAssembler_Invalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rc := newReportCache()
	a := NewAssembler(failingReader{err: errors.New("unused")}, rc, 1)

	dp := models.DataPoint{StartDate: "2022-10-01", EndDate: "2022-10-31", Granularity: models.GranularityNone, URL: "a", Metrics: []string{"visits"}}
	hash := confighash.DataPointHash(dp)
	if err := rc.SetDataPoint(ctx, hash, &models.MetricsDocument{Metrics: map[string]float64{"visits": 1}}); err != nil {
		t.Fatalf("SetDataPoint: %v", err)
	}

	a.Invalidate(ctx, []models.DataPoint{dp, dp})
	if _, ok, _ := rc.GetDataPoint(ctx, hash); ok {
		t.Error("data point still cached after Invalidate")
	}

	var none *Assembler
	none.Invalidate(ctx, []models.DataPoint{dp})
	NewAssembler(failingReader{}, nil, 1).Invalidate(ctx, []models.DataPoint{dp})
}
