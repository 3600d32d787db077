// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package strategy

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/provider"
	"github.com/tomtom215/customreports/internal/store"
)

func newTestStore(t *testing.T) *store.BadgerMetricsStore {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewBadgerMetricsStore(db)
}

func day(url, date string, metrics ...string) models.DataPoint {
	return models.DataPoint{
		StartDate:   date,
		EndDate:     date,
		Granularity: models.GranularityDay,
		URL:         url,
		Metrics:     metrics,
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		grouped bool
		dim     string
		want    Kind
	}{
		{"ungrouped", false, "", KindUngrouped},
		{"grouped", true, "", KindGrouped},
		{"breakdown", false, "country", KindBreakdown},
		{"breakdown wins over grouped", true, "country", KindBreakdown},
	}
	for _, tt := range tests {
		if got := Select(tt.grouped, tt.dim).Kind(); got != tt.want {
			t.Errorf("%s: Select().Kind() = %v, want %v", tt.name, got, tt.want)
		}
	}

	if b, ok := Select(false, "country").(Breakdown); !ok || b.Dimension != "country" {
		t.Errorf("Select breakdown = %#v", Select(false, "country"))
	}
}

func TestUngrouped_ToDBUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newTestStore(t)

	query := models.QueryConfig{
		DateRange:     models.DateRange{Start: "2023-01-01", End: "2023-01-01"},
		MetricNames:   []string{"pageviews", "visits"},
		DimensionName: "url",
		URLs:          []string{"a", "b", "c"},
	}
	resp := &provider.Response{Rows: []provider.Row{
		{Value: "a", Data: []float64{10, 2}},
		{Value: "b", Data: []float64{5}},
	}}
	dps := []models.DataPoint{
		day("a", "2023-01-01", "pageviews", "visits"),
		day("b", "2023-01-01", "pageviews", "visits"),
		day("c", "2023-01-01", "pageviews", "visits"),
	}

	apply, err := Ungrouped{}.ToDBUpdates(ctx, dps, query, resp)
	if err != nil {
		t.Fatalf("ToDBUpdates: %v", err)
	}
	if err := apply(ctx, ms); err != nil {
		t.Fatalf("apply: %v", err)
	}

	docA, err := ms.Get(ctx, dps[0].Key())
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	if !reflect.DeepEqual(docA.Metrics, map[string]float64{"pageviews": 10, "visits": 2}) {
		t.Errorf("a metrics = %v", docA.Metrics)
	}

	docB, err := ms.Get(ctx, dps[1].Key())
	if err != nil {
		t.Fatalf("Get b: %v", err)
	}
	if _, ok := docB.Metrics["visits"]; ok {
		t.Error("short row should not invent a visits value")
	}

	if _, err := ms.Get(ctx, dps[2].Key()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("url missing from response should not be written, err = %v", err)
	}
}

func TestUngrouped_OnlyRequestedMetrics(t *testing.T) {
	t.Parallel()

	parsed, err := Ungrouped{}.ParseQueryResults(
		models.QueryConfig{MetricNames: []string{"pageviews", "visits"}},
		&provider.Response{Rows: []provider.Row{{Value: "a", Data: []float64{1, 2}}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	update, ok := Ungrouped{}.DataPointToMetrics(day("a", "2023-01-01", "visits"), parsed)
	if !ok {
		t.Fatal("expected an update")
	}
	if !reflect.DeepEqual(update.SetMetrics, map[string]float64{"visits": 2}) {
		t.Errorf("SetMetrics = %v", update.SetMetrics)
	}
	if update.Key.EndDate != "" {
		t.Error("daily key should drop the end date")
	}
}

func TestGrouped_ToDBUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newTestStore(t)

	dp := models.DataPoint{
		StartDate:   "2022-10-02",
		EndDate:     "2022-10-08",
		Granularity: models.GranularityWeek,
		Grouped:     true,
		URLs:        []string{"b", "a"},
		Metrics:     []string{"pageviews", "visits"},
	}
	query := models.QueryConfig{
		DateRange:     models.DateRange{Start: "2022-10-02", End: "2022-10-08"},
		MetricNames:   []string{"pageviews", "visits"},
		DimensionName: "daterangeday",
		URLs:          []string{"a", "b"},
	}
	resp := &provider.Response{Summary: &provider.Summary{Totals: []float64{100, 40}}}

	apply, err := Grouped{}.ToDBUpdates(ctx, []models.DataPoint{dp}, query, resp)
	if err != nil {
		t.Fatalf("ToDBUpdates: %v", err)
	}
	if err := apply(ctx, ms); err != nil {
		t.Fatalf("apply: %v", err)
	}

	key := dp.Key()
	key.URLs = []string{"a", "b"}
	doc, err := ms.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Metrics["pageviews"] != 100 || doc.Metrics["visits"] != 40 {
		t.Errorf("metrics = %v", doc.Metrics)
	}
}

func TestGrouped_MissingSummary(t *testing.T) {
	t.Parallel()

	for _, resp := range []*provider.Response{
		{},
		{Summary: &provider.Summary{}},
	} {
		_, err := Grouped{}.ToDBUpdates(context.Background(), nil, models.QueryConfig{MetricNames: []string{"x"}}, resp)
		if !errors.Is(err, ErrMissingSummary) {
			t.Errorf("err = %v, want ErrMissingSummary", err)
		}
	}
}

func TestNilResponse(t *testing.T) {
	t.Parallel()

	for _, s := range []Strategy{Ungrouped{}, Grouped{}, Breakdown{Dimension: "country"}} {
		if _, err := s.ToDBUpdates(context.Background(), nil, models.QueryConfig{}, nil); !errors.Is(err, ErrNilResponse) {
			t.Errorf("%v: err = %v, want ErrNilResponse", s.Kind(), err)
		}
	}
}

func TestMergeDimensionRecords(t *testing.T) {
	t.Parallel()

	existing := []models.DimensionRecord{
		{DimensionValue: "us", Metrics: map[string]float64{"visits": 1, "pageviews": 9}},
		{DimensionValue: "de", Metrics: map[string]float64{"visits": 4}},
	}
	incoming := []models.DimensionRecord{
		{DimensionValue: "us", Metrics: map[string]float64{"visits": 2}},
		{DimensionValue: "fr", Metrics: map[string]float64{"visits": 7}},
	}

	got := MergeDimensionRecords(existing, incoming)
	want := []models.DimensionRecord{
		{DimensionValue: "de", Metrics: map[string]float64{"visits": 4}},
		{DimensionValue: "fr", Metrics: map[string]float64{"visits": 7}},
		{DimensionValue: "us", Metrics: map[string]float64{"visits": 2, "pageviews": 9}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merge = %+v, want %+v", got, want)
	}

	if again := MergeDimensionRecords(got, incoming); !reflect.DeepEqual(again, got) {
		t.Errorf("merging the same records twice changed the result: %+v", again)
	}

	got[0].Metrics["visits"] = 99
	if existing[1].Metrics["visits"] != 4 {
		t.Error("merge result must not share maps with its inputs")
	}

	if empty := MergeDimensionRecords(nil, nil); len(empty) != 0 {
		t.Errorf("merge of nothing = %v", empty)
	}
}

func TestBreakdown_ToDBUpdatesUnions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newTestStore(t)
	s := Breakdown{Dimension: "country"}

	dp := day("a", "2023-01-01", "visits")
	query := models.QueryConfig{
		DateRange:     models.DateRange{Start: "2023-01-01", End: "2023-01-01"},
		MetricNames:   []string{"visits"},
		DimensionName: "country",
		URLs:          []string{"a"},
	}

	run := func(rows ...provider.Row) {
		t.Helper()
		apply, err := s.ToDBUpdates(ctx, []models.DataPoint{dp}, query, &provider.Response{Rows: rows})
		if err != nil {
			t.Fatalf("ToDBUpdates: %v", err)
		}
		if err := apply(ctx, ms); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	run(provider.Row{Value: "us", Data: []float64{3}}, provider.Row{Value: "de", Data: []float64{1}})
	run(provider.Row{Value: "us", Data: []float64{5}}, provider.Row{Value: "fr", Data: []float64{2}})

	doc, err := ms.Get(ctx, dp.Key())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	records := doc.MetricsBy["country"]
	want := []models.DimensionRecord{
		{DimensionValue: "de", Metrics: map[string]float64{"visits": 1}},
		{DimensionValue: "fr", Metrics: map[string]float64{"visits": 2}},
		{DimensionValue: "us", Metrics: map[string]float64{"visits": 5}},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("metrics_by.country = %+v, want %+v", records, want)
	}
}

// failingStore fails every write for one url.
type failingStore struct {
	store.MetricsStore
	failURL string
	writes  atomic.Int32
}

func (f *failingStore) BulkUpsert(ctx context.Context, updates []models.MetricsUpdate) error {
	f.writes.Add(1)
	for _, u := range updates {
		if u.Key.URL == f.failURL {
			return errors.New("write refused")
		}
	}
	return f.MetricsStore.BulkUpsert(ctx, updates)
}

func TestBreakdown_MergeErrorAttemptsAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := &failingStore{MetricsStore: newTestStore(t), failURL: "b"}
	s := Breakdown{Dimension: "device"}

	query := models.QueryConfig{MetricNames: []string{"visits"}, DimensionName: "device"}
	resp := &provider.Response{Rows: []provider.Row{{Value: "mobile", Data: []float64{1}}}}
	dps := []models.DataPoint{
		day("a", "2023-01-01", "visits"),
		day("b", "2023-01-01", "visits"),
		day("c", "2023-01-01", "visits"),
	}

	apply, err := s.ToDBUpdates(ctx, dps, query, resp)
	if err != nil {
		t.Fatalf("ToDBUpdates: %v", err)
	}
	err = apply(ctx, fs)

	var merr *MergeError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *MergeError", err)
	}
	if merr.Failed != 1 || merr.Total != 3 {
		t.Errorf("MergeError = %d of %d, want 1 of 3", merr.Failed, merr.Total)
	}
	if !strings.Contains(err.Error(), "write refused") {
		t.Errorf("error should carry the cause: %v", err)
	}
	if got := fs.writes.Load(); got != 3 {
		t.Errorf("writes attempted = %d, want 3", got)
	}
	if _, err := fs.Get(ctx, dps[2].Key()); err != nil {
		t.Errorf("other documents should still be written: %v", err)
	}
}
