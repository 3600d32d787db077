// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/customreports/internal/models"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open BadgerDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func dayKey(url, day string) models.DocumentKey {
	return models.DocumentKey{URL: url, StartDate: day, Granularity: models.GranularityDay}
}

func TestBadgerMetricsStore_GetNotFound(t *testing.T) {
	t.Parallel()

	s := NewBadgerMetricsStore(openTestDB(t))
	if _, err := s.Get(context.Background(), dayKey("a", "2022-10-01")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestBadgerMetricsStore_UpsertMerges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewBadgerMetricsStore(openTestDB(t))
	key := dayKey("https://example.com/a", "2022-10-01")

	if err := s.BulkUpsert(ctx, []models.MetricsUpdate{
		{Key: key, SetMetrics: map[string]float64{"views": 10, "visits": 4}},
	}); err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}
	if err := s.BulkUpsert(ctx, []models.MetricsUpdate{
		{Key: key, SetMetrics: map[string]float64{"visits": 5, "bounces": 1}},
	}); err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}

	doc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := map[string]float64{"views": 10, "visits": 5, "bounces": 1}
	for name, v := range want {
		if doc.Metrics[name] != v {
			t.Errorf("metrics[%s] = %v, want %v", name, doc.Metrics[name], v)
		}
	}
	if doc.URL != key.URL || doc.StartDate != key.StartDate {
		t.Errorf("key fields not stored: %+v", doc.DocumentKey)
	}
}

func TestBadgerMetricsStore_GroupedKeyOrderIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewBadgerMetricsStore(openTestDB(t))

	written := models.DocumentKey{URLs: []string{"b", "a"}, StartDate: "2022-10-01", EndDate: "2022-10-31", Grouped: true, Granularity: models.GranularityNone}
	if err := s.BulkUpsert(ctx, []models.MetricsUpdate{{Key: written, SetMetrics: map[string]float64{"views": 3}}}); err != nil {
		t.Fatal(err)
	}

	read := written
	read.URLs = []string{"a", "b"}
	doc, err := s.Get(ctx, read)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Metrics["views"] != 3 {
		t.Errorf("views = %v, want 3", doc.Metrics["views"])
	}
}

func TestBadgerMetricsStore_SkipsEmptyUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewBadgerMetricsStore(openTestDB(t))
	key := dayKey("a", "2022-10-01")

	if err := s.BulkUpsert(ctx, []models.MetricsUpdate{{Key: key}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty update created a document: err = %v", err)
	}
}

func TestBadgerMetricsStore_ManyDocumentsAcrossChunks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewBadgerMetricsStore(openTestDB(t))

	updates := make([]models.MetricsUpdate, 0, 250)
	for i := 0; i < 250; i++ {
		key := dayKey("u", "2022-10-01")
		key.URL = key.URL + string(rune('A'+i%26)) + string(rune('a'+i/26))
		updates = append(updates, models.MetricsUpdate{Key: key, SetMetrics: map[string]float64{"views": float64(i)}})
	}
	if err := s.BulkUpsert(ctx, updates); err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}

	doc, err := s.Get(ctx, updates[249].Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Metrics["views"] != 249 {
		t.Errorf("views = %v, want 249", doc.Metrics["views"])
	}
}

func TestBadgerRegistry_RegisterIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewBadgerRegistry(openTestDB(t))

	cfg := models.ReportConfig{
		DateRange:   models.DateRange{Start: "2022-10-01", End: "2022-10-31"},
		Granularity: models.GranularityNone,
		URLs:        []string{"b", "a"},
		Metrics:     []string{"views"},
	}

	first, created, err := r.Register(ctx, cfg)
	if err != nil || !created {
		t.Fatalf("Register() = %v, %v, %v", first, created, err)
	}

	cfg.URLs = []string{"a", "b", "a"}
	second, created, err := r.Register(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("equivalent config should not create a new entry")
	}
	if second.ID != first.ID {
		t.Errorf("id = %s, want %s", second.ID, first.ID)
	}

	got, err := r.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ConfigHash != first.ConfigHash || len(got.Config.URLs) != 2 {
		t.Errorf("stored entry = %+v", got)
	}
}

func TestBadgerRegistry_ConcurrentRegister(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewBadgerRegistry(openTestDB(t))
	cfg := models.ReportConfig{
		DateRange:   models.DateRange{Start: "2022-10-01", End: "2022-10-31"},
		Granularity: models.GranularityDay,
		URLs:        []string{"a"},
		Metrics:     []string{"views"},
	}

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, _, err := r.Register(ctx, cfg)
			if err != nil {
				t.Errorf("Register() error = %v", err)
				return
			}
			ids[i] = entry.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent registrations returned different ids: %v", ids)
		}
	}
}

func TestBadgerRegistry_GetNotFound(t *testing.T) {
	t.Parallel()

	r := NewBadgerRegistry(openTestDB(t))
	if _, err := r.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
