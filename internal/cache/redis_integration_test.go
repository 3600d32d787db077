// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/customreports/internal/testinfra"
)

func TestRedisReportCache_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	addr := testinfra.StartRedis(t, ctx)

	client, err := NewRedisClient(ctx, RedisConfig{Address: addr})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer client.Close()

	rc := NewReportCache(NewRedisBackend(client), 2*time.Second)

	if err := rc.SetReport(ctx, "r1", sampleReport("r1")); err != nil {
		t.Fatalf("SetReport() error = %v", err)
	}
	got, ok, err := rc.GetReport(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("GetReport() = ok %v, err %v", ok, err)
	}
	if len(got.Rows) != 2 {
		t.Errorf("GetReport() rows = %d, want 2", len(got.Rows))
	}

	ttl, err := client.TTL(ctx, ReportKey("r1")).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("key TTL = %v, want within (0, 2s]", ttl)
	}

	time.Sleep(2500 * time.Millisecond)
	if _, ok, err := rc.GetReport(ctx, "r1"); err != nil || ok {
		t.Errorf("GetReport() after expiry = ok %v, err %v", ok, err)
	}
}
