// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/customreports/internal/metrics"
)

func newTestCache(t *testing.T, ttl time.Duration, opts ...Option) *Cache {
	t.Helper()
	c := New(ttl, opts...)
	t.Cleanup(c.Close)
	return c
}

func TestCache_GetSet(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute)

	c.Set("report:r1", []byte(`{"status":"complete"}`))
	value, ok := c.Get("report:r1")
	if !ok {
		t.Fatal("report:r1 should be cached")
	}
	if string(value) != `{"status":"complete"}` {
		t.Errorf("Get = %q", value)
	}
	if _, ok := c.Get("report:r2"); ok {
		t.Error("report:r2 should miss")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("Stats = %+v, want 1 hit, 1 miss, 1 entry", stats)
	}
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Hour)

	c.SetWithTTL("short", []byte("x"), 30*time.Millisecond)
	c.SetWithTTL("default", []byte("y"), 0)
	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("custom TTL should override the default")
	}
	if _, ok := c.Get("default"); !ok {
		t.Error("non-positive TTL should fall back to the default")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Delete("a")
	c.Delete("missing")

	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if got := c.Stats().Evictions; got != 0 {
		t.Errorf("explicit deletes counted as evictions: %d", got)
	}
}

func TestCache_MaxEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(c *Cache)
		evicted string
	}{
		{
			name: "soonest expiry goes first",
			setup: func(c *Cache) {
				c.SetWithTTL("long", []byte("1"), time.Hour)
				c.SetWithTTL("short", []byte("2"), time.Minute)
			},
			evicted: "short",
		},
		{
			name: "expired entry goes first",
			setup: func(c *Cache) {
				c.SetWithTTL("stale", []byte("1"), time.Millisecond)
				c.SetWithTTL("fresh", []byte("2"), time.Minute)
				time.Sleep(5 * time.Millisecond)
			},
			evicted: "stale",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestCache(t, time.Hour, WithMaxEntries(2))
			tt.setup(c)

			c.Set("new", []byte("3"))

			if c.Len() != 2 {
				t.Fatalf("Len = %d, want 2", c.Len())
			}
			if _, ok := c.Get(tt.evicted); ok {
				t.Errorf("%s should have been evicted", tt.evicted)
			}
			if _, ok := c.Get("new"); !ok {
				t.Error("new entry missing")
			}
		})
	}
}

func TestCache_ReplaceAtCapacity(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Hour, WithMaxEntries(2))

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("a", []byte("updated"))

	if got := c.Stats().Evictions; got != 0 {
		t.Errorf("overwrite evicted %d entries", got)
	}
	if v, _ := c.Get("a"); string(v) != "updated" {
		t.Errorf("a = %q, want updated", v)
	}
}

func TestCache_Sweep(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute)

	c.SetWithTTL("expired1", []byte("x"), time.Millisecond)
	c.SetWithTTL("expired2", []byte("x"), time.Millisecond)
	c.Set("live", []byte("y"))
	time.Sleep(10 * time.Millisecond)

	before := c.Stats().LastCleanup
	c.sweep()

	stats := c.Stats()
	if stats.Entries != 1 || stats.Evictions != 2 {
		t.Errorf("Stats = %+v, want 1 entry and 2 evictions", stats)
	}
	if !stats.LastCleanup.After(before) {
		t.Error("LastCleanup should advance")
	}
}

func TestCache_SweepLoop(t *testing.T) {
	t.Parallel()
	c := NewWithCleanup(time.Millisecond, 5*time.Millisecond)
	t.Cleanup(c.Close)

	c.Set("k", []byte("v"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sweep loop did not remove the expired entry")
}

func TestCache_Metrics(t *testing.T) {
	t.Parallel()
	const label = "cache-metrics-test"
	c := newTestCache(t, time.Hour, WithMaxEntries(1), WithMetricsLabel(label))

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	if got := testutil.ToFloat64(metrics.CacheSize.WithLabelValues(label)); got != 1 {
		t.Errorf("cache_entries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CacheEvictions.WithLabelValues(label)); got != 1 {
		t.Errorf("cache_evictions_total = %v, want 1", got)
	}
}

func TestCache_CloseIdempotent(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)
	c.Close()
	c.Close()
}

func TestCache_Concurrency(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute, WithMaxEntries(50))

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d-%d", g, i%10)
				c.Set(key, []byte(key))
				if v, ok := c.Get(key); ok && string(v) != key {
					t.Errorf("Get(%s) = %q", key, v)
				}
				if i%7 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len = %d, exceeds bound of 50", c.Len())
	}
}
