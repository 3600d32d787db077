// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/customreports/internal/metrics"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = 5 * time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Cache is an in-process byte cache with per-entry expiry and an optional
// entry bound. When full, Set evicts the entry closest to expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	ttl        time.Duration
	maxEntries int
	label      string

	hits, misses, evictions atomic.Int64
	lastCleanup             atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Entries     int
	LastCleanup time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of stored entries. n <= 0 is unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithMetricsLabel reports size and evictions under the cache_type label.
func WithMetricsLabel(label string) Option {
	return func(c *Cache) { c.label = label }
}

// New creates a cache whose entries expire after ttl by default and starts
// the expiry sweep. Call Close to stop it.
func New(ttl time.Duration, opts ...Option) *Cache {
	return NewWithCleanup(ttl, DefaultCleanupInterval, opts...)
}

// NewWithCleanup is New with an explicit sweep interval.
func NewWithCleanup(ttl, interval time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastCleanup.Store(time.Now().UnixNano())

	go c.sweepLoop(interval)
	return c
}

// Get returns the value stored under key. An expired entry is dropped and
// reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
			c.evicted(1, len(c.entries))
		}
		c.mu.Unlock()
		ok = false
	}

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.data, true
}

// Set stores value with the default TTL.
func (c *Cache) Set(key string, value []byte) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value for ttl. A non-positive ttl falls back to the
// default.
func (c *Cache) SetWithTTL(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, replacing := c.entries[key]; !replacing && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOneLocked(now)
	}
	c.entries[key] = entry{data: value, expiresAt: now.Add(ttl)}
	c.reportSize(len(c.entries))
}

// evictOneLocked drops an expired entry if there is one, else the entry
// that would expire soonest.
func (c *Cache) evictOneLocked(now time.Time) {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
		if now.After(e.expiresAt) {
			victim = k
			break
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.evicted(1, len(c.entries))
	}
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.reportSize(len(c.entries))
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Entries:     c.Len(),
		LastCleanup: time.Unix(0, c.lastCleanup.Load()),
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep removes every expired entry.
func (c *Cache) sweep() {
	now := time.Now()

	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.evicted(removed, len(c.entries))
	c.mu.Unlock()

	c.lastCleanup.Store(now.UnixNano())
}

func (c *Cache) evicted(n, size int) {
	if n > 0 {
		c.evictions.Add(int64(n))
		if c.label != "" {
			metrics.CacheEvictions.WithLabelValues(c.label).Add(float64(n))
		}
	}
	c.reportSize(size)
}

func (c *Cache) reportSize(size int) {
	if c.label != "" {
		metrics.CacheSize.WithLabelValues(c.label).Set(float64(size))
	}
}
