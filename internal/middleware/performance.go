// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package middleware

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/customreports/internal/logging"
)

// DefaultSlowRequestThreshold marks requests worth a warning. Status
// streams are long lived by nature and are excluded.
const DefaultSlowRequestThreshold = time.Second

// RequestMetrics is one observed request.
type RequestMetrics struct {
	Route      string
	Method     string
	Duration   time.Duration
	StatusCode int
	Timestamp  time.Time
}

// EndpointStats aggregates the recent requests of one route.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int     `json:"request_count"`
	ErrorCount   int     `json:"error_count"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        int64   `json:"p50_ms"`
	P95MS        int64   `json:"p95_ms"`
	P99MS        int64   `json:"p99_ms"`
	MaxMS        int64   `json:"max_ms"`
}

// PerformanceMonitor keeps a ring of the most recent requests.
type PerformanceMonitor struct {
	mu            sync.RWMutex
	ring          []RequestMetrics
	next          int
	full          bool
	slowThreshold time.Duration
}

// NewPerformanceMonitor keeps the last size requests.
func NewPerformanceMonitor(size int) *PerformanceMonitor {
	if size <= 0 {
		size = 1
	}
	return &PerformanceMonitor{
		ring:          make([]RequestMetrics, size),
		slowThreshold: DefaultSlowRequestThreshold,
	}
}

// SetSlowThreshold changes the warning threshold. Zero disables warnings.
func (pm *PerformanceMonitor) SetSlowThreshold(d time.Duration) {
	pm.mu.Lock()
	pm.slowThreshold = d
	pm.mu.Unlock()
}

// RecordRequest adds m, evicting the oldest entry when full.
func (pm *PerformanceMonitor) RecordRequest(m RequestMetrics) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.ring[pm.next] = m
	pm.next = (pm.next + 1) % len(pm.ring)
	if pm.next == 0 {
		pm.full = true
	}
}

// snapshot returns the recorded requests oldest first.
func (pm *PerformanceMonitor) snapshot() []RequestMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if !pm.full {
		return slices.Clone(pm.ring[:pm.next])
	}
	out := make([]RequestMetrics, 0, len(pm.ring))
	out = append(out, pm.ring[pm.next:]...)
	return append(out, pm.ring[:pm.next]...)
}

// Recent returns up to n of the most recent requests, oldest first.
func (pm *PerformanceMonitor) Recent(n int) []RequestMetrics {
	all := pm.snapshot()
	if n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}

// GetStats aggregates the recorded requests per "METHOD route", busiest
// endpoint first.
func (pm *PerformanceMonitor) GetStats() []EndpointStats {
	byEndpoint := make(map[string][]RequestMetrics)
	for _, m := range pm.snapshot() {
		key := m.Method + " " + m.Route
		byEndpoint[key] = append(byEndpoint[key], m)
	}

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, reqs := range byEndpoint {
		durations := make([]int64, len(reqs))
		var sum int64
		errCount := 0
		for i, m := range reqs {
			durations[i] = m.Duration.Milliseconds()
			sum += durations[i]
			if m.StatusCode >= http.StatusInternalServerError {
				errCount++
			}
		}
		slices.Sort(durations)

		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: len(reqs),
			ErrorCount:   errCount,
			AvgMS:        float64(sum) / float64(len(reqs)),
			P50MS:        percentile(durations, 0.50),
			P95MS:        percentile(durations, 0.95),
			P99MS:        percentile(durations, 0.99),
			MaxMS:        durations[len(durations)-1],
		})
	}

	slices.SortFunc(stats, func(a, b EndpointStats) int {
		if a.RequestCount != b.RequestCount {
			return b.RequestCount - a.RequestCount
		}
		if a.Endpoint < b.Endpoint {
			return -1
		}
		if a.Endpoint > b.Endpoint {
			return 1
		}
		return 0
	})
	return stats
}

// Middleware records every request that passes through it.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		m := RequestMetrics{
			Route:      routeLabel(r),
			Method:     r.Method,
			Duration:   time.Since(start),
			StatusCode: rec.statusCode,
			Timestamp:  start,
		}
		pm.RecordRequest(m)

		pm.mu.RLock()
		threshold := pm.slowThreshold
		pm.mu.RUnlock()
		if threshold > 0 && m.Duration > threshold && m.StatusCode != http.StatusSwitchingProtocols && !isEventStream(rec) {
			logging.Ctx(r.Context()).Warn().
				Str("method", m.Method).
				Str("route", m.Route).
				Dur("duration", m.Duration).
				Msg("Slow request detected")
		}
	})
}

func isEventStream(w http.ResponseWriter) bool {
	return w.Header().Get("Content-Type") == "text/event-stream"
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
