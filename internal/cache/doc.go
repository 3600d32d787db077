// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Package cache stores fully assembled reports so repeated fetches skip the
metrics store entirely.

# Layers

  - Cache: an in-memory byte cache with per-entry TTL, lazy expiration
    on Get, a background sweep and an optional entry bound (CACHE_MAX_ENTRIES)
  - Backend: the storage contract used by ReportCache, implemented by
    MemoryBackend (wrapping Cache) and RedisBackend (go-redis)
  - ReportCache: typed access to reports and data point documents

# Encoding

ReportCache values are JSON encoded with goccy/go-json and then compressed
with zstd. A report is only ever written after a complete assembly, so a
cache hit is always a complete report.

# Keys

	custom-report:<report id>
	custom-report-datapoint:<data point hash>

# Example

	rc := cache.NewReportCache(cache.NewMemoryBackend(cache.New(time.Hour)), 24*time.Hour)
	if report, ok, err := rc.GetReport(ctx, id); err == nil && ok {
	    return report
	}
*/
package cache
