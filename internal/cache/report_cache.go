// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/tomtom215/customreports/internal/metrics"
	"github.com/tomtom215/customreports/internal/models"
)

const (
	reportKeyPrefix    = "custom-report:"
	dataPointKeyPrefix = "custom-report-datapoint:"

	cacheTypeReport    = "report"
	cacheTypeDataPoint = "datapoint"
)

// ReportKey returns the cache key of an assembled report.
func ReportKey(id string) string { return reportKeyPrefix + id }

// DataPointKey returns the cache key of a data point document.
func DataPointKey(hash string) string { return dataPointKeyPrefix + hash }

// ReportCache stores reports and data point documents as zstd-compressed
// JSON in a Backend.
type ReportCache struct {
	backend Backend
	ttl     time.Duration
}

// NewReportCache creates a ReportCache whose entries expire after ttl.
func NewReportCache(backend Backend, ttl time.Duration) *ReportCache {
	return &ReportCache{backend: backend, ttl: ttl}
}

// GetReport returns the cached report for id. A miss is (nil, false, nil).
func (c *ReportCache) GetReport(ctx context.Context, id string) (*models.Report, bool, error) {
	var report models.Report
	ok, err := c.get(ctx, ReportKey(id), cacheTypeReport, &report)
	if err != nil || !ok {
		return nil, false, err
	}
	return &report, true, nil
}

// SetReport caches a fully assembled report.
func (c *ReportCache) SetReport(ctx context.Context, id string, report *models.Report) error {
	return c.set(ctx, ReportKey(id), report)
}

// DeleteReport drops the cached report for id.
func (c *ReportCache) DeleteReport(ctx context.Context, id string) error {
	return c.backend.Delete(ctx, ReportKey(id))
}

// GetDataPoint returns a cached data point document by its hash.
func (c *ReportCache) GetDataPoint(ctx context.Context, hash string) (*models.MetricsDocument, bool, error) {
	var doc models.MetricsDocument
	ok, err := c.get(ctx, DataPointKey(hash), cacheTypeDataPoint, &doc)
	if err != nil || !ok {
		return nil, false, err
	}
	return &doc, true, nil
}

// SetDataPoint caches a data point document by its hash.
func (c *ReportCache) SetDataPoint(ctx context.Context, hash string, doc *models.MetricsDocument) error {
	return c.set(ctx, DataPointKey(hash), doc)
}

// DeleteDataPoint drops the cached data point document for hash.
func (c *ReportCache) DeleteDataPoint(ctx context.Context, hash string) error {
	return c.backend.Delete(ctx, DataPointKey(hash))
}

func (c *ReportCache) get(ctx context.Context, key, cacheType string, v interface{}) (bool, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
		return false, nil
	}
	metrics.CacheHits.WithLabelValues(cacheType).Inc()

	plain, err := decoder().DecodeAll(raw, nil)
	if err != nil {
		return false, fmt.Errorf("decompress %s: %w", key, err)
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *ReportCache) set(ctx context.Context, key string, v interface{}) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.backend.Set(ctx, key, encoder().EncodeAll(plain, nil), c.ttl)
}

// Stateless EncodeAll/DecodeAll are safe for concurrent use, so one of each
// is shared by every ReportCache.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func initZstd() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}
}

func encoder() *zstd.Encoder {
	zstdOnce.Do(initZstd)
	return zstdEncoder
}

func decoder() *zstd.Decoder {
	zstdOnce.Do(initZstd)
	return zstdDecoder
}
