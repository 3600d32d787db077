// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package confighash canonicalizes report and query configs and derives the
// content hashes used as report identity, job ids and document ids.
//
// Two configs that are equal under set-equality of their urls and metrics
// always produce the same hash. Every dedup decision in the pipeline rests
// on that guarantee.
package confighash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/tomtom215/customreports/internal/models"
)

// Normalize returns the canonical form of cfg: urls and metrics trimmed,
// de-duplicated and sorted, granularity lower-cased. Slices are never nil so
// an omitted list and an empty list encode identically.
func Normalize(cfg models.ReportConfig) models.ReportConfig {
	return models.ReportConfig{
		DateRange: models.DateRange{
			Start: strings.TrimSpace(cfg.DateRange.Start),
			End:   strings.TrimSpace(cfg.DateRange.End),
		},
		Granularity:        models.Granularity(strings.ToLower(strings.TrimSpace(string(cfg.Granularity)))),
		URLs:               canonicalSet(cfg.URLs),
		Grouped:            cfg.Grouped,
		Metrics:            canonicalSet(cfg.Metrics),
		BreakdownDimension: strings.TrimSpace(cfg.BreakdownDimension),
	}
}

// NormalizeQuery returns the canonical form of q.
func NormalizeQuery(q models.QueryConfig) models.QueryConfig {
	return models.QueryConfig{
		DateRange:     q.DateRange,
		MetricNames:   canonicalSet(q.MetricNames),
		DimensionName: q.DimensionName,
		URLs:          canonicalSet(q.URLs),
	}
}

// NormalizeKey returns the canonical form of a document key.
func NormalizeKey(key models.DocumentKey) models.DocumentKey {
	if len(key.URLs) > 0 {
		key.URLs = canonicalSet(key.URLs)
	}
	return key
}

// Hash returns the 128-bit hex digest of the canonical JSON encoding of v.
// Struct field order fixes key order and map keys are encoded sorted.
func Hash(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable for unsupported types, which the model types are not.
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// ReportHash is the registry identity of a report config.
func ReportHash(cfg models.ReportConfig) string {
	return Hash(Normalize(cfg))
}

// QueryHash is the identity of the provider query q.
func QueryHash(q models.QueryConfig) string {
	return Hash(NormalizeQuery(q))
}

// fetchJobIdentity is what a fetch job writes: the query it runs plus the
// shape of the documents its results land in.
type fetchJobIdentity struct {
	Query              models.QueryConfig `json:"query"`
	Granularity        models.Granularity `json:"granularity"`
	Grouped            bool               `json:"grouped"`
	BreakdownDimension string             `json:"breakdownDimension,omitempty"`
}

// FetchJobID is the job id of the fetch-and-process job running q for a
// report of cfg. The same query issued for reports whose data points map to
// different documents or fields (a daily and an undivided single day, or a
// url breakdown and a plain per-url query) gets distinct ids.
func FetchJobID(cfg models.ReportConfig, q models.QueryConfig) string {
	cfg = Normalize(cfg)
	return Hash(fetchJobIdentity{
		Query:              NormalizeQuery(q),
		Granularity:        cfg.Granularity,
		Grouped:            cfg.Grouped,
		BreakdownDimension: cfg.BreakdownDimension,
	})
}

// DocumentID is the storage id of the metrics document identified by key.
func DocumentID(key models.DocumentKey) string {
	return Hash(NormalizeKey(key))
}

// DataPointHash identifies the stored document a data point reads from. Data
// points that differ only in requested metrics share a hash.
func DataPointHash(dp models.DataPoint) string {
	return DocumentID(dp.Key())
}

func canonicalSet(values []string) []string {
	out := lo.Uniq(lo.FilterMap(values, func(v string, _ int) (string, bool) {
		v = strings.TrimSpace(v)
		return v, v != ""
	}))
	sort.Strings(out)
	return out
}
