// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package models

// DocumentKey identifies a metrics-store document. EndDate is empty for
// daily documents.
type DocumentKey struct {
	URL         string      `json:"url,omitempty" bson:"url,omitempty"`
	URLs        []string    `json:"urls,omitempty" bson:"urls,omitempty"`
	StartDate   string      `json:"startDate" bson:"startDate"`
	EndDate     string      `json:"endDate,omitempty" bson:"endDate,omitempty"`
	Grouped     bool        `json:"grouped" bson:"grouped"`
	Granularity Granularity `json:"granularity" bson:"granularity"`
}

// DimensionRecord is one element of metrics_by.<dimension>. The set of
// records for a dimension is keyed by DimensionValue.
type DimensionRecord struct {
	DimensionValue string             `json:"dimensionValue" bson:"dimensionValue"`
	Metrics        map[string]float64 `json:"metrics" bson:"metrics"`
}

// MetricsDocument is a stored metrics document. Metrics is only ever
// extended or overwritten per reported metric, never shrunk.
type MetricsDocument struct {
	ID          string `json:"-" bson:"_id,omitempty"`
	DocumentKey `bson:",inline"`
	Metrics     map[string]float64           `json:"metrics,omitempty" bson:"metrics,omitempty"`
	MetricsBy   map[string][]DimensionRecord `json:"metrics_by,omitempty" bson:"metrics_by,omitempty"`
}

// MetricsUpdate is an upsert against one document: SetMetrics entries are
// written to metrics.<name>, SetBreakdown entries replace metrics_by.<dim>,
// and the key fields are written only when the document is inserted.
type MetricsUpdate struct {
	Key          DocumentKey
	SetMetrics   map[string]float64
	SetBreakdown map[string][]DimensionRecord
}

// Empty reports whether the update carries no values.
func (u MetricsUpdate) Empty() bool {
	return len(u.SetMetrics) == 0 && len(u.SetBreakdown) == 0
}

// Apply performs the update against doc in memory, creating the document
// when doc is nil. It never removes existing metrics.
func (u MetricsUpdate) Apply(doc *MetricsDocument) *MetricsDocument {
	if doc == nil {
		doc = &MetricsDocument{DocumentKey: u.Key}
	}
	if len(u.SetMetrics) > 0 && doc.Metrics == nil {
		doc.Metrics = make(map[string]float64, len(u.SetMetrics))
	}
	for name, value := range u.SetMetrics {
		doc.Metrics[name] = value
	}
	if len(u.SetBreakdown) > 0 && doc.MetricsBy == nil {
		doc.MetricsBy = make(map[string][]DimensionRecord, len(u.SetBreakdown))
	}
	for dim, records := range u.SetBreakdown {
		doc.MetricsBy[dim] = records
	}
	return doc
}
