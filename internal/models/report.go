// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package models

import "time"

// DateLayout is the wire format of every date in a report config.
const DateLayout = "2006-01-02"

// Granularity controls how a report's date range is split.
type Granularity string

const (
	GranularityNone  Granularity = "none"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// DateRange is an inclusive range of calendar dates in DateLayout.
type DateRange struct {
	Start string `json:"start" bson:"start" validate:"required,reportdate"`
	End   string `json:"end" bson:"end" validate:"required,reportdate"`
}

// ReportConfig is a declarative report request. It is immutable once
// registered; equivalent configs (after sorting urls and metrics) share an id.
type ReportConfig struct {
	DateRange          DateRange   `json:"dateRange" bson:"dateRange" validate:"required"`
	Granularity        Granularity `json:"granularity" bson:"granularity" validate:"required,oneof=none day week month"`
	URLs               []string    `json:"urls" bson:"urls" validate:"max=5000,dive,required,max=2048"`
	Grouped            bool        `json:"grouped" bson:"grouped"`
	Metrics            []string    `json:"metrics" bson:"metrics" validate:"required,min=1,max=100,dive,fieldname"`
	BreakdownDimension string      `json:"breakdownDimension,omitempty" bson:"breakdownDimension,omitempty" validate:"omitempty,fieldname"`
}

// RegistryEntry maps a config hash to the externally visible report id.
// Created once per distinct hash and never mutated.
type RegistryEntry struct {
	ID         string       `json:"_id" bson:"_id"`
	Config     ReportConfig `json:"config" bson:"config"`
	ConfigHash string       `json:"configHash" bson:"configHash"`
	CreatedAt  time.Time    `json:"createdAt" bson:"createdAt"`
}

// QueryConfig is one external provider call. Never persisted directly.
type QueryConfig struct {
	DateRange     DateRange `json:"dateRange"`
	MetricNames   []string  `json:"metricNames"`
	DimensionName string    `json:"dimensionName"`
	URLs          []string  `json:"urls"`
}

// DataPoint is the smallest unit of requested metric data. Ungrouped and
// breakdown data points carry URL, grouped ones carry URLs.
type DataPoint struct {
	StartDate          string      `json:"startDate"`
	EndDate            string      `json:"endDate"`
	Granularity        Granularity `json:"granularity"`
	Grouped            bool        `json:"grouped"`
	URL                string      `json:"url,omitempty"`
	URLs               []string    `json:"urls,omitempty"`
	BreakdownDimension string      `json:"breakdownDimension,omitempty"`
	Metrics            []string    `json:"metrics"`
}

// Key returns the identity of the metrics-store document this data point
// maps to. Daily documents are identified by their start date alone.
func (dp DataPoint) Key() DocumentKey {
	key := DocumentKey{
		URL:         dp.URL,
		StartDate:   dp.StartDate,
		EndDate:     dp.EndDate,
		Grouped:     dp.Grouped,
		Granularity: dp.Granularity,
	}
	if len(dp.URLs) > 0 {
		key.URLs = append([]string(nil), dp.URLs...)
	}
	if dp.Granularity == GranularityDay {
		key.EndDate = ""
	}
	return key
}

// ChildJobMetadata is the payload of a fetch-and-process job. Hash is the
// content hash of Query and the document shape it writes, and doubles as
// the job id.
type ChildJobMetadata struct {
	Hash       string       `json:"hash"`
	ReportID   string       `json:"reportId"`
	Config     ReportConfig `json:"config"`
	Query      QueryConfig  `json:"query"`
	DataPoints []DataPoint  `json:"dataPoints"`
}

// PrepareJobData is the payload of a prepare (parent) job.
type PrepareJobData struct {
	ReportID string       `json:"reportId"`
	Config   ReportConfig `json:"config"`
}

// Report is a fully assembled report. It is cached only after a complete
// assembly, never partially.
type Report struct {
	ID          string       `json:"id"`
	Config      ReportConfig `json:"config"`
	Rows        []ReportRow  `json:"rows"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// ReportRow holds the stored values of one data point.
type ReportRow struct {
	StartDate string             `json:"startDate"`
	EndDate   string             `json:"endDate"`
	URL       string             `json:"url,omitempty"`
	URLs      []string           `json:"urls,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Breakdown []DimensionRecord  `json:"breakdown,omitempty"`
}
