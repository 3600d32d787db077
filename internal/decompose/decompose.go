// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package decompose

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/tomtom215/customreports/internal/models"
)

// DefaultBatchSize is the number of urls per ungrouped provider query.
const DefaultBatchSize = 50

const (
	// DimensionURL splits ungrouped results by page url.
	DimensionURL = "url"
	// DimensionGroupedTotal is requested for grouped queries; only the
	// summary totals of the response are used.
	DimensionGroupedTotal = "daterangeday"
)

// ErrGroupedWithoutURLs is returned for a grouped config with no urls.
var ErrGroupedWithoutURLs = errors.New("grouped report requires at least one url")

// QueryGroup is one provider query and the data points it answers.
type QueryGroup struct {
	Query      models.QueryConfig
	DataPoints []models.DataPoint
}

// Options tunes decomposition.
type Options struct {
	BatchSize int
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// Decompose expands cfg into query groups. Every (date range, url) pair the
// config implies appears in exactly one group. A config with no urls yields
// no groups.
func Decompose(cfg models.ReportConfig, opts Options) ([]QueryGroup, error) {
	if len(cfg.URLs) == 0 {
		if cfg.Grouped {
			return nil, ErrGroupedWithoutURLs
		}
		return nil, nil
	}

	ranges, err := SplitDates(cfg.DateRange.Start, cfg.DateRange.End, cfg.Granularity)
	if err != nil {
		return nil, err
	}

	var groups []QueryGroup
	for _, r := range ranges {
		switch {
		case cfg.Grouped:
			groups = append(groups, groupedGroup(cfg, r))
		case cfg.BreakdownDimension != "":
			for _, url := range cfg.URLs {
				groups = append(groups, QueryGroup{
					Query:      query(cfg, r, cfg.BreakdownDimension, []string{url}),
					DataPoints: []models.DataPoint{dataPoint(cfg, r, url)},
				})
			}
		default:
			for _, batch := range lo.Chunk(cfg.URLs, opts.batchSize()) {
				g := QueryGroup{
					Query:      query(cfg, r, DimensionURL, batch),
					DataPoints: make([]models.DataPoint, 0, len(batch)),
				}
				for _, url := range batch {
					g.DataPoints = append(g.DataPoints, dataPoint(cfg, r, url))
				}
				groups = append(groups, g)
			}
		}
	}
	return groups, nil
}

// DataPoints flattens groups in order.
func DataPoints(groups []QueryGroup) []models.DataPoint {
	return lo.FlatMap(groups, func(g QueryGroup, _ int) []models.DataPoint {
		return g.DataPoints
	})
}

func groupedGroup(cfg models.ReportConfig, r models.DateRange) QueryGroup {
	dp := dataPoint(cfg, r, "")
	dp.URLs = append([]string(nil), cfg.URLs...)
	return QueryGroup{
		Query:      query(cfg, r, DimensionGroupedTotal, cfg.URLs),
		DataPoints: []models.DataPoint{dp},
	}
}

func query(cfg models.ReportConfig, r models.DateRange, dim string, urls []string) models.QueryConfig {
	return models.QueryConfig{
		DateRange:     r,
		MetricNames:   append([]string(nil), cfg.Metrics...),
		DimensionName: dim,
		URLs:          append([]string(nil), urls...),
	}
}

func dataPoint(cfg models.ReportConfig, r models.DateRange, url string) models.DataPoint {
	return models.DataPoint{
		StartDate:          r.Start,
		EndDate:            r.End,
		Granularity:        cfg.Granularity,
		Grouped:            cfg.Grouped,
		URL:                url,
		BreakdownDimension: cfg.BreakdownDimension,
		Metrics:            append([]string(nil), cfg.Metrics...),
	}
}

// SplitDates splits the inclusive range [start, end] into consecutive
// sub-ranges. Weeks start on Sunday and months on the 1st; the first and
// last sub-range are clipped to the requested range.
func SplitDates(start, end string, gran models.Granularity) ([]models.DateRange, error) {
	s, err := time.Parse(models.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	e, err := time.Parse(models.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("start date %s is after end date %s", start, end)
	}

	var next func(time.Time) time.Time
	switch gran {
	case models.GranularityNone, "":
		return []models.DateRange{{Start: start, End: end}}, nil
	case models.GranularityDay:
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case models.GranularityWeek:
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 7-int(t.Weekday())) }
	case models.GranularityMonth:
		next = func(t time.Time) time.Time { return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC) }
	default:
		return nil, fmt.Errorf("unknown granularity %q", gran)
	}

	var ranges []models.DateRange
	for cur := s; !cur.After(e); {
		n := next(cur)
		last := n.AddDate(0, 0, -1)
		if last.After(e) {
			last = e
		}
		ranges = append(ranges, models.DateRange{
			Start: cur.Format(models.DateLayout),
			End:   last.Format(models.DateLayout),
		})
		cur = n
	}
	return ranges, nil
}
