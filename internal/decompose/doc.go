// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package decompose expands a report config into provider queries and the
// data points each query answers.
//
// Three shapes exist:
//
//   - ungrouped: urls are batched, one data point per url per date range
//   - grouped: one query per date range covering all urls, answered by the
//     response summary as a single combined data point
//   - breakdown: one query per url per date range, split by the requested
//     dimension
package decompose
