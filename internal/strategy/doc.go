// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package strategy turns provider responses into metrics store writes.
//
// The set of strategies is closed: Select returns exactly one of
// Ungrouped, Grouped or Breakdown and the Strategy interface cannot be
// implemented outside this package.
//
//   - Ungrouped writes metrics.<name> of one document per url row
//   - Grouped writes the summary totals to the combined urls document
//   - Breakdown unions dimension records into metrics_by.<dimension>
package strategy
