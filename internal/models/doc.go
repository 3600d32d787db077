// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Package models defines the data structures shared across the report pipeline.

Model Categories:

1. Report requests:
  - ReportConfig: declarative report request (date range, granularity, urls, metrics)
  - RegistryEntry: persisted config hash to report id mapping

2. Work units:
  - QueryConfig: one provider call's worth of work
  - DataPoint: smallest unit of stored metric data
  - ChildJobMetadata: payload of a fetch-and-process job

3. Storage:
  - DocumentKey: identity of a metrics-store document
  - MetricsDocument: stored metric values, optionally broken down by dimension
  - MetricsUpdate: $set / $setOnInsert style upsert

4. Results and status:
  - Report, ReportRow: assembled report
  - ReportJobStatus, ChildJobStatus: transient progress derived from queue events

5. API envelopes:
  - APIResponse, APIError, Metadata
*/
package models
