// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Package pipeline turns a registered report config into a finished report.

A request for a report goes through these stages:

 1. The report cache is checked. A hit is returned as is.
 2. The config is read from the registry and decomposed into provider
    queries (package decompose).
 3. The dedup filter drops every data point the metrics store already
    holds (package dedup).
 4. With nothing left to fetch the report is assembled from the store and
    cached synchronously. Otherwise a flow is dispatched: one "prepare"
    parent job per report and one "fetch-and-process" child per query.

Child job ids are content hashes of their query together with the
granularity, grouped flag and breakdown dimension the results are written
under, so overlapping reports share in-flight work through the queue
instead of a lock, and only when they write the same documents. The parent runs
once every child has completed, re-reads the whole report from the store
and caches it.

Progress is observed with a StatusAggregator, which folds queue events and
periodic job store reads into ReportJobStatus values. It keeps no state
outside the stream it serves: the children of a running report are read
from the parent job record.
*/
package pipeline
