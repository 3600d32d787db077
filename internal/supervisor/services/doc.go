// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package services adapts the server's long-running components to
// suture.Service: the HTTP server, the queue's watermill router and badger
// value log GC.
package services
