// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package store persists metrics documents and the report registry.
//
// Two backends implement the same interfaces:
//
//   - Badger: embedded, used for single-node deployments and tests
//   - MongoDB: the shared collection used when several workers run
//
// Metrics documents are identified by confighash.DocumentID of their key.
// MongoDB uses that id as _id so no compound unique index over the url
// array is needed.
package store
