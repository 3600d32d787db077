// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package store

import (
	"context"
	"errors"

	"github.com/tomtom215/customreports/internal/models"
)

// ErrNotFound is returned when a document or registry entry does not exist.
var ErrNotFound = errors.New("not found")

// MetricsReader reads metrics documents.
type MetricsReader interface {
	// Get returns the document for key or ErrNotFound.
	Get(ctx context.Context, key models.DocumentKey) (*models.MetricsDocument, error)
}

// MetricsStore is the persistent metrics-document collection.
type MetricsStore interface {
	MetricsReader

	// BulkUpsert applies updates. Documents are created when missing and
	// existing metrics not named by an update are left untouched.
	BulkUpsert(ctx context.Context, updates []models.MetricsUpdate) error
}

// Registry maps config hashes to report ids.
type Registry interface {
	// Register returns the entry for cfg's hash, creating it when absent.
	// created is false when an equivalent config was already registered.
	Register(ctx context.Context, cfg models.ReportConfig) (entry *models.RegistryEntry, created bool, err error)

	// Get returns the entry with the given report id or ErrNotFound.
	Get(ctx context.Context, id string) (*models.RegistryEntry, error)
}
