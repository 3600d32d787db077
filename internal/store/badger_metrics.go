// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/tomtom215/customreports/internal/confighash"
	"github.com/tomtom215/customreports/internal/models"
)

const (
	metricsKeyPrefix = "metrics:doc:"

	// upsertChunkSize bounds the number of documents written per transaction.
	upsertChunkSize = 100
	// maxTxnRetries bounds retries after badger.ErrConflict.
	maxTxnRetries = 5
)

// BadgerMetricsStore implements MetricsStore on BadgerDB.
type BadgerMetricsStore struct {
	db *badger.DB
}

// NewBadgerMetricsStore creates a metrics store on an open database.
func NewBadgerMetricsStore(db *badger.DB) *BadgerMetricsStore {
	return &BadgerMetricsStore{db: db}
}

func metricsKey(key models.DocumentKey) []byte {
	return []byte(metricsKeyPrefix + confighash.DocumentID(key))
}

// Get returns the document for key.
func (s *BadgerMetricsStore) Get(ctx context.Context, key models.DocumentKey) (*models.MetricsDocument, error) {
	var doc *models.MetricsDocument
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = readDocument(txn, metricsKey(key))
		return err
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// BulkUpsert applies updates in chunks, each chunk in one transaction.
func (s *BadgerMetricsStore) BulkUpsert(ctx context.Context, updates []models.MetricsUpdate) error {
	pending := lo.Reject(updates, func(u models.MetricsUpdate, _ int) bool { return u.Empty() })
	for _, chunk := range lo.Chunk(pending, upsertChunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.upsertChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerMetricsStore) upsertChunk(updates []models.MetricsUpdate) error {
	return retryOnConflict(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			for _, u := range updates {
				key := metricsKey(u.Key)
				doc, err := readDocument(txn, key)
				if err != nil {
					return err
				}
				doc = u.Apply(doc)
				doc.ID = confighash.DocumentID(u.Key)

				data, err := json.Marshal(doc)
				if err != nil {
					return fmt.Errorf("marshal metrics document: %w", err)
				}
				if err := txn.Set(key, data); err != nil {
					return fmt.Errorf("set metrics document: %w", err)
				}
			}
			return nil
		})
	})
}

// readDocument returns nil without error when key is absent.
func readDocument(txn *badger.Txn, key []byte) (*models.MetricsDocument, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics document: %w", err)
	}

	var doc models.MetricsDocument
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal metrics document: %w", err)
	}
	return &doc, nil
}

func retryOnConflict(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = fn()
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction conflict after %d attempts: %w", maxTxnRetries, err)
}
