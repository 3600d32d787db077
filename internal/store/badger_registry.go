// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/customreports/internal/confighash"
	"github.com/tomtom215/customreports/internal/models"
)

const (
	registryHashPrefix = "registry:hash:"
	registryIDPrefix   = "registry:id:"
)

// BadgerRegistry implements Registry on BadgerDB. The hash index and the
// entry are written in one transaction, so concurrent registrations of the
// same config conflict and the loser re-reads the winner's entry.
type BadgerRegistry struct {
	db *badger.DB
}

// NewBadgerRegistry creates a registry on an open database.
func NewBadgerRegistry(db *badger.DB) *BadgerRegistry {
	return &BadgerRegistry{db: db}
}

// Register stores the normalized config under a new id unless its hash is
// already known.
func (r *BadgerRegistry) Register(ctx context.Context, cfg models.ReportConfig) (*models.RegistryEntry, bool, error) {
	normalized := confighash.Normalize(cfg)
	hash := confighash.Hash(normalized)

	var (
		entry   *models.RegistryEntry
		created bool
	)
	err := retryOnConflict(func() error {
		entry, created = nil, false
		return r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(registryHashPrefix + hash))
			switch {
			case err == nil:
				var id []byte
				if id, err = item.ValueCopy(nil); err != nil {
					return fmt.Errorf("read registry hash: %w", err)
				}
				entry, err = readEntry(txn, string(id))
				return err
			case !errors.Is(err, badger.ErrKeyNotFound):
				return fmt.Errorf("get registry hash: %w", err)
			}

			entry = &models.RegistryEntry{
				ID:         uuid.New().String(),
				Config:     normalized,
				ConfigHash: hash,
				CreatedAt:  time.Now().UTC(),
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshal registry entry: %w", err)
			}
			if err := txn.Set([]byte(registryIDPrefix+entry.ID), data); err != nil {
				return fmt.Errorf("set registry entry: %w", err)
			}
			if err := txn.Set([]byte(registryHashPrefix+hash), []byte(entry.ID)); err != nil {
				return fmt.Errorf("set registry hash: %w", err)
			}
			created = true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return entry, created, nil
}

// Get returns the entry for id.
func (r *BadgerRegistry) Get(ctx context.Context, id string) (*models.RegistryEntry, error) {
	var entry *models.RegistryEntry
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = readEntry(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func readEntry(txn *badger.Txn, id string) (*models.RegistryEntry, error) {
	item, err := txn.Get([]byte(registryIDPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get registry entry: %w", err)
	}

	var entry models.RegistryEntry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal registry entry: %w", err)
	}
	return &entry, nil
}
