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

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomtom215/customreports/internal/confighash"
	"github.com/tomtom215/customreports/internal/models"
)

// MongoRegistry implements Registry on a MongoDB collection with a unique
// index on configHash.
type MongoRegistry struct {
	coll *mongo.Collection
}

// NewMongoRegistry wraps the registry collection and ensures its index.
func NewMongoRegistry(ctx context.Context, db *mongo.Database) (*MongoRegistry, error) {
	coll := db.Collection(RegistryCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "configHash", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("configHash_unique"),
	})
	if err != nil {
		return nil, fmt.Errorf("create registry index: %w", err)
	}
	return &MongoRegistry{coll: coll}, nil
}

// Register inserts the config, falling back to the existing entry when the
// unique index rejects the insert.
func (r *MongoRegistry) Register(ctx context.Context, cfg models.ReportConfig) (*models.RegistryEntry, bool, error) {
	normalized := confighash.Normalize(cfg)
	hash := confighash.Hash(normalized)

	existing, err := r.findByHash(ctx, hash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	entry := &models.RegistryEntry{
		ID:         uuid.New().String(),
		Config:     normalized,
		ConfigHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, findErr := r.findByHash(ctx, hash)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert registry entry: %w", err)
	}
	return entry, true, nil
}

// Get returns the entry for id.
func (r *MongoRegistry) Get(ctx context.Context, id string) (*models.RegistryEntry, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRegistry) findByHash(ctx context.Context, hash string) (*models.RegistryEntry, error) {
	return r.findOne(ctx, bson.M{"configHash": hash})
}

func (r *MongoRegistry) findOne(ctx context.Context, filter bson.M) (*models.RegistryEntry, error) {
	var entry models.RegistryEntry
	err := r.coll.FindOne(ctx, filter).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find registry entry: %w", err)
	}
	return &entry, nil
}
