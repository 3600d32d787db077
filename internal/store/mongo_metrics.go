// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomtom215/customreports/internal/confighash"
	"github.com/tomtom215/customreports/internal/models"
)

// MongoMetricsStore implements MetricsStore on a MongoDB collection.
type MongoMetricsStore struct {
	coll *mongo.Collection
}

// NewMongoMetricsStore wraps the metrics collection of db.
func NewMongoMetricsStore(db *mongo.Database) *MongoMetricsStore {
	return &MongoMetricsStore{coll: db.Collection(MetricsCollection)}
}

// Get returns the document for key.
func (s *MongoMetricsStore) Get(ctx context.Context, key models.DocumentKey) (*models.MetricsDocument, error) {
	var doc models.MetricsDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": confighash.DocumentID(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find metrics document: %w", err)
	}
	return &doc, nil
}

// BulkUpsert issues one unordered bulk write. Each update sets individual
// metric paths so concurrent writers of different metrics do not clobber
// each other.
func (s *MongoMetricsStore) BulkUpsert(ctx context.Context, updates []models.MetricsUpdate) error {
	operations := make([]mongo.WriteModel, 0, len(updates))
	for _, u := range updates {
		if u.Empty() {
			continue
		}
		operations = append(operations, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": confighash.DocumentID(u.Key)}).
			SetUpdate(updateDocument(u)).
			SetUpsert(true))
	}
	if len(operations) == 0 {
		return nil
	}

	if _, err := s.coll.BulkWrite(ctx, operations, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk upsert metrics: %w", err)
	}
	return nil
}

func updateDocument(u models.MetricsUpdate) bson.M {
	set := bson.M{}
	for name, value := range u.SetMetrics {
		set["metrics."+name] = value
	}
	for dim, records := range u.SetBreakdown {
		set["metrics_by."+dim] = records
	}

	key := confighash.NormalizeKey(u.Key)
	onInsert := bson.M{
		"startDate":   key.StartDate,
		"grouped":     key.Grouped,
		"granularity": key.Granularity,
	}
	if key.URL != "" {
		onInsert["url"] = key.URL
	}
	if len(key.URLs) > 0 {
		onInsert["urls"] = key.URLs
	}
	if key.EndDate != "" {
		onInsert["endDate"] = key.EndDate
	}

	update := bson.M{"$setOnInsert": onInsert}
	if len(set) > 0 {
		update["$set"] = set
	}
	return update
}
