// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/customreports/internal/cache"
	"github.com/tomtom215/customreports/internal/config"
	"github.com/tomtom215/customreports/internal/eventprocessor"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/queue"
	"github.com/tomtom215/customreports/internal/store"
)

// components owns everything main opens. close releases it in reverse
// order of opening.
type components struct {
	metrics  store.MetricsStore
	registry store.Registry
	cache    *cache.ReportCache

	transport *eventprocessor.Transport
	jobs      queue.JobStore

	// badgerDBs are GC'd by the data layer, keyed by role.
	badgerDBs map[string]*badger.DB

	health  *eventprocessor.HealthChecker
	closers []func() error
}

func newComponents() *components {
	return &components{
		badgerDBs: make(map[string]*badger.DB),
		health:    eventprocessor.NewHealthChecker(eventprocessor.DefaultHealthTimeout),
	}
}

func (c *components) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// openBadger opens (or reuses) the badger database for role under the
// configured path.
func (c *components) openBadger(cfg *config.StoreConfig, role string) (*badger.DB, error) {
	if db, ok := c.badgerDBs[role]; ok {
		return db, nil
	}

	var opts badger.Options
	if cfg.BadgerInMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(cfg.BadgerPath, role))
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", role, err)
	}
	c.badgerDBs[role] = db
	c.onClose(db.Close)
	c.health.RegisterComponent("badger-"+role, eventprocessor.PingCheck(func(context.Context) error {
		if db.IsClosed() {
			return errors.New("database closed")
		}
		return nil
	}))
	logging.Info().Str("role", role).Bool("in_memory", cfg.BadgerInMemory).Msg("Badger database opened")
	return db, nil
}

// initStore opens the metrics store and report registry.
func (c *components) initStore(ctx context.Context, cfg *config.StoreConfig) error {
	switch cfg.Backend {
	case config.BackendMongo:
		client, err := store.ConnectMongo(ctx, store.MongoConfig{
			URI:         cfg.MongoURI,
			Database:    cfg.MongoDatabase,
			MaxPoolSize: cfg.MongoMaxPoolSize,
		})
		if err != nil {
			return err
		}
		c.onClose(func() error { return client.Disconnect(context.Background()) })

		db := client.Database(cfg.MongoDatabase)
		registry, err := store.NewMongoRegistry(ctx, db)
		if err != nil {
			return err
		}
		c.metrics = store.NewMongoMetricsStore(db)
		c.registry = registry
		c.health.RegisterComponent("mongodb", eventprocessor.PingCheck(func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		}))

	default:
		db, err := c.openBadger(cfg, "data")
		if err != nil {
			return err
		}
		c.metrics = store.NewBadgerMetricsStore(db)
		c.registry = store.NewBadgerRegistry(db)
	}
	logging.Info().Str("backend", cfg.Backend).Msg("Metrics store ready")
	return nil
}

// initCache builds the report cache on memory or redis.
func (c *components) initCache(ctx context.Context, cfg *config.CacheConfig) error {
	var backend cache.Backend
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		c.onClose(client.Close)
		c.health.RegisterComponent("redis", eventprocessor.PingCheck(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		backend = cache.NewRedisBackend(client)

	default:
		mem := cache.New(cfg.TTL, cache.WithMaxEntries(cfg.MaxEntries), cache.WithMetricsLabel("memory"))
		c.onClose(func() error { mem.Close(); return nil })
		backend = cache.NewMemoryBackend(mem)
	}
	c.cache = cache.NewReportCache(backend, cfg.TTL)
	return nil
}

// initTransport connects the job transport: JetStream when NATS is
// enabled, in-process channels otherwise.
func (c *components) initTransport(ctx context.Context, cfg *config.NATSConfig) error {
	logger := watermill.NewSlogLogger(logging.NewComponentSlogLogger("watermill"))

	if !cfg.Enabled {
		c.transport = eventprocessor.NewChannelTransport(logger)
	} else {
		t, err := eventprocessor.NewNATSTransport(ctx, cfg, logger)
		if err != nil {
			return err
		}
		c.transport = t
	}
	c.onClose(c.transport.Close)
	c.transport.RegisterHealth(c.health)
	return nil
}

// initJobStore opens the queue's job store. The kv store needs the NATS
// transport.
func (c *components) initJobStore(ctx context.Context, cfg *config.Config) error {
	if cfg.Queue.JobStore == config.BackendKV {
		kv, err := queue.NewKVJobStore(ctx, c.transport.JetStream(), cfg.NATS.KVBucket)
		if err != nil {
			return err
		}
		c.jobs = kv
		return nil
	}

	db, err := c.openBadger(&cfg.Store, "jobs")
	if err != nil {
		return err
	}
	c.jobs = queue.NewBadgerJobStore(db)
	return nil
}
