// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package config

import (
	"fmt"

	"github.com/tomtom215/customreports/internal/logging"
)

// ConfigError is a single invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func configErr(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration and returns the first *ConfigError.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateStore,
		c.validateCache,
		c.validateNATS,
		c.validateQueue,
		c.validateProvider,
		c.validateReports,
		c.validateSecurity,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return configErr("HTTP_PORT", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return configErr("HTTP_TIMEOUT", "must be positive")
	}
	if c.Server.SlowRequestThreshold < 0 {
		return configErr("SLOW_REQUEST_THRESHOLD", "must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return configErr("LOG_LEVEL", "unknown level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return configErr("LOG_FORMAT", "must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendBadger:
		if c.Store.BadgerPath == "" && !c.Store.BadgerInMemory {
			return configErr("BADGER_PATH", "is required unless BADGER_IN_MEMORY=true")
		}
	case BackendMongo:
		if c.Store.MongoURI == "" {
			return configErr("MONGO_URI", "is required when STORE_BACKEND=mongo")
		}
		if err := validateMongoURI(c.Store.MongoURI); err != nil {
			return configErr("MONGO_URI", "%v", err)
		}
		if c.Store.MongoDatabase == "" {
			return configErr("MONGO_DATABASE", "is required when STORE_BACKEND=mongo")
		}
	default:
		return configErr("STORE_BACKEND", "must be badger or mongo, got %q", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddress == "" {
			return configErr("REDIS_ADDRESS", "is required when CACHE_BACKEND=redis")
		}
	default:
		return configErr("CACHE_BACKEND", "must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return configErr("CACHE_TTL", "must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return configErr("CACHE_MAX_ENTRIES", "must not be negative")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		if c.Queue.JobStore == BackendKV {
			return configErr("QUEUE_JOB_STORE", "kv requires NATS_ENABLED=true")
		}
		return nil
	}
	if !c.NATS.EmbeddedServer {
		if err := validateNATSURL(c.NATS.URL); err != nil {
			return configErr("NATS_URL", "%v", err)
		}
	}
	if c.NATS.StreamName == "" {
		return configErr("NATS_STREAM_NAME", "is required")
	}
	if c.NATS.SubscribersCount < 1 {
		return configErr("NATS_SUBSCRIBERS", "must be at least 1")
	}
	if c.NATS.DedupWindow <= 0 {
		return configErr("NATS_DEDUP_WINDOW", "must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.JobStore != BackendBadger && c.Queue.JobStore != BackendKV {
		return configErr("QUEUE_JOB_STORE", "must be badger or kv, got %q", c.Queue.JobStore)
	}
	if c.Queue.JobStore == BackendBadger && c.Store.BadgerPath == "" && !c.Store.BadgerInMemory {
		return configErr("BADGER_PATH", "is required by the badger job store")
	}
	if c.Queue.Attempts < 1 {
		return configErr("QUEUE_ATTEMPTS", "must be at least 1")
	}
	if c.Queue.LockDuration <= 0 {
		return configErr("QUEUE_LOCK_DURATION", "must be positive")
	}
	if c.Queue.PrepareConcurrency < 1 || c.Queue.FetchConcurrency < 1 {
		return configErr("QUEUE_FETCH_CONCURRENCY", "queue concurrency must be at least 1")
	}
	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.BaseURL == "" {
		return configErr("PROVIDER_BASE_URL", "is required")
	}
	if err := validateHTTPURL(c.Provider.BaseURL); err != nil {
		return configErr("PROVIDER_BASE_URL", "%v", err)
	}
	if c.Provider.RateLimitCalls < 1 || c.Provider.RateLimitWindow <= 0 {
		return configErr("PROVIDER_RATE_LIMIT_CALLS", "rate limit must allow at least one call per positive window")
	}
	if c.Server.IsProduction() && c.Provider.APIKey == "" {
		return configErr("PROVIDER_API_KEY", "is required in production")
	}
	return nil
}

func (c *Config) validateReports() error {
	if c.Reports.BatchSize < 1 {
		return configErr("REPORT_BATCH_SIZE", "must be at least 1")
	}
	if c.Reports.DedupConcurrency < 1 {
		return configErr("REPORT_DEDUP_CONCURRENCY", "must be at least 1")
	}
	if c.Reports.StatusResync <= 0 {
		return configErr("REPORT_STATUS_RESYNC", "must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0 {
		return configErr("RATE_LIMIT_REQUESTS", "must be at least 1 per positive window")
	}
	return nil
}
