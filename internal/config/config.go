// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Store    StoreConfig    `koanf:"store"`
	Cache    CacheConfig    `koanf:"cache"`
	NATS     NATSConfig     `koanf:"nats"`
	Queue    QueueConfig    `koanf:"queue"`
	Provider ProviderConfig `koanf:"provider"`
	Reports  ReportsConfig  `koanf:"reports"`
	Security SecurityConfig `koanf:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`

	// SlowRequestThreshold logs a warning for slower requests. Zero
	// disables the warning.
	SlowRequestThreshold time.Duration `koanf:"slow_request_threshold"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Store backends.
const (
	BackendBadger = "badger"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendKV     = "kv"
)

// StoreConfig selects the metrics store and registry backend.
type StoreConfig struct {
	// Backend is badger or mongo.
	Backend string `koanf:"backend"`

	// BadgerPath is the database directory. Also holds the badger job store.
	BadgerPath string `koanf:"badger_path"`

	// BadgerInMemory keeps everything in memory (development only).
	BadgerInMemory bool `koanf:"badger_in_memory"`

	MongoURI         string `koanf:"mongo_uri"`
	MongoDatabase    string `koanf:"mongo_database"`
	MongoMaxPoolSize uint64 `koanf:"mongo_max_pool_size"`
}

// CacheConfig selects the report cache backend.
type CacheConfig struct {
	// Backend is memory or redis.
	Backend string `koanf:"backend"`

	// TTL bounds how long an assembled report is served without
	// re-assembly from the metrics store.
	TTL time.Duration `koanf:"ttl"`

	// MaxEntries bounds the memory backend. Zero means unbounded.
	MaxEntries int `koanf:"max_entries"`

	RedisAddress  string `koanf:"redis_address"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// NATSConfig holds job transport settings.
type NATSConfig struct {
	// Enabled switches the transport from in-process channels to JetStream.
	Enabled bool `koanf:"enabled"`

	// EmbeddedServer runs a NATS server inside the process.
	EmbeddedServer bool `koanf:"embedded_server"`

	URL        string `koanf:"url"`
	StoreDir   string `koanf:"store_dir"`
	MaxMemory  int64  `koanf:"max_memory"`
	MaxStore   int64  `koanf:"max_store"`
	StreamName string `koanf:"stream_name"`

	// StreamRetention is the max age of messages in the stream.
	StreamRetention time.Duration `koanf:"stream_retention"`

	// DedupWindow is the JetStream duplicate window for Nats-Msg-Id.
	DedupWindow time.Duration `koanf:"dedup_window"`

	SubscribersCount int           `koanf:"subscribers_count"`
	DurablePrefix    string        `koanf:"durable_prefix"`
	QueueGroupPrefix string        `koanf:"queue_group_prefix"`
	AckWait          time.Duration `koanf:"ack_wait"`

	// KVBucket names the JetStream key-value bucket of the kv job store.
	KVBucket string `koanf:"kv_bucket"`
}

// QueueConfig holds job queue settings.
type QueueConfig struct {
	// JobStore is badger or kv.
	JobStore string `koanf:"job_store"`

	Attempts int           `koanf:"attempts"`
	Backoff  time.Duration `koanf:"backoff"`

	// LockDuration bounds one processing attempt.
	LockDuration time.Duration `koanf:"lock_duration"`

	PrepareConcurrency int `koanf:"prepare_concurrency"`
	FetchConcurrency   int `koanf:"fetch_concurrency"`

	RemoveOnComplete bool `koanf:"remove_on_complete"`
	RemoveOnFail     bool `koanf:"remove_on_fail"`

	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// ProviderConfig holds analytics provider client settings.
type ProviderConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitCalls calls are allowed per RateLimitWindow across all workers
	// of this process.
	RateLimitCalls  int           `koanf:"rate_limit_calls"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// MaxRateLimitRetries bounds retries of HTTP 429 responses.
	MaxRateLimitRetries int `koanf:"max_rate_limit_retries"`

	BreakerEnabled bool          `koanf:"breaker_enabled"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// ReportsConfig holds decomposition and status settings.
type ReportsConfig struct {
	BatchSize        int `koanf:"batch_size"`
	DedupConcurrency int `koanf:"dedup_concurrency"`

	// StatusResync is how often a status stream re-reads job state in case
	// an event was missed.
	StatusResync time.Duration `koanf:"status_resync"`
}

// SecurityConfig holds HTTP hardening settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + itoa(s.Port)
}

// IsProduction reports whether production checks apply.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}
