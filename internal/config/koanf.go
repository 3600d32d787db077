// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/customreports/config.yaml",
	"/etc/customreports/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                 3000,
			Host:                 "0.0.0.0",
			Timeout:              30 * time.Second,
			ShutdownTimeout:      15 * time.Second,
			Environment:          "development",
			SlowRequestThreshold: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend:          BackendBadger,
			BadgerPath:       "/data/customreports",
			MongoDatabase:    "customreports",
			MongoMaxPoolSize: 50,
		},
		Cache: CacheConfig{
			Backend:      BackendMemory,
			TTL:          24 * time.Hour,
			MaxEntries:   10000,
			RedisAddress: "localhost:6379",
		},
		NATS: NATSConfig{
			Enabled:          true,
			EmbeddedServer:   true,
			URL:              "nats://127.0.0.1:4222",
			StoreDir:         "/data/nats/jetstream",
			MaxMemory:        256 << 20, // 256MB
			MaxStore:         2 << 30,   // 2GB
			StreamName:       "CUSTOM_REPORTS",
			StreamRetention:  24 * time.Hour,
			DedupWindow:      2 * time.Minute,
			SubscribersCount: 1,
			DurablePrefix:    "customreports",
			QueueGroupPrefix: "customreports",
			AckWait:          10 * time.Minute,
			KVBucket:         "customreports_jobs",
		},
		Queue: QueueConfig{
			JobStore:           BackendBadger,
			Attempts:           3,
			Backoff:            2 * time.Second,
			LockDuration:       5 * time.Minute,
			PrepareConcurrency: 4,
			FetchConcurrency:   32,
			RemoveOnComplete:   true,
			RemoveOnFail:       true,
			CloseTimeout:       30 * time.Second,
		},
		Provider: ProviderConfig{
			Timeout:             60 * time.Second,
			RateLimitCalls:      20,
			RateLimitWindow:     200 * time.Millisecond,
			MaxRateLimitRetries: 5,
			BreakerEnabled:      true,
			BreakerTimeout:      time.Minute,
		},
		Reports: ReportsConfig{
			BatchSize:        50,
			DedupConcurrency: 16,
			StatusResync:     5 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
	}
}

// LoadWithKoanf layers defaults, the optional YAML file and mapped
// environment variables, then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as env strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to config paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_port":              "server.port",
	"http_host":              "server.host",
	"http_timeout":           "server.timeout",
	"shutdown_timeout":       "server.shutdown_timeout",
	"environment":            "server.environment",
	"slow_request_threshold": "server.slow_request_threshold",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"store_backend":       "store.backend",
	"badger_path":         "store.badger_path",
	"badger_in_memory":    "store.badger_in_memory",
	"mongo_uri":           "store.mongo_uri",
	"mongo_database":      "store.mongo_database",
	"mongo_max_pool_size": "store.mongo_max_pool_size",

	"cache_backend":     "cache.backend",
	"cache_ttl":         "cache.ttl",
	"cache_max_entries": "cache.max_entries",
	"redis_address":     "cache.redis_address",
	"redis_password":    "cache.redis_password",
	"redis_db":          "cache.redis_db",

	"nats_enabled":            "nats.enabled",
	"nats_embedded":           "nats.embedded_server",
	"nats_url":                "nats.url",
	"nats_store_dir":          "nats.store_dir",
	"nats_max_memory":         "nats.max_memory",
	"nats_max_store":          "nats.max_store",
	"nats_stream_name":        "nats.stream_name",
	"nats_stream_retention":   "nats.stream_retention",
	"nats_dedup_window":       "nats.dedup_window",
	"nats_subscribers":        "nats.subscribers_count",
	"nats_durable_prefix":     "nats.durable_prefix",
	"nats_queue_group_prefix": "nats.queue_group_prefix",
	"nats_ack_wait":           "nats.ack_wait",
	"nats_kv_bucket":          "nats.kv_bucket",

	"queue_job_store":           "queue.job_store",
	"queue_attempts":            "queue.attempts",
	"queue_backoff":             "queue.backoff",
	"queue_lock_duration":       "queue.lock_duration",
	"queue_prepare_concurrency": "queue.prepare_concurrency",
	"queue_fetch_concurrency":   "queue.fetch_concurrency",
	"queue_remove_on_complete":  "queue.remove_on_complete",
	"queue_remove_on_fail":      "queue.remove_on_fail",
	"queue_close_timeout":       "queue.close_timeout",

	"provider_base_url":               "provider.base_url",
	"provider_api_key":                "provider.api_key",
	"provider_timeout":                "provider.timeout",
	"provider_rate_limit_calls":       "provider.rate_limit_calls",
	"provider_rate_limit_window":      "provider.rate_limit_window",
	"provider_max_rate_limit_retries": "provider.max_rate_limit_retries",
	"provider_breaker_enabled":        "provider.breaker_enabled",
	"provider_breaker_timeout":        "provider.breaker_timeout",

	"report_batch_size":        "reports.batch_size",
	"report_dedup_concurrency": "reports.dedup_concurrency",
	"report_status_resync":     "reports.status_resync",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
}

// envTransformFunc maps PROVIDER_BASE_URL to provider.base_url and so on.
// Returning "" makes koanf skip the variable.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
