// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package config

import (
	"errors"
	"testing"
)

func validTestConfig() *Config {
	cfg := defaultConfig()
	cfg.Provider.BaseURL = "https://analytics.example.com/api"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	if err := validTestConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"store backend", func(c *Config) { c.Store.Backend = "postgres" }, "STORE_BACKEND"},
		{"mongo uri missing", func(c *Config) { c.Store.Backend = BackendMongo }, "MONGO_URI"},
		{"mongo uri scheme", func(c *Config) {
			c.Store.Backend = BackendMongo
			c.Store.MongoURI = "http://mongo:27017"
		}, "MONGO_URI"},
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "CACHE_BACKEND"},
		{"redis address", func(c *Config) {
			c.Cache.Backend = BackendRedis
			c.Cache.RedisAddress = ""
		}, "REDIS_ADDRESS"},
		{"cache ttl", func(c *Config) { c.Cache.TTL = 0 }, "CACHE_TTL"},
		{"kv without nats", func(c *Config) {
			c.NATS.Enabled = false
			c.Queue.JobStore = BackendKV
		}, "QUEUE_JOB_STORE"},
		{"external nats url", func(c *Config) {
			c.NATS.EmbeddedServer = false
			c.NATS.URL = "http://nats:4222"
		}, "NATS_URL"},
		{"attempts", func(c *Config) { c.Queue.Attempts = 0 }, "QUEUE_ATTEMPTS"},
		{"provider url", func(c *Config) { c.Provider.BaseURL = "ftp://x" }, "PROVIDER_BASE_URL"},
		{"provider key in production", func(c *Config) { c.Server.Environment = "production" }, "PROVIDER_API_KEY"},
		{"rate limit", func(c *Config) { c.Provider.RateLimitCalls = 0 }, "PROVIDER_RATE_LIMIT_CALLS"},
		{"batch size", func(c *Config) { c.Reports.BatchSize = 0 }, "REPORT_BATCH_SIZE"},
		{"api rate limit", func(c *Config) { c.Security.RateLimitReqs = 0 }, "RATE_LIMIT_REQUESTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q (%v)", cerr.Field, tt.wantField, cerr)
			}
		})
	}
}

func TestValidate_RateLimitDisabledSkipsCheck(t *testing.T) {
	t.Parallel()

	cfg := validTestConfig()
	cfg.Security.RateLimitDisabled = true
	cfg.Security.RateLimitReqs = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	t.Parallel()

	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := s.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestEndpointValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		check   func(string) error
		raw     string
		wantErr bool
	}{
		{"provider https", validateHTTPURL, "https://analytics.example.com/api/v1", false},
		{"provider query", validateHTTPURL, "https://analytics.example.com?key=1", true},
		{"provider scheme", validateHTTPURL, "ftp://analytics.example.com", true},
		{"provider no host", validateHTTPURL, "https:///api", true},
		{"nats", validateNATSURL, "nats://localhost:4222", false},
		{"nats websocket", validateNATSURL, "wss://nats.example.com", false},
		{"nats http", validateNATSURL, "http://localhost:4222", true},
		{"mongo srv", validateMongoURI, "mongodb+srv://cluster.example.com/reports", false},
		{"mongo scheme", validateMongoURI, "postgres://localhost/reports", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.check(tt.raw); (err != nil) != tt.wantErr {
				t.Errorf("check(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}
