// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package config loads the service configuration with koanf v2.
//
// Sources are layered, later ones winning:
//
//  1. built-in defaults (defaultConfig)
//  2. an optional YAML file: $CONFIG_PATH, ./config.yaml or
//     /etc/customreports/config.yaml
//  3. environment variables listed in envMappings
//
// Only mapped environment variables are read so unrelated variables never
// leak into the configuration. Example:
//
//	PROVIDER_BASE_URL=https://analytics.example.com/api
//	STORE_BACKEND=mongo MONGO_URI=mongodb://mongo:27017
//	CACHE_BACKEND=redis REDIS_ADDRESS=redis:6379
//	QUEUE_FETCH_CONCURRENCY=64
//
// YAML keys follow the koanf tags:
//
//	provider:
//	  base_url: https://analytics.example.com/api
//	  rate_limit_calls: 20
//	  rate_limit_window: 200ms
//	queue:
//	  attempts: 3
//	  lock_duration: 5m
//
// LoadWithKoanf validates the result; the first invalid setting is returned
// as a *ConfigError naming the environment variable.
package config
