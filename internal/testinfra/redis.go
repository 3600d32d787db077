// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

//go:build integration

package testinfra

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisImage is the Redis image integration tests run against.
const RedisImage = "redis:7-alpine"

// StartRedis runs a Redis server without persistence for the duration of
// t and returns its host:port.
func StartRedis(t *testing.T, ctx context.Context) string {
	t.Helper()

	const port = "6379/tcp"
	return startService(t, ctx, testcontainers.ContainerRequest{
		Image:        RedisImage,
		ExposedPorts: []string{port},
		Cmd:          []string{"redis-server", "--save", "", "--appendonly", "no"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	})
}
