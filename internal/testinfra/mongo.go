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

// MongoImage is the MongoDB image integration tests run against.
const MongoImage = "mongo:7.0"

// StartMongo runs a standalone MongoDB server for the duration of t and
// returns its connection URI.
func StartMongo(t *testing.T, ctx context.Context) string {
	t.Helper()

	const port = "27017/tcp"
	addr := startService(t, ctx, testcontainers.ContainerRequest{
		Image:        MongoImage,
		ExposedPorts: []string{port},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(port),
			wait.ForLog("Waiting for connections"),
		).WithStartupTimeout(90 * time.Second),
	})
	return "mongodb://" + addr
}
