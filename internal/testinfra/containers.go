// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

//go:build integration

package testinfra

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// RequireDocker skips t in -short mode or when no container runtime
// answers.
func RequireDocker(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("container test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// startService starts req, waits for its readiness strategy and returns
// host:port of its lowest exposed port. The container is terminated when
// t finishes.
func startService(t *testing.T, ctx context.Context, req testcontainers.ContainerRequest) string {
	t.Helper()
	RequireDocker(t)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate %s: %v", req.Image, err)
		}
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("resolve %s endpoint: %v", req.Image, err)
	}
	return addr
}
