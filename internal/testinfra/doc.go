// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package testinfra provides test infrastructure.
//
// MockProviderServer is an in-process fake of the analytics provider and is
// available to every test. StartMongo and StartRedis run real servers with
// testcontainers-go and are compiled only with the integration build tag:
//
//	go test -tags integration ./internal/store/... ./internal/cache/...
//
// Container tests are skipped when Docker is unavailable or with -short.
package testinfra
