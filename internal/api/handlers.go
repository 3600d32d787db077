// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/customreports/internal/eventprocessor"
	"github.com/tomtom215/customreports/internal/middleware"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/pipeline"
)

// ReportService is the part of the report pipeline the handlers use.
type ReportService interface {
	Create(ctx context.Context, cfg models.ReportConfig) (*models.RegistryEntry, bool, error)
	FetchOrPrepareReport(ctx context.Context, id string) (*pipeline.FetchResult, error)
	Status(ctx context.Context, id string) (<-chan models.ReportJobStatus, error)
}

// Handler serves the HTTP API.
type Handler struct {
	reports   ReportService
	health    *eventprocessor.HealthChecker
	perfMon   *middleware.PerformanceMonitor
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewHandler creates a Handler. health may be nil, in which case readiness
// only reflects that the process is serving.
func NewHandler(reports ReportService, health *eventprocessor.HealthChecker, allowedOrigins []string) *Handler {
	return &Handler{
		reports:   reports,
		health:    health,
		perfMon:   middleware.NewPerformanceMonitor(1000),
		upgrader:  newUpgrader(allowedOrigins),
		startTime: time.Now(),
	}
}

// SetSlowRequestThreshold sets the latency above which requests are
// logged as slow. Zero disables the warning.
func (h *Handler) SetSlowRequestThreshold(d time.Duration) {
	h.perfMon.SetSlowThreshold(d)
}

// newUpgrader accepts same-origin requests, requests without an Origin
// header and any origin in allowed. "*" allows every origin.
func newUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := origins["*"]; ok {
				return true
			}
			if _, ok := origins[origin]; ok {
				return true
			}
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
}
