// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/customreports/internal/eventprocessor"
	"github.com/tomtom215/customreports/internal/middleware"
)

// LivenessStatus is returned by the liveness probe.
type LivenessStatus struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// HealthLive reports that the process is serving requests. It never checks
// dependencies so a slow store cannot get the process restarted.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, &LivenessStatus{
		Status:        "alive",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}, time.Now())
}

// HealthReady checks every registered component. Returns 503 when any
// of them is unhealthy.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	if h.health == nil {
		respondSuccess(w, http.StatusOK, &eventprocessor.OverallHealth{
			Healthy:   true,
			Status:    eventprocessor.HealthStatusHealthy,
			Timestamp: time.Now(),
		}, started)
		return
	}

	result := h.health.CheckAll(r.Context())
	if !result.Healthy {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "error",
			"data":   result,
			"error": map[string]string{
				"code":    ErrCodeServiceUnavailable,
				"message": "One or more components are unhealthy",
			},
		})
		return
	}
	respondSuccess(w, http.StatusOK, result, started)
}

// PerformanceStats returns per-endpoint latency percentiles of recent
// report requests.
func (h *Handler) PerformanceStats(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, struct {
		Endpoints []middleware.EndpointStats `json:"endpoints"`
	}{Endpoints: h.perfMon.GetStats()}, time.Now())
}
