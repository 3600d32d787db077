// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/metrics"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/pipeline"
	"github.com/tomtom215/customreports/internal/validation"
	ws "github.com/tomtom215/customreports/internal/websocket"
)

// CreateReport registers a report configuration.
//
// Returns 201 with the new id, or 200 when an equivalent configuration was
// registered before.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var cfg models.ReportConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "Invalid request body: "+err.Error(), nil)
		return
	}

	entry, created, err := h.reports.Create(r.Context(), cfg)
	if err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			apiErr := verr.ToAPIError()
			respondAPIError(w, http.StatusBadRequest, &models.APIError{
				Code:    apiErr.Code,
				Message: apiErr.Message,
				Details: apiErr.Details,
			})
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to register report", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondSuccess(w, status, &models.CreateReportResponse{ID: entry.ID}, started)
}

// GetReport returns the report when it is ready and starts preparing it
// otherwise.
//
// Returns 200 with {status: complete, data}, 202 with {status: pending,
// message}, 404 for unknown ids and 500 with {status: error, message}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.ContextWithReportID(r.Context(), id)

	result, err := h.reports.FetchOrPrepareReport(ctx, id)
	switch {
	case errors.Is(err, pipeline.ErrReportNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Report not found", nil)
		return
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to prepare report")
		respondJSON(w, http.StatusInternalServerError, &models.FetchReportResponse{
			Status:  models.ReportStatusError,
			Message: "Failed to prepare report",
		})
		return
	}

	if result.Status == models.ReportStatusComplete {
		respondJSON(w, http.StatusOK, &models.FetchReportResponse{
			Status: models.ReportStatusComplete,
			Data:   result.Report,
		})
		return
	}
	respondJSON(w, http.StatusAccepted, &models.FetchReportResponse{
		Status:  result.Status,
		Message: result.Message,
	})
}

// ReportStatus streams the progress of a report until it reaches a terminal
// status. WebSocket upgrade requests get one JSON message per status;
// everything else gets Server-Sent Events.
func (h *Handler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.ContextWithReportID(r.Context(), id)
	log := logging.Ctx(ctx)

	upgrade := websocket.IsWebSocketUpgrade(r)
	if !upgrade {
		if _, ok := w.(http.Flusher); !ok {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Streaming unsupported", nil)
			return
		}
	}

	updates, err := h.reports.Status(ctx, id)
	switch {
	case errors.Is(err, pipeline.ErrReportNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Report not found", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, ErrCodeReport, "Failed to prepare report", err)
		return
	}

	if upgrade {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			log.Debug().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		metrics.StatusStreams.WithLabelValues("websocket").Inc()
		defer metrics.StatusStreams.WithLabelValues("websocket").Dec()

		if err := ws.NewClient(conn).Serve(ctx, updates); err != nil {
			log.Debug().Err(err).Msg("WebSocket status stream ended")
		}
		return
	}

	metrics.StatusStreams.WithLabelValues("sse").Inc()
	defer metrics.StatusStreams.WithLabelValues("sse").Dec()
	h.streamSSE(w, r, updates)
}

// streamSSE writes each status as an "event: status" frame. The handler
// returns after the last status or when the client goes away; the status
// channel closes on the same context.
func (h *Handler) streamSSE(w http.ResponseWriter, r *http.Request, updates <-chan models.ReportJobStatus) {
	flusher := w.(http.Flusher)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSSE(w, "status", status); err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("SSE write failed")
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
