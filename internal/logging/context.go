// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	reportIDKey  contextKey = "report_id"
	jobIDKey     contextKey = "job_id"
)

// GenerateRequestID returns a new UUID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID attaches an HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithReportID attaches the report a call is working on.
func ContextWithReportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, reportIDKey, id)
}

// ReportIDFromContext returns the report id or "".
func ReportIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(reportIDKey).(string)
	return id
}

// ContextWithJobID attaches the queue job a call is running in.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the job id or "".
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

// Ctx returns the global logger with every id present in ctx attached.
//
//	logging.Ctx(ctx).Info().Int("data_points", n).Msg("Dispatching report")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()
	for _, key := range []contextKey{requestIDKey, reportIDKey, jobIDKey} {
		if id, ok := ctx.Value(key).(string); ok && id != "" {
			logCtx = logCtx.Str(string(key), id)
		}
	}
	logger := logCtx.Logger()
	return &logger
}

// WithComponent creates a child logger with a component field.
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
