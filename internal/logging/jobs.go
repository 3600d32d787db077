// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package logging

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// JobLogger writes the lifecycle entries of queue jobs with consistent
// field names.
type JobLogger struct {
	logger zerolog.Logger
}

// NewJobLogger creates a logger for the given queue.
func NewJobLogger(queue string) *JobLogger {
	return &JobLogger{logger: With().Str("component", "queue").Str("queue", queue).Logger()}
}

// NewJobLoggerWithLogger is NewJobLogger on a specific base logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewJobLoggerWithLogger(logger zerolog.Logger, queue string) *JobLogger {
	return &JobLogger{logger: logger.With().Str("component", "queue").Str("queue", queue).Logger()}
}

func (j *JobLogger) with(ctx context.Context, jobID string) zerolog.Logger {
	logCtx := j.logger.With().Str("job_id", jobID)
	if reportID := ReportIDFromContext(ctx); reportID != "" {
		logCtx = logCtx.Str("report_id", reportID)
	}
	return logCtx.Logger()
}

// LogAdded records a new job.
func (j *JobLogger) LogAdded(ctx context.Context, jobID string, children int) {
	l := j.with(ctx, jobID)
	l.Debug().Int("children", children).Msg("Job added")
}

// LogCoalesced records an add that matched an existing job.
func (j *JobLogger) LogCoalesced(ctx context.Context, jobID, state string) {
	l := j.with(ctx, jobID)
	l.Debug().Str("state", state).Msg("Job already exists, reusing")
}

// LogStarted records a processing attempt.
func (j *JobLogger) LogStarted(ctx context.Context, jobID string, attempt int) {
	l := j.with(ctx, jobID)
	l.Debug().Int("attempt", attempt).Msg("Job started")
}

// LogRetry records a failed attempt that will be retried.
func (j *JobLogger) LogRetry(ctx context.Context, jobID string, attempt int, err error) {
	l := j.with(ctx, jobID)
	l.Warn().Err(err).Int("attempt", attempt).Msg("Job attempt failed, retrying")
}

// LogCompleted records a successful job.
func (j *JobLogger) LogCompleted(ctx context.Context, jobID string, duration time.Duration) {
	l := j.with(ctx, jobID)
	l.Info().Dur("duration", duration).Msg("Job completed")
}

// LogFailed records a job that exhausted its attempts.
func (j *JobLogger) LogFailed(ctx context.Context, jobID string, attempts int, err error) {
	l := j.with(ctx, jobID)
	l.Error().Err(err).Int("attempts", attempts).Msg("Job failed")
}
