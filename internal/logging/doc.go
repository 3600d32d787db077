// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package logging is the zerolog-based logging of the service.
//
// A single global logger is configured once from main:
//
//	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
//
// Package-level helpers start events on it:
//
//	logging.Info().Str("report_id", id).Msg("Report cached")
//	logging.Error().Err(err).Msg("Provider call failed")
//
// Ctx attaches the request, report and job ids carried by a context, so
// log lines of one report can be followed from the HTTP handler through the
// queue workers:
//
//	ctx = logging.ContextWithReportID(ctx, reportID)
//	logging.Ctx(ctx).Info().Msg("Dispatching report")
//
// Libraries that only accept log/slog (suture, watermill) receive
// NewSlogLogger, which forwards to the same zerolog logger.
//
// Always terminate chains with Msg or Send; an unterminated event is never
// written.
package logging
