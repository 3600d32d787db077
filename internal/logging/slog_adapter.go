// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler is a slog.Handler writing to zerolog. The supervisor
// (sutureslog) and the message router (watermill.NewSlogLogger) only accept
// slog, so both are routed through it.
//
// Grouped attributes are flattened to dotted keys: job.report.id.
type SlogHandler struct {
	// logger is nil for handlers that follow the global logger.
	logger *zerolog.Logger
	bound  []boundAttr
	prefix string
}

// boundAttr is an attribute added by WithAttrs together with the group
// prefix in effect at that time.
type boundAttr struct {
	prefix string
	attr   slog.Attr
}

// NewSlogHandler follows the global logger, including later Init calls.
func NewSlogHandler() *SlogHandler {
	return &SlogHandler{}
}

// NewSlogHandlerWithLogger writes to logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSlogHandlerWithLogger(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: &logger}
}

func (h *SlogHandler) target() *zerolog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return current.Load()
}

// Enabled reports whether records at level would be written.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	zl := zerologLevel(level)
	return zl >= h.target().GetLevel() && zl >= zerolog.GlobalLevel()
}

// Handle writes record as one zerolog entry.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.target().WithLevel(zerologLevel(record.Level))
	if event == nil {
		return nil
	}
	for _, b := range h.bound {
		writeAttr(event, b.prefix, b.attr)
	}
	record.Attrs(func(a slog.Attr) bool {
		writeAttr(event, h.prefix, a)
		return true
	})
	event.Msg(record.Message)
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.bound = make([]boundAttr, len(h.bound), len(h.bound)+len(attrs))
	copy(next.bound, h.bound)
	for _, a := range attrs {
		next.bound = append(next.bound, boundAttr{prefix: h.prefix, attr: a})
	}
	return &next
}

// WithGroup returns a handler that nests later attributes under name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func writeAttr(event *zerolog.Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + a.Key

	switch a.Value.Kind() {
	case slog.KindString:
		event.Str(key, a.Value.String())
	case slog.KindInt64:
		event.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		event.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		event.Float64(key, a.Value.Float64())
	case slog.KindBool:
		event.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		event.Dur(key, a.Value.Duration())
	case slog.KindTime:
		event.Time(key, a.Value.Time())
	case slog.KindGroup:
		// An inline group (empty key) adds its members at the current level.
		inner := prefix
		if a.Key != "" {
			inner = key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(event, inner, ga)
		}
	default:
		if err, ok := a.Value.Any().(error); ok {
			event.AnErr(key, err)
			return
		}
		event.Interface(key, a.Value.Any())
	}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelDebug:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// NewSlogLogger returns an slog.Logger on the global zerolog logger.
//
//	router, err := message.NewRouter(cfg, watermill.NewSlogLogger(logging.NewSlogLogger()))
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler())
}

// NewComponentSlogLogger is NewSlogLogger with a component field.
func NewComponentSlogLogger(component string) *slog.Logger {
	return slog.New(NewSlogHandlerWithLogger(WithComponent(component)))
}
