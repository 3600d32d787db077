// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestJobLogger(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	var buf bytes.Buffer
	jl := NewJobLoggerWithLogger(NewTestLogger(&buf), "fetch-and-process")
	ctx := ContextWithReportID(context.Background(), "rep-9")

	tests := []struct {
		name    string
		log     func()
		level   string
		message string
	}{
		{"completed", func() { jl.LogCompleted(ctx, "j1", time.Second) }, "info", "Job completed"},
		{"failed", func() { jl.LogFailed(ctx, "j1", 3, errors.New("boom")) }, "error", "Job failed"},
		{"retry", func() { jl.LogRetry(ctx, "j1", 1, errors.New("boom")) }, "warn", "Job attempt failed, retrying"},
		{"coalesced", func() { jl.LogCoalesced(ctx, "j1", "active") }, "debug", "Job already exists, reusing"},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.log()
		entry := decodeLine(t, &buf)
		if entry["level"] != tt.level || entry["message"] != tt.message {
			t.Errorf("%s: entry = %v", tt.name, entry)
		}
		if entry["queue"] != "fetch-and-process" || entry["job_id"] != "j1" || entry["report_id"] != "rep-9" {
			t.Errorf("%s: missing fields in %v", tt.name, entry)
		}
	}
}
