// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package logging

import (
	"context"
	"testing"
)

func TestContextIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" || ReportIDFromContext(ctx) != "" || JobIDFromContext(ctx) != "" {
		t.Fatal("empty context should carry no ids")
	}

	ctx = ContextWithRequestID(ctx, "req")
	ctx = ContextWithReportID(ctx, "rep")
	ctx = ContextWithJobID(ctx, "job")

	if got := RequestIDFromContext(ctx); got != "req" {
		t.Errorf("request id = %q", got)
	}
	if got := ReportIDFromContext(ctx); got != "rep" {
		t.Errorf("report id = %q", got)
	}
	if got := JobIDFromContext(ctx); got != "job" {
		t.Errorf("job id = %q", got)
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	t.Parallel()

	if GenerateRequestID() == GenerateRequestID() {
		t.Error("request ids should be unique")
	}
}

func TestCtx_AttachesIDs(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithReportID(ContextWithRequestID(context.Background(), "req-1"), "rep-1")
	Ctx(ctx).Info().Msg("hello")

	entry := decodeLine(t, buf)
	if entry["request_id"] != "req-1" || entry["report_id"] != "rep-1" {
		t.Errorf("ids missing from %v", entry)
	}
	if _, ok := entry["job_id"]; ok {
		t.Error("absent job id should not be written")
	}
}

func TestWithComponent(t *testing.T) {
	buf := captureGlobal(t)

	l := WithComponent("pipeline")
	l.Info().Msg("x")

	if entry := decodeLine(t, buf); entry["component"] != "pipeline" {
		t.Errorf("component = %v", entry["component"])
	}
}
