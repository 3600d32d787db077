// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/customreports/internal/models"
)

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line\nbreak", `line\x0abreak`},
		{"tab\there", `tab\x09here`},
		{"del\x7f", `del\x7f`},
		{"ünïcode", "ünïcode"},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"metrics":["visits"]}`, false},
		{"trailing whitespace", "{\"metrics\":[\"visits\"]}\n", false},
		{"empty", ``, true},
		{"unknown field", `{"metric":["visits"]}`, true},
		{"trailing document", `{"metrics":["a"]} {"metrics":["b"]}`, true},
		{"too large", `{"urls":["` + strings.Repeat("a", maxBodyBytes) + `"]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var cfg models.ReportConfig
			err := decodeJSON(httptest.NewRecorder(), req, &cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("decodeJSON err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRespondSuccess(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	respondSuccess(rec, http.StatusCreated, &models.CreateReportResponse{ID: "abc"}, time.Now())

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, _ := body["data"].(map[string]interface{})
	if body["status"] != "success" || data["_id"] != "abc" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["error"]; ok {
		t.Error("success body carries an error")
	}
}

func TestRespondError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	respondError(rec, req, http.StatusNotFound, ErrCodeNotFound, "Report not found", nil)

	var body models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusNotFound || body.Status != "error" || body.Error.Code != ErrCodeNotFound {
		t.Errorf("status = %d body = %+v", rec.Code, body)
	}
}
