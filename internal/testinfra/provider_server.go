// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// ProviderRequest is a captured analytics provider call.
type ProviderRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// MockProviderServer is a fake analytics provider that records every call.
// By default it answers with ResponseStatus and ResponseBody; ResponseFunc
// overrides both.
type MockProviderServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []ProviderRequest

	ResponseStatus int
	ResponseBody   []byte
	ResponseFunc   func(w http.ResponseWriter, r *http.Request, body []byte)
}

// NewMockProviderServer starts the server and closes it on test cleanup.
func NewMockProviderServer(t *testing.T) *MockProviderServer {
	t.Helper()

	m := &MockProviderServer{ResponseStatus: http.StatusOK}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		m.mu.Lock()
		m.captures = append(m.captures, ProviderRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		fn, status, resp := m.ResponseFunc, m.ResponseStatus, m.ResponseBody
		m.mu.Unlock()

		if fn != nil {
			fn(w, r, body)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if resp != nil {
			w.Write(resp) //nolint:errcheck
		}
	}))
	t.Cleanup(m.Server.Close)
	return m
}

// URL returns the server base URL.
func (m *MockProviderServer) URL() string {
	return m.Server.URL
}

// Requests returns a copy of the captured calls.
func (m *MockProviderServer) Requests() []ProviderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProviderRequest, len(m.captures))
	copy(out, m.captures)
	return out
}

// RespondJSON replies with v encoded as JSON.
func RespondJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck
}
