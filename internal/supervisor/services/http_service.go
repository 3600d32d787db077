// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/customreports/internal/logging"
)

// DefaultShutdownTimeout is the grace period open requests get on stop.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServer is the lifecycle subset of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// forceCloser is implemented by *http.Server.
type forceCloser interface {
	Close() error
}

// HTTPServerService runs the API server under supervision.
//
// Status streams stay open until their report finishes, so a graceful
// shutdown can outlive the grace period. When it does, the remaining
// connections are closed outright if the server supports it.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server. A non-positive timeout means
// DefaultShutdownTimeout.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. A listener failure is returned so the
// supervisor restarts the server; http.ErrServerClosed is not a failure.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		err := h.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	if srv, ok := h.server.(*http.Server); ok {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
	}

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if err := h.stop(); err != nil {
		return err
	}
	<-serveErr
	return ctx.Err()
}

func (h *HTTPServerService) stop() error {
	graceCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	err := h.server.Shutdown(graceCtx)
	if err == nil {
		return nil
	}
	fc, ok := h.server.(forceCloser)
	if !errors.Is(err, context.DeadlineExceeded) || !ok {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logging.Warn().Dur("grace", h.shutdownTimeout).Msg("Open requests outlived shutdown grace, closing connections")
	if cerr := fc.Close(); cerr != nil {
		return fmt.Errorf("http server force close: %w", cerr)
	}
	return nil
}

// String implements fmt.Stringer for suture's logs.
func (h *HTTPServerService) String() string {
	return "http-server"
}
