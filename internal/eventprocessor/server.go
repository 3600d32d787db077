// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const (
	embeddedReadyTimeout = 30 * time.Second
	// Child job payloads carry url batches.
	embeddedMaxPayload = 8 * 1024 * 1024
)

// embeddedServer is a JetStream-enabled NATS server running inside the
// process, used when no external cluster is configured.
type embeddedServer struct {
	ns  *server.Server
	url string
}

func startEmbeddedServer(cfg ServerConfig) (*embeddedServer, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName:         SubjectRoot,
		Host:               cfg.Host,
		Port:               cfg.Port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.JetStreamMaxMem,
		JetStreamMaxStore:  cfg.JetStreamMaxStore,
		MaxPayload:         embeddedMaxPayload,
		NoSigs:             true,
	})
	if err != nil {
		return nil, fmt.Errorf("configure embedded NATS on %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(embeddedReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS not accepting connections after %s", embeddedReadyTimeout)
	}
	return &embeddedServer{ns: ns, url: ns.ClientURL()}, nil
}

// shutdown stops the server and waits for it to drain, giving up when ctx
// ends first.
func (s *embeddedServer) shutdown(ctx context.Context) error {
	s.ns.Shutdown()

	done := make(chan struct{})
	go func() {
		s.ns.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("embedded NATS shutdown: %w", ctx.Err())
	}
}

func (s *embeddedServer) check(context.Context) error {
	if !s.ns.Running() {
		return errors.New("embedded NATS server stopped")
	}
	if !s.ns.JetStreamEnabled() {
		return errors.New("embedded NATS server has JetStream disabled")
	}
	return nil
}
