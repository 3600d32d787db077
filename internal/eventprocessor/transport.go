// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/customreports/internal/config"
	"github.com/tomtom215/customreports/internal/logging"
)

// Transport carries job dispatch messages and job events between
// instances. The in-process variant uses a watermill go channel; the NATS
// variant uses JetStream, optionally served by an embedded server.
type Transport struct {
	Publisher *Publisher

	jobSubscriber func(queue string, concurrency int) (message.Subscriber, error)
	events        message.Subscriber

	js     jetstream.JetStream
	nc     *natsgo.Conn
	server *embeddedServer
	stream *StreamInitializer

	mu      sync.Mutex
	closers []func() error
	closed  bool
}

// NewChannelTransport returns an in-process transport. Messages published
// while nothing subscribes to their topic are dropped.
func NewChannelTransport(logger watermill.LoggerAdapter) *Transport {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)

	t := &Transport{
		Publisher: WrapPublisher(pubSub),
		events:    pubSub,
	}
	t.jobSubscriber = func(string, int) (message.Subscriber, error) { return pubSub, nil }
	t.closers = append(t.closers, t.Publisher.Close)
	return t
}

// NewNATSTransport connects to JetStream, starting an embedded server first
// when cfg.EmbeddedServer is set, and ensures the report stream exists.
func NewNATSTransport(ctx context.Context, cfg *config.NATSConfig, logger watermill.LoggerAdapter) (*Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	t := &Transport{}

	url := cfg.URL
	if cfg.EmbeddedServer {
		srv, err := startEmbeddedServer(ServerConfigFrom(cfg))
		if err != nil {
			return nil, err
		}
		t.server = srv
		url = srv.url
		t.closers = append(t.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.shutdown(shutdownCtx)
		})
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	if err := t.connect(ctx, cfg, url, logger); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transport) connect(ctx context.Context, cfg *config.NATSConfig, url string, logger watermill.LoggerAdapter) error {
	nc, err := natsgo.Connect(url, natsgo.Name("customreports"), natsgo.MaxReconnects(-1))
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	t.nc = nc
	t.closers = append(t.closers, func() error { nc.Close(); return nil })

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	t.js = js

	streamCfg := StreamConfigFrom(cfg)
	streams, err := NewStreamInitializer(js, &streamCfg)
	if err != nil {
		return err
	}
	if _, err := streams.EnsureStream(ctx); err != nil {
		return err
	}
	t.stream = streams

	pub, err := NewNATSPublisher(DefaultPublisherConfig(url), logger)
	if err != nil {
		return err
	}
	pub.SetCircuitBreaker(NewCircuitBreaker(DefaultCircuitBreakerConfig("nats-publisher")))
	t.Publisher = pub
	t.closers = append(t.closers, pub.Close)

	eventsCfg := EventSubscriberConfig(url, cfg)
	events, err := NewNATSSubscriber(&eventsCfg, logger)
	if err != nil {
		return err
	}
	t.events = events
	t.closers = append(t.closers, events.Close)

	t.jobSubscriber = func(queue string, concurrency int) (message.Subscriber, error) {
		subCfg := JobSubscriberConfig(url, cfg, concurrency)
		subCfg.Role = subCfg.Role + "-" + queue
		subCfg.DurableName = subCfg.DurableName + "-" + queue
		subCfg.QueueGroup = subCfg.QueueGroup + "-" + queue
		sub, err := NewNATSSubscriber(&subCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("job subscriber for %s: %w", queue, err)
		}
		t.mu.Lock()
		t.closers = append(t.closers, sub.Close)
		t.mu.Unlock()
		return sub, nil
	}
	return nil
}

// JobSubscriber returns the subscriber feeding queue's workers. concurrency
// sets how many messages NATS delivers in parallel.
func (t *Transport) JobSubscriber(queue string, concurrency int) (message.Subscriber, error) {
	return t.jobSubscriber(queue, concurrency)
}

// EventSubscriber returns the subscriber for EventsTopic.
func (t *Transport) EventSubscriber() message.Subscriber {
	return t.events
}

// JetStream returns the JetStream context, or nil for the in-process
// transport.
func (t *Transport) JetStream() jetstream.JetStream {
	return t.js
}

// RegisterHealth adds the transport's components to hc.
func (t *Transport) RegisterHealth(hc *HealthChecker) {
	hc.RegisterComponent("publisher", t.Publisher)
	if t.stream != nil {
		hc.RegisterComponent("stream", t.stream)
	}
	if t.server != nil {
		hc.RegisterComponent("nats-server", PingCheck(t.server.check))
	}
	if t.nc != nil {
		nc := t.nc
		hc.RegisterComponent("nats", PingCheck(func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats connection %s", nc.Status())
			}
			return nil
		}))
	}
}

// Close releases every connection in reverse order of creation.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
