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
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/customreports/internal/metrics"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// Publisher sends messages through a watermill publisher, optionally behind
// a circuit breaker. Every message carries a Nats-Msg-Id so JetStream drops
// duplicates inside the stream's duplicate window.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[struct{}]
	mu             sync.RWMutex
	closed         bool
}

// WrapPublisher returns a Publisher around an existing watermill publisher.
func WrapPublisher(pub message.Publisher) *Publisher {
	return &Publisher{publisher: pub}
}

// NewNATSPublisher connects a JetStream publisher. The stream must already
// exist; see StreamInitializer.
func NewNATSPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	natsOpts := append(connOptions("publisher", cfg.MaxReconnects, cfg.ReconnectWait, logger),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer))

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return WrapPublisher(pub), nil
}

// SetCircuitBreaker guards subsequent publishes with cb.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[struct{}]) {
	p.mu.Lock()
	p.circuitBreaker = cb
	p.mu.Unlock()
}

// Publish sends msg to topic. A message without a Nats-Msg-Id uses its UUID.
func (p *Publisher) Publish(_ context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	closed, cb := p.closed, p.circuitBreaker
	p.mu.RUnlock()
	if closed {
		return ErrPublisherClosed
	}

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	var err error
	if cb != nil {
		_, err = cb.Execute(func() (struct{}, error) {
			return struct{}{}, p.publisher.Publish(topic, msg)
		})
	} else {
		err = p.publisher.Publish(topic, msg)
	}
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.UUID, topic, err)
	}

	metrics.NATSMessagesPublished.Inc()
	return nil
}

// Close shuts the underlying publisher down. Later calls are no-ops.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// HealthCheck implements HealthCheckable.
func (p *Publisher) HealthCheck(context.Context) ComponentHealth {
	health := newComponentHealth("publisher")

	p.mu.RLock()
	closed, cb := p.closed, p.circuitBreaker
	p.mu.RUnlock()

	switch {
	case closed:
		health.Error = "publisher is closed"
	case cb != nil && cb.State() == gobreaker.StateOpen:
		health.Error = "circuit breaker open"
		health.Details["breaker"] = cb.State().String()
	default:
		health.Healthy = true
		if cb != nil {
			health.Details["breaker"] = cb.State().String()
			health.Degraded = cb.State() == gobreaker.StateHalfOpen
		}
	}
	return health
}
