// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package eventprocessor

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// NewNATSSubscriber creates a JetStream subscriber bound to the report
// stream. Subscribers sharing a QueueGroup split deliveries between them.
// An empty QueueGroup gives every instance its own copy of each message.
func NewNATSSubscriber(cfg *SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	role := cfg.Role
	if role == "" {
		role = "subscriber"
	}

	js := wmNats.JetStreamConfig{
		AutoProvision:    cfg.StreamName == "",
		DurablePrefix:    cfg.DurableName,
		SubscribeOptions: subscribeOptions(cfg),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      connOptions(role, cfg.MaxReconnects, cfg.ReconnectWait, logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        js,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("%s subscriber: %w", role, err)
	}
	return sub, nil
}

// subscribeOptions starts consumers at new messages. Every topic lives in
// one stream, so a configured StreamName is bound instead of provisioning
// a stream per topic.
func subscribeOptions(cfg *SubscriberConfig) []natsgo.SubOpt {
	opts := []natsgo.SubOpt{
		natsgo.DeliverNew(),
		natsgo.AckWait(cfg.AckWaitTimeout),
		natsgo.MaxAckPending(cfg.MaxAckPending),
	}
	if cfg.MaxDeliver > 0 {
		opts = append(opts, natsgo.MaxDeliver(cfg.MaxDeliver))
	}
	if cfg.StreamName != "" {
		opts = append(opts, natsgo.BindStream(cfg.StreamName))
	}
	return opts
}
