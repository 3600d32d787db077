// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package eventprocessor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/customreports/internal/metrics"
)

// RouterConfig holds configuration for the message router.
type RouterConfig struct {
	// CloseTimeout bounds how long Close waits for in-flight handlers.
	CloseTimeout time.Duration
	// ThrottlePerSecond caps messages handled per second. Zero disables it.
	ThrottlePerSecond int64
}

// DefaultRouterConfig returns production defaults for the router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{CloseTimeout: 30 * time.Second}
}

// Router wraps a watermill router. Handlers are registered before Run and
// consume without publishing; job handlers own their Ack decisions through
// their return value.
type Router struct {
	router   *message.Router
	mu       sync.Mutex
	handlers map[string]*message.Handler
	running  atomic.Bool
	received atomic.Int64
	logger   watermill.LoggerAdapter
}

// NewRouter returns a router with panic recovery and consume metrics.
func NewRouter(cfg *RouterConfig, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg == nil {
		def := DefaultRouterConfig()
		cfg = &def
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r := &Router{
		router:   wmRouter,
		handlers: make(map[string]*message.Handler),
		logger:   logger,
	}

	wmRouter.AddMiddleware(r.countConsumed, middleware.Recoverer)
	if cfg.ThrottlePerSecond > 0 {
		wmRouter.AddMiddleware(middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second).Middleware)
	}
	return r, nil
}

func (r *Router) countConsumed(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		r.received.Add(1)
		metrics.NATSMessagesConsumed.Inc()
		return h(msg)
	}
}

// AddConsumerHandler registers handler for topic on subscriber. Names must
// be unique.
func (r *Router) AddConsumerHandler(name, topic string, subscriber message.Subscriber, handler message.NoPublishHandlerFunc) *message.Handler {
	h := r.router.AddConsumerHandler(name, topic, subscriber, handler)
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	return h
}

// Run blocks until ctx is canceled or Close is called.
func (r *Router) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)
	return r.router.Run(ctx)
}

// Running is closed once every handler has subscribed.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close stops the router, waiting up to CloseTimeout for handlers.
func (r *Router) Close() error {
	return r.router.Close()
}

// HealthCheck implements HealthCheckable.
func (r *Router) HealthCheck(context.Context) ComponentHealth {
	health := newComponentHealth("router")
	if !r.running.Load() {
		health.Error = "router is not running"
		return health
	}
	r.mu.Lock()
	health.Details["handlers"] = len(r.handlers)
	r.mu.Unlock()
	health.Details["messages_received"] = r.received.Load()
	health.Healthy = true
	return health
}
