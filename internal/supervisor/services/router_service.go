// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/customreports/internal/logging"
)

// MessageRouter is the lifecycle of eventprocessor.Router.
type MessageRouter interface {
	Run(ctx context.Context) error
	Running() chan struct{}
}

// RouterService runs the watermill router carrying the queue workers and
// the queue event relay.
//
// A watermill router cannot run twice, so a router that stops on its own
// is not restarted: the service ends with suture.ErrDoNotRestart and the
// readiness check reports the router as down.
type RouterService struct {
	router MessageRouter
}

// NewRouterService wraps router.
func NewRouterService(router MessageRouter) *RouterService {
	return &RouterService{router: router}
}

// Ready is closed once every handler has subscribed.
func (s *RouterService) Ready() <-chan struct{} {
	return s.router.Running()
}

// Serve implements suture.Service.
func (s *RouterService) Serve(ctx context.Context) error {
	err := s.router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("router stopped")
	}
	logging.Error().Err(err).Msg("Queue router stopped; workers are down until restart")
	return fmt.Errorf("queue router: %w: %w", err, suture.ErrDoNotRestart)
}

// String implements fmt.Stringer for suture's logs.
func (s *RouterService) String() string {
	return "queue-router"
}
