// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/customreports/internal/logging"
)

// DefaultGCInterval is how often value log GC runs.
const DefaultGCInterval = 10 * time.Minute

// gcDiscardRatio rewrites a value log file once half of it is garbage.
const gcDiscardRatio = 0.5

// ValueLogGC is the GC entry point of *badger.DB.
type ValueLogGC interface {
	RunValueLogGC(discardRatio float64) error
}

// BadgerGCService periodically reclaims value log space of one badger
// database. Report documents and job records are rewritten often, so
// without it the value log only grows.
type BadgerGCService struct {
	name     string
	db       ValueLogGC
	interval time.Duration
}

// NewBadgerGCService runs GC on db every interval. name tells databases
// apart in logs.
func NewBadgerGCService(name string, db ValueLogGC, interval time.Duration) *BadgerGCService {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &BadgerGCService{name: name, db: db, interval: interval}
}

// Serve implements suture.Service.
func (s *BadgerGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rewrites, err := s.collect()
			if err != nil {
				return err
			}
			if rewrites > 0 {
				logging.Debug().Str("db", s.name).Int("rewrites", rewrites).Msg("Badger value log GC")
			}
		}
	}
}

// collect runs GC until nothing is left to rewrite.
func (s *BadgerGCService) collect() (int, error) {
	rewrites := 0
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			rewrites++
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
			return rewrites, nil
		case errors.Is(err, badger.ErrGCInMemoryMode):
			return rewrites, fmt.Errorf("badger %s: %w: %w", s.name, err, suture.ErrDoNotRestart)
		default:
			return rewrites, fmt.Errorf("badger %s value log GC: %w", s.name, err)
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *BadgerGCService) String() string {
	return "badger-gc-" + s.name
}
