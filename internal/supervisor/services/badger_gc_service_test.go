// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/thejerf/suture/v4"
)

// scriptedGC returns results in order, then ErrNoRewrite.
type scriptedGC struct {
	results []error
	calls   atomic.Int32
}

func (s *scriptedGC) RunValueLogGC(float64) error {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.results) {
		return s.results[n]
	}
	return badger.ErrNoRewrite
}

func TestBadgerGCService_Collect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		results      []error
		wantRewrites int
		wantErr      error
	}{
		{"nothing to do", nil, 0, nil},
		{"rewrites until exhausted", []error{nil, nil}, 2, nil},
		{"gc already running", []error{badger.ErrRejected}, 0, nil},
		{"in-memory database", []error{badger.ErrGCInMemoryMode}, 0, suture.ErrDoNotRestart},
		{"failure", []error{nil, badger.ErrDBClosed}, 1, badger.ErrDBClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := NewBadgerGCService("data", &scriptedGC{results: tt.results}, time.Minute)
			rewrites, err := svc.collect()
			if rewrites != tt.wantRewrites {
				t.Errorf("rewrites = %d, want %d", rewrites, tt.wantRewrites)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("collect: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("collect = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBadgerGCService_ServeRunsPeriodically(t *testing.T) {
	t.Parallel()

	gc := &scriptedGC{}
	svc := NewBadgerGCService("jobs", gc, 5*time.Millisecond)
	if svc.String() != "badger-gc-jobs" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve = %v", err)
	}
	if gc.calls.Load() < 2 {
		t.Errorf("GC ran %d times, want at least 2", gc.calls.Load())
	}
}

func TestBadgerGCService_DefaultInterval(t *testing.T) {
	t.Parallel()
	if svc := NewBadgerGCService("x", &scriptedGC{}, 0); svc.interval != DefaultGCInterval {
		t.Errorf("interval = %v", svc.interval)
	}
}
