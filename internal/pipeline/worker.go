// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/customreports/internal/cache"
	"github.com/tomtom215/customreports/internal/decompose"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/provider"
	"github.com/tomtom215/customreports/internal/queue"
	"github.com/tomtom215/customreports/internal/store"
	"github.com/tomtom215/customreports/internal/strategy"
)

// ProcessorRegistry is where the worker's processors are installed.
type ProcessorRegistry interface {
	Process(queue string, processor queue.Processor, concurrency int) error
}

// Worker runs the jobs of a report flow.
type Worker struct {
	provider  provider.Provider
	store     store.MetricsStore
	assembler *Assembler
	cache     *cache.ReportCache
	decompose decompose.Options
}

// NewWorker creates a Worker.
func NewWorker(p provider.Provider, ms store.MetricsStore, assembler *Assembler, rc *cache.ReportCache, opts decompose.Options) *Worker {
	return &Worker{provider: p, store: ms, assembler: assembler, cache: rc, decompose: opts}
}

// Register installs the fetch and prepare processors.
func (w *Worker) Register(r ProcessorRegistry, prepareConcurrency, fetchConcurrency int) error {
	if err := r.Process(QueueFetch, w.FetchAndProcess, fetchConcurrency); err != nil {
		return fmt.Errorf("register %s: %w", QueueFetch, err)
	}
	if err := r.Process(QueuePrepare, w.Prepare, prepareConcurrency); err != nil {
		return fmt.Errorf("register %s: %w", QueuePrepare, err)
	}
	return nil
}

// fetchResult is the stored result of a fetch job.
type fetchResult struct {
	Strategy   string `json:"strategy"`
	DataPoints int    `json:"dataPoints"`
}

// FetchAndProcess runs one provider query and writes its results to the
// metrics store. Client errors and malformed responses fail the job
// without further attempts.
func (w *Worker) FetchAndProcess(ctx context.Context, job *queue.Job) (any, error) {
	var meta models.ChildJobMetadata
	if err := json.Unmarshal(job.Data, &meta); err != nil {
		return nil, queue.Unrecoverable(fmt.Errorf("decode job data: %w", err))
	}

	resp, err := w.provider.Execute(ctx, meta.Query)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	s := strategy.ForConfig(meta.Config)
	apply, err := s.ToDBUpdates(ctx, meta.DataPoints, meta.Query, resp)
	if err != nil {
		if errors.Is(err, strategy.ErrMissingSummary) || errors.Is(err, strategy.ErrNilResponse) {
			return nil, queue.Unrecoverable(err)
		}
		return nil, err
	}
	// A failed breakdown merge may still have written some documents.
	err = apply(ctx, w.store)
	w.assembler.Invalidate(ctx, meta.DataPoints)
	if err != nil {
		return nil, fmt.Errorf("apply %s updates: %w", s.Kind(), err)
	}

	logging.Ctx(ctx).Debug().
		Str("job_id", job.ID).
		Str("report_id", meta.ReportID).
		Str("strategy", s.Kind().String()).
		Int("data_points", len(meta.DataPoints)).
		Msg("Query results stored")
	return fetchResult{Strategy: s.Kind().String(), DataPoints: len(meta.DataPoints)}, nil
}

func classifyProviderError(err error) error {
	var perr *provider.Error
	if errors.As(err, &perr) && !perr.Temporary() {
		return queue.Unrecoverable(err)
	}
	return err
}

// Prepare assembles the whole report once every fetch job of its flow has
// completed. The report is cached and becomes the job result.
func (w *Worker) Prepare(ctx context.Context, job *queue.Job) (any, error) {
	var data models.PrepareJobData
	if err := json.Unmarshal(job.Data, &data); err != nil {
		return nil, queue.Unrecoverable(fmt.Errorf("decode job data: %w", err))
	}

	groups, err := decompose.Decompose(data.Config, w.decompose)
	if err != nil {
		return nil, queue.Unrecoverable(err)
	}
	report, err := w.assembler.Assemble(ctx, data.ReportID, data.Config, decompose.DataPoints(groups))
	if err != nil {
		return nil, err
	}

	if err := w.cache.SetReport(ctx, data.ReportID, report); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("report_id", data.ReportID).Msg("Failed to cache report")
	}
	return report, nil
}
