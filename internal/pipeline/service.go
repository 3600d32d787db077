// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/customreports/internal/cache"
	"github.com/tomtom215/customreports/internal/decompose"
	"github.com/tomtom215/customreports/internal/dedup"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/metrics"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/store"
	"github.com/tomtom215/customreports/internal/validation"
)

// ErrReportNotFound is returned for ids that were never registered.
var ErrReportNotFound = errors.New("report not found")

// PendingMessage accompanies pending fetch results.
const PendingMessage = "report is being prepared"

// FetchResult is the outcome of FetchOrPrepareReport.
type FetchResult struct {
	Status models.ReportStatus
	// Report is set when Status is complete.
	Report *models.Report
	// ChildJobIDs are the fetch jobs a pending report waits on.
	ChildJobIDs []string
	Message     string
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Registry     store.Registry
	Cache        *cache.ReportCache
	Dedup        *dedup.Filter
	Orchestrator *Orchestrator
	Assembler    *Assembler
	Status       *StatusAggregator
	Decompose    decompose.Options
}

// Service is the entry point of the report pipeline.
type Service struct {
	registry     store.Registry
	cache        *cache.ReportCache
	dedup        *dedup.Filter
	orchestrator *Orchestrator
	assembler    *Assembler
	status       *StatusAggregator
	decompose    decompose.Options
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		registry:     cfg.Registry,
		cache:        cfg.Cache,
		dedup:        cfg.Dedup,
		orchestrator: cfg.Orchestrator,
		assembler:    cfg.Assembler,
		status:       cfg.Status,
		decompose:    cfg.Decompose,
	}
}

// Create validates cfg and registers it. Configs that normalize to the
// same hash share one entry; created is false for an existing one.
func (s *Service) Create(ctx context.Context, cfg models.ReportConfig) (*models.RegistryEntry, bool, error) {
	if err := validation.ValidateReportConfig(&cfg); err != nil {
		return nil, false, err
	}

	entry, created, err := s.registry.Register(ctx, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("register report: %w", err)
	}

	outcome := "existing"
	if created {
		outcome = "created"
	}
	metrics.ReportsRegistered.WithLabelValues(outcome).Inc()
	logging.Ctx(ctx).Info().
		Str("report_id", entry.ID).
		Str("config_hash", entry.ConfigHash).
		Bool("created", created).
		Msg("Report registered")
	return entry, created, nil
}

// FetchOrPrepareReport returns the report with id when it is cached or
// can be assembled from stored data alone. Otherwise it dispatches the
// fetch jobs still needed and returns a pending result.
func (s *Service) FetchOrPrepareReport(ctx context.Context, id string) (*FetchResult, error) {
	result, err := s.fetchOrPrepare(ctx, id)
	status := string(models.ReportStatusError)
	if err == nil {
		status = string(result.Status)
	}
	metrics.ReportRequests.WithLabelValues(status).Inc()
	return result, err
}

func (s *Service) fetchOrPrepare(ctx context.Context, id string) (*FetchResult, error) {
	log := logging.Ctx(ctx)

	report, ok, err := s.cache.GetReport(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("report_id", id).Msg("Report cache read failed")
	} else if ok {
		return &FetchResult{Status: models.ReportStatusComplete, Report: report}, nil
	}

	entry, err := s.registry.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	groups, err := decompose.Decompose(entry.Config, s.decompose)
	if err != nil {
		return nil, fmt.Errorf("decompose report %s: %w", id, err)
	}
	outstanding, err := s.dedup.Apply(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("dedup report %s: %w", id, err)
	}

	if len(outstanding) == 0 {
		report, err := s.assembler.Assemble(ctx, id, entry.Config, decompose.DataPoints(groups))
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetReport(ctx, id, report); err != nil {
			log.Warn().Err(err).Str("report_id", id).Msg("Failed to cache report")
		}
		return &FetchResult{Status: models.ReportStatusComplete, Report: report}, nil
	}

	dispatched, err := s.orchestrator.Dispatch(ctx, id, entry.Config, outstanding)
	if err != nil {
		return nil, err
	}
	return &FetchResult{
		Status:      models.ReportStatusPending,
		ChildJobIDs: dispatched.ChildJobIDs,
		Message:     PendingMessage,
	}, nil
}

// Status streams the progress of report id. A report that is already
// complete yields a single complete status. The stream ends after a
// terminal status or when ctx is done.
func (s *Service) Status(ctx context.Context, id string) (<-chan models.ReportJobStatus, error) {
	result, err := s.FetchOrPrepareReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.Status == models.ReportStatusComplete {
		ch := make(chan models.ReportJobStatus, 1)
		ch <- models.ReportJobStatus{Status: models.ReportStatusComplete, Data: result.Report}
		close(ch)
		return ch, nil
	}
	return s.status.Observe(ctx, id, result.ChildJobIDs), nil
}
