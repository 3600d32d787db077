// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/customreports/internal/cache"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/queue"
)

// DefaultStatusResync is how often a status stream re-reads the parent job.
const DefaultStatusResync = 5 * time.Second

// JobReader reads job records.
type JobReader interface {
	Get(ctx context.Context, ref queue.Ref) (*queue.Job, error)
}

// StatusAggregator folds the events of a report flow into a stream of
// ReportJobStatus values.
type StatusAggregator struct {
	jobs   JobReader
	bus    *queue.EventBus
	cache  *cache.ReportCache
	resync time.Duration
}

// NewStatusAggregator creates a StatusAggregator. Events come from bus;
// every resync interval the parent job is re-read from jobs in case an
// event was dropped.
func NewStatusAggregator(jobs JobReader, bus *queue.EventBus, rc *cache.ReportCache, resync time.Duration) *StatusAggregator {
	if resync <= 0 {
		resync = DefaultStatusResync
	}
	return &StatusAggregator{jobs: jobs, bus: bus, cache: rc, resync: resync}
}

// Observe streams the status of reportID's flow. The first value reflects
// the stored parent job. A value is sent only when it differs from the
// previous one. The channel is closed after a terminal status, when ctx is
// done, or when the event bus closes.
//
// childIDs are the fetch jobs the caller dispatched. A failure of any of
// them, or of any child that names the report as a parent, ends the
// stream with an error.
func (a *StatusAggregator) Observe(ctx context.Context, reportID string, childIDs []string) <-chan models.ReportJobStatus {
	out := make(chan models.ReportJobStatus, 1)
	// Subscribe before the first read so nothing between the two is lost.
	events, unsubscribe := a.bus.Subscribe()

	o := &observation{
		agg:      a,
		parent:   queue.Ref{Queue: QueuePrepare, ID: reportID},
		children: make(map[string]struct{}, len(childIDs)),
		total:    len(childIDs),
	}
	for _, id := range childIDs {
		o.children[id] = struct{}{}
	}

	go func() {
		defer close(out)
		defer unsubscribe()

		send := func(st models.ReportJobStatus) bool {
			select {
			case out <- st:
				return true
			case <-ctx.Done():
				return false
			}
		}

		last := o.snapshot(ctx, models.ReportJobStatus{Status: models.ReportStatusPending, TotalChildJobs: o.total})
		if !send(last) || last.Status.Terminal() {
			return
		}

		ticker := time.NewTicker(a.resync)
		defer ticker.Stop()

		for {
			var next models.ReportJobStatus
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				next = o.apply(ctx, last, e)
			case <-ticker.C:
				next = o.snapshot(ctx, last)
			}

			if sameStatus(last, next) {
				continue
			}
			last = next
			if !send(last) || last.Status.Terminal() {
				return
			}
		}
	}()
	return out
}

type observation struct {
	agg      *StatusAggregator
	parent   queue.Ref
	children map[string]struct{}
	total    int
}

// snapshot derives the status from the stored parent job. Read errors
// keep last.
func (o *observation) snapshot(ctx context.Context, last models.ReportJobStatus) models.ReportJobStatus {
	job, err := o.agg.jobs.Get(ctx, o.parent)
	if errors.Is(err, queue.ErrJobNotFound) {
		// Parents removed on completion leave the cached report behind.
		if report := o.cached(ctx); report != nil {
			return completeStatus(report, last.TotalChildJobs)
		}
		return models.ReportJobStatus{
			Status:             models.ReportStatusError,
			CompletedChildJobs: last.CompletedChildJobs,
			TotalChildJobs:     last.TotalChildJobs,
			Error:              "report job not found",
		}
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("report_id", o.parent.ID).Msg("Failed to read report job")
		return last
	}
	return o.fromJob(ctx, job)
}

func (o *observation) fromJob(ctx context.Context, job *queue.Job) models.ReportJobStatus {
	total := len(job.Children)
	switch job.State {
	case queue.StateCompleted:
		report := decodeReport(job.Result)
		if report == nil {
			report = o.cached(ctx)
		}
		return completeStatus(report, total)
	case queue.StateFailed:
		return models.ReportJobStatus{
			Status:             models.ReportStatusError,
			CompletedChildJobs: job.CompletedChildren(),
			TotalChildJobs:     total,
			Error:              job.FailedReason,
		}
	default:
		return models.ReportJobStatus{
			Status:             models.ReportStatusPending,
			CompletedChildJobs: job.CompletedChildren(),
			TotalChildJobs:     total,
		}
	}
}

// apply folds one event into last.
func (o *observation) apply(ctx context.Context, last models.ReportJobStatus, e queue.Event) models.ReportJobStatus {
	if e.Ref() == o.parent {
		switch e.Type {
		case queue.EventProgress:
			next := last
			next.Status = models.ReportStatusPending
			next.CompletedChildJobs = max(last.CompletedChildJobs, e.Completed)
			next.TotalChildJobs = e.Total
			return next
		case queue.EventCompleted:
			if report := decodeReport(e.Result); report != nil {
				return completeStatus(report, last.TotalChildJobs)
			}
			return o.snapshot(ctx, last)
		case queue.EventFailed:
			next := last
			next.Status = models.ReportStatusError
			next.Error = e.Error
			return next
		}
		return last
	}

	if e.Type == queue.EventFailed && e.Queue == QueueFetch && o.ownsChild(e) {
		next := last
		next.Status = models.ReportStatusError
		next.Error = fmt.Sprintf("child job %s failed: %s", e.JobID, e.Error)
		next.FailedChild = &models.ChildJobStatus{
			JobID:  e.JobID,
			Status: models.ReportStatusError,
			Error:  e.Error,
		}
		return next
	}
	return last
}

func (o *observation) ownsChild(e queue.Event) bool {
	if _, ok := o.children[e.JobID]; ok {
		return true
	}
	for _, p := range e.Parents {
		if p == o.parent {
			return true
		}
	}
	return false
}

func (o *observation) cached(ctx context.Context) *models.Report {
	report, ok, err := o.agg.cache.GetReport(ctx, o.parent.ID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("report_id", o.parent.ID).Msg("Report cache read failed")
		return nil
	}
	if !ok {
		return nil
	}
	return report
}

func completeStatus(report *models.Report, total int) models.ReportJobStatus {
	return models.ReportJobStatus{
		Status:             models.ReportStatusComplete,
		CompletedChildJobs: total,
		TotalChildJobs:     total,
		Data:               report,
	}
}

func decodeReport(data []byte) *models.Report {
	if len(data) == 0 {
		return nil
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil
	}
	return &report
}

func sameStatus(a, b models.ReportJobStatus) bool {
	return a.Status == b.Status &&
		a.CompletedChildJobs == b.CompletedChildJobs &&
		a.TotalChildJobs == b.TotalChildJobs &&
		a.Error == b.Error
}
