// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package pipeline

import (
	"context"
	"fmt"

	"github.com/tomtom215/customreports/internal/confighash"
	"github.com/tomtom215/customreports/internal/decompose"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/queue"
)

// Queue names.
const (
	QueuePrepare = "prepare"
	QueueFetch   = "fetch-and-process"
)

// FlowQueue is the part of the job queue the orchestrator needs.
type FlowQueue interface {
	AddFlow(ctx context.Context, flow queue.FlowSpec) (*queue.Job, bool, error)
}

// DispatchResult describes the flow a report is waiting on.
type DispatchResult struct {
	// Added is false when the report already had a flow in progress.
	Added       bool
	State       queue.State
	ChildJobIDs []string
}

// Orchestrator submits report flows.
type Orchestrator struct {
	queue FlowQueue
}

// NewOrchestrator creates an Orchestrator on q.
func NewOrchestrator(q FlowQueue) *Orchestrator {
	return &Orchestrator{queue: q}
}

// Dispatch submits the flow of reportID: a prepare job with the report id
// and one fetch job per group, identified by its query and the shape of
// the documents it writes.
// Submitting a report whose flow is still running is a no-op that returns
// the running flow.
func (o *Orchestrator) Dispatch(ctx context.Context, reportID string, cfg models.ReportConfig, groups []decompose.QueryGroup) (DispatchResult, error) {
	flow := queue.FlowSpec{
		Parent: queue.JobSpec{
			Queue: QueuePrepare,
			ID:    reportID,
			Data:  models.PrepareJobData{ReportID: reportID, Config: cfg},
		},
		Children: make([]queue.JobSpec, 0, len(groups)),
	}
	for _, g := range groups {
		hash := confighash.FetchJobID(cfg, g.Query)
		flow.Children = append(flow.Children, queue.JobSpec{
			Queue: QueueFetch,
			ID:    hash,
			Data: models.ChildJobMetadata{
				Hash:       hash,
				ReportID:   reportID,
				Config:     cfg,
				Query:      g.Query,
				DataPoints: g.DataPoints,
			},
		})
	}

	parent, added, err := o.queue.AddFlow(ctx, flow)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("dispatch report %s: %w", reportID, err)
	}

	result := DispatchResult{
		Added:       added,
		State:       parent.State,
		ChildJobIDs: make([]string, 0, len(parent.Children)),
	}
	for _, child := range parent.Children {
		result.ChildJobIDs = append(result.ChildJobIDs, child.ID)
	}

	logging.Ctx(ctx).Info().
		Str("report_id", reportID).
		Bool("added", added).
		Str("state", string(parent.State)).
		Int("children", len(result.ChildJobIDs)).
		Msg("Report flow dispatched")
	return result, nil
}
