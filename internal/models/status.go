// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package models

// ReportStatus is the externally visible state of a report.
type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusComplete ReportStatus = "complete"
	ReportStatusError    ReportStatus = "error"
)

// Terminal reports whether no further status updates follow.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusComplete || s == ReportStatusError
}

// ReportJobStatus is the converging progress object streamed for a report.
// Transient: derived from queue events, never persisted.
type ReportJobStatus struct {
	Status             ReportStatus `json:"status"`
	CompletedChildJobs int          `json:"completedChildJobs"`
	TotalChildJobs     int          `json:"totalChildJobs"`
	Data               *Report      `json:"data,omitempty"`
	Error              string       `json:"error,omitempty"`

	// FailedChild names the fetch job whose failure ended the report.
	FailedChild *ChildJobStatus `json:"failedChild,omitempty"`
}

// ChildJobStatus is the state of one fetch job as seen by a status stream.
type ChildJobStatus struct {
	JobID  string       `json:"jobId"`
	Status ReportStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}
