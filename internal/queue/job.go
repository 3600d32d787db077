// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// State is the lifecycle position of a job.
type State string

const (
	StateWaiting         State = "waiting"
	StateWaitingChildren State = "waiting-children"
	StateActive          State = "active"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// Terminal reports whether the job has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Ref identifies a job. Ids are unique within a queue.
type Ref struct {
	Queue string `json:"queue"`
	ID    string `json:"id"`
}

// Job is the persisted record of one unit of work. The transport only
// carries a Ref and a token; everything else lives here.
type Job struct {
	ID    string          `json:"id"`
	Queue string          `json:"queue"`
	Data  json.RawMessage `json:"data,omitempty"`

	// Parents are the flows waiting on this job. A child shared by several
	// reports has one entry per report.
	Parents []Ref `json:"parents,omitempty"`

	// Children, DoneChildren and PendingChildren are set on flow parents
	// only. PendingChildren is len(Children) - len(DoneChildren).
	Children        []Ref `json:"children,omitempty"`
	DoneChildren    []Ref `json:"doneChildren,omitempty"`
	PendingChildren int   `json:"pendingChildren,omitempty"`

	State        State           `json:"state"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"maxAttempts"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`

	// Token changes every time the job is (re)dispatched. Deliveries
	// carrying an older token are ignored.
	Token       string    `json:"token"`
	LockedUntil time.Time `json:"lockedUntil,omitempty"`

	Options JobOptions `json:"options"`

	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Ref returns the job's reference.
func (j *Job) Ref() Ref {
	return Ref{Queue: j.Queue, ID: j.ID}
}

// CompletedChildren is the number of children that have completed.
func (j *Job) CompletedChildren() int {
	return len(j.DoneChildren)
}

// HasParent reports whether ref is among the job's parents.
func (j *Job) HasParent(ref Ref) bool {
	return containsRef(j.Parents, ref)
}

func containsRef(refs []Ref, ref Ref) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// JobOptions control retries and cleanup of one job.
type JobOptions struct {
	Attempts         int           `json:"attempts"`
	Backoff          time.Duration `json:"backoff"`
	RemoveOnComplete bool          `json:"removeOnComplete,omitempty"`
	RemoveOnFail     bool          `json:"removeOnFail,omitempty"`
	// FailParentOnFailure fails every parent when this job fails for good.
	FailParentOnFailure bool `json:"failParentOnFailure,omitempty"`
}

// JobSpec describes a job to add.
type JobSpec struct {
	Queue   string
	ID      string
	Data    any
	Options *JobOptions
}

// FlowSpec describes a parent job and the children it waits for.
type FlowSpec struct {
	Parent   JobSpec
	Children []JobSpec
}

// Processor runs one attempt of a job. The returned value is stored as the
// job result.
type Processor func(ctx context.Context, job *Job) (any, error)

type unrecoverableError struct{ err error }

func (e unrecoverableError) Error() string { return e.err.Error() }
func (e unrecoverableError) Unwrap() error { return e.err }

// Unrecoverable marks err as permanent: the job fails without further
// attempts.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return unrecoverableError{err: err}
}

// IsUnrecoverable reports whether err was marked with Unrecoverable.
func IsUnrecoverable(err error) bool {
	var u unrecoverableError
	return errors.As(err, &u)
}
