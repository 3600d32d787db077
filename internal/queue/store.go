// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package queue

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job does not exist.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists jobs. Implementations must make Create and Update
// atomic per job so that concurrent workers and instances agree.
type JobStore interface {
	// Create stores job unless one with the same ref exists. It returns the
	// stored job and whether it was created.
	Create(ctx context.Context, job *Job) (*Job, bool, error)

	Get(ctx context.Context, ref Ref) (*Job, error)

	// Update applies fn to the current job and stores the result. An error
	// from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, ref Ref, fn func(*Job) error) (*Job, error)

	// Delete removes the job. Deleting a missing job is not an error.
	Delete(ctx context.Context, ref Ref) error
}

// maxConflictRetries bounds optimistic-concurrency retries in the stores.
const maxConflictRetries = 64
