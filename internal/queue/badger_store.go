// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const badgerJobPrefix = "job:"

// BadgerJobStore keeps jobs in BadgerDB. Every operation is one
// transaction; conflicting transactions are retried. It serves a single
// instance, since the database is local.
type BadgerJobStore struct {
	db *badger.DB
}

// NewBadgerJobStore returns a store on an open database.
func NewBadgerJobStore(db *badger.DB) *BadgerJobStore {
	return &BadgerJobStore{db: db}
}

func badgerJobKey(ref Ref) []byte {
	return []byte(badgerJobPrefix + ref.Queue + ":" + ref.ID)
}

// Create implements JobStore.
func (s *BadgerJobStore) Create(_ context.Context, job *Job) (*Job, bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, false, fmt.Errorf("marshal job: %w", err)
	}

	var (
		stored  *Job
		created bool
	)
	err = retryBadger(func() error {
		stored, created = nil, false
		return s.db.Update(func(txn *badger.Txn) error {
			existing, err := readJob(txn, job.Ref())
			switch {
			case err == nil:
				stored = existing
				return nil
			case !errors.Is(err, ErrJobNotFound):
				return err
			}
			if err := txn.Set(badgerJobKey(job.Ref()), data); err != nil {
				return fmt.Errorf("set job: %w", err)
			}
			stored, created = cloneJob(job), true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Get implements JobStore.
func (s *BadgerJobStore) Get(_ context.Context, ref Ref) (*Job, error) {
	var job *Job
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		job, err = readJob(txn, ref)
		return err
	})
	return job, err
}

// Update implements JobStore.
func (s *BadgerJobStore) Update(_ context.Context, ref Ref, fn func(*Job) error) (*Job, error) {
	var job *Job
	err := retryBadger(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			var err error
			if job, err = readJob(txn, ref); err != nil {
				return err
			}
			if err := fn(job); err != nil {
				return err
			}
			data, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("marshal job: %w", err)
			}
			return txn.Set(badgerJobKey(ref), data)
		})
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Delete implements JobStore.
func (s *BadgerJobStore) Delete(_ context.Context, ref Ref) error {
	return retryBadger(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(badgerJobKey(ref))
		})
	})
}

func readJob(txn *badger.Txn, ref Ref) (*Job, error) {
	item, err := txn.Get(badgerJobKey(ref))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s/%s: %w", ref.Queue, ref.ID, err)
	}
	var job Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal job %s/%s: %w", ref.Queue, ref.ID, err)
	}
	return &job, nil
}

func retryBadger(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = fn(); !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("job transaction conflict after %d attempts: %w", maxConflictRetries, err)
}

func cloneJob(job *Job) *Job {
	c := *job
	c.Parents = append([]Ref(nil), job.Parents...)
	c.Children = append([]Ref(nil), job.Children...)
	c.DoneChildren = append([]Ref(nil), job.DoneChildren...)
	return &c
}
