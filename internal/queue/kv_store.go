// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"
)

// KVJobStore keeps jobs in a JetStream key-value bucket so that several
// instances share them. Updates are compare-and-set on the entry revision.
type KVJobStore struct {
	kv jetstream.KeyValue
}

// NewKVJobStore opens bucket, creating it when missing.
func NewKVJobStore(ctx context.Context, js jetstream.JetStream, bucket string) (*KVJobStore, error) {
	if js == nil {
		return nil, errors.New("kv job store requires a JetStream transport")
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "custom report jobs",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("open job bucket %s: %w", bucket, err)
	}
	return &KVJobStore{kv: kv}, nil
}

// Keys may hold letters, digits, dash, underscore, slash, equals and dots;
// queue names and job ids stay inside that set.
func kvJobKey(ref Ref) string {
	return ref.Queue + "." + ref.ID
}

// Create implements JobStore.
func (s *KVJobStore) Create(ctx context.Context, job *Job) (*Job, bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, false, fmt.Errorf("marshal job: %w", err)
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		_, err := s.kv.Create(ctx, kvJobKey(job.Ref()), data)
		if err == nil {
			return cloneJob(job), true, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return nil, false, fmt.Errorf("create job %s/%s: %w", job.Queue, job.ID, err)
		}
		existing, _, err := s.get(ctx, job.Ref())
		if errors.Is(err, ErrJobNotFound) {
			// Deleted between the two calls.
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("create job %s/%s: too many conflicts", job.Queue, job.ID)
}

// Get implements JobStore.
func (s *KVJobStore) Get(ctx context.Context, ref Ref) (*Job, error) {
	job, _, err := s.get(ctx, ref)
	return job, err
}

func (s *KVJobStore) get(ctx context.Context, ref Ref) (*Job, uint64, error) {
	entry, err := s.kv.Get(ctx, kvJobKey(ref))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, ErrJobNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get job %s/%s: %w", ref.Queue, ref.ID, err)
	}
	var job Job
	if err := json.Unmarshal(entry.Value(), &job); err != nil {
		return nil, 0, fmt.Errorf("unmarshal job %s/%s: %w", ref.Queue, ref.ID, err)
	}
	return &job, entry.Revision(), nil
}

// Update implements JobStore.
func (s *KVJobStore) Update(ctx context.Context, ref Ref, fn func(*Job) error) (*Job, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		job, revision, err := s.get(ctx, ref)
		if err != nil {
			return nil, err
		}
		if err := fn(job); err != nil {
			return nil, err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("marshal job: %w", err)
		}
		_, err = s.kv.Update(ctx, kvJobKey(ref), data, revision)
		if err == nil {
			return job, nil
		}
		if !isRevisionConflict(err) {
			return nil, fmt.Errorf("update job %s/%s: %w", ref.Queue, ref.ID, err)
		}
	}
	return nil, fmt.Errorf("update job %s/%s: too many conflicts", ref.Queue, ref.ID)
}

// Delete implements JobStore.
func (s *KVJobStore) Delete(ctx context.Context, ref Ref) error {
	err := s.kv.Delete(ctx, kvJobKey(ref))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete job %s/%s: %w", ref.Queue, ref.ID, err)
	}
	return nil
}

func isRevisionConflict(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return errors.Is(err, jetstream.ErrKeyExists)
}
