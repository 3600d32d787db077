// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/customreports/internal/models"
	"github.com/tomtom215/customreports/internal/queue"
)

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[queue.Ref]*queue.Job
}

func newFakeJobs(jobs ...*queue.Job) *fakeJobs {
	f := &fakeJobs{jobs: make(map[queue.Ref]*queue.Job)}
	for _, j := range jobs {
		f.put(j)
	}
	return f
}

func (f *fakeJobs) put(j *queue.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.jobs[j.Ref()] = &cp
}

func (f *fakeJobs) Get(_ context.Context, ref queue.Ref) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[ref]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func parentJob(id string, state queue.State, done, total int) *queue.Job {
	j := &queue.Job{ID: id, Queue: QueuePrepare, State: state}
	for i := 0; i < total; i++ {
		ref := queue.Ref{Queue: QueueFetch, ID: string(rune('a' + i))}
		j.Children = append(j.Children, ref)
		if i < done {
			j.DoneChildren = append(j.DoneChildren, ref)
		}
	}
	j.PendingChildren = total - done
	return j
}

// next reads one status or fails.
func next(t *testing.T, st <-chan models.ReportJobStatus) models.ReportJobStatus {
	t.Helper()
	select {
	case s, ok := <-st:
		if !ok {
			t.Fatal("status stream closed")
		}
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for status")
		return models.ReportJobStatus{}
	}
}

func waitClosed(t *testing.T, st <-chan models.ReportJobStatus) {
	t.Helper()
	select {
	case s, ok := <-st:
		if ok {
			t.Fatalf("unexpected status %+v, want closed stream", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("status stream did not close")
	}
}

// waitSubscribed blocks until bus has n subscribers so dispatched events
// are not lost.
func waitSubscribed(t *testing.T, bus *queue.EventBus, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for bus.Subscribers() < n {
		if time.Now().After(deadline) {
			t.Fatal("observer did not subscribe")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStatusAggregator_ProgressThenComplete(t *testing.T) {
	t.Parallel()
	jobs := newFakeJobs(parentJob("r1", queue.StateWaitingChildren, 1, 3))
	bus := queue.NewEventBus(16)
	agg := NewStatusAggregator(jobs, bus, newReportCache(), time.Hour)

	st := agg.Observe(context.Background(), "r1", []string{"a", "b", "c"})
	if got := next(t, st); got.Status != models.ReportStatusPending || got.CompletedChildJobs != 1 || got.TotalChildJobs != 3 {
		t.Fatalf("initial status = %+v, want pending 1/3", got)
	}
	waitSubscribed(t, bus, 1)

	bus.Dispatch(queue.Event{Type: queue.EventProgress, Queue: QueuePrepare, JobID: "r1", Completed: 2, Total: 3})
	if got := next(t, st); got.CompletedChildJobs != 2 {
		t.Fatalf("after progress = %+v, want 2/3", got)
	}

	// Events of other reports are ignored.
	bus.Dispatch(queue.Event{Type: queue.EventFailed, Queue: QueuePrepare, JobID: "r2", Error: "boom"})

	result, _ := json.Marshal(&models.Report{ID: "r1", Rows: []models.ReportRow{{URL: "a"}}})
	bus.Dispatch(queue.Event{Type: queue.EventCompleted, Queue: QueuePrepare, JobID: "r1", Result: result})
	got := next(t, st)
	if got.Status != models.ReportStatusComplete || got.Data == nil || got.Data.ID != "r1" {
		t.Fatalf("final status = %+v", got)
	}
	if got.CompletedChildJobs != 3 || got.TotalChildJobs != 3 {
		t.Errorf("final counts = %d/%d, want 3/3", got.CompletedChildJobs, got.TotalChildJobs)
	}
	waitClosed(t, st)
	if n := bus.Subscribers(); n != 0 {
		t.Errorf("subscribers after terminal status = %d", n)
	}
}

func TestStatusAggregator_ChildFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		event       queue.Event
		failedChild string
	}{
		{
			name:        "listed child",
			event:       queue.Event{Type: queue.EventFailed, Queue: QueueFetch, JobID: "a", Error: "HTTP 400"},
			failedChild: "a",
		},
		{
			name: "child naming the report as parent",
			event: queue.Event{Type: queue.EventFailed, Queue: QueueFetch, JobID: "z", Error: "HTTP 400",
				Parents: []queue.Ref{{Queue: QueuePrepare, ID: "r1"}}},
			failedChild: "z",
		},
		{
			name:  "parent",
			event: queue.Event{Type: queue.EventFailed, Queue: QueuePrepare, JobID: "r1", Error: "child a failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			jobs := newFakeJobs(parentJob("r1", queue.StateWaitingChildren, 0, 2))
			bus := queue.NewEventBus(16)
			st := NewStatusAggregator(jobs, bus, newReportCache(), time.Hour).Observe(context.Background(), "r1", []string{"a", "b"})

			next(t, st)
			waitSubscribed(t, bus, 1)
			bus.Dispatch(tt.event)

			got := next(t, st)
			if got.Status != models.ReportStatusError || got.Error == "" {
				t.Errorf("status = %+v, want error", got)
			}
			switch {
			case tt.failedChild == "" && got.FailedChild != nil:
				t.Errorf("FailedChild = %+v, want nil", got.FailedChild)
			case tt.failedChild != "" && (got.FailedChild == nil || got.FailedChild.JobID != tt.failedChild || got.FailedChild.Error != "HTTP 400"):
				t.Errorf("FailedChild = %+v, want %s with HTTP 400", got.FailedChild, tt.failedChild)
			}
			waitClosed(t, st)
		})
	}
}

func TestStatusAggregator_InitialTerminalStates(t *testing.T) {
	t.Parallel()

	report := &models.Report{ID: "r1"}
	result, _ := json.Marshal(report)
	completed := parentJob("r1", queue.StateCompleted, 2, 2)
	completed.Result = result
	failed := parentJob("r1", queue.StateFailed, 1, 2)
	failed.FailedReason = "child b failed: HTTP 400"

	tests := []struct {
		name   string
		jobs   *fakeJobs
		cached *models.Report
		want   models.ReportStatus
	}{
		{name: "completed job", jobs: newFakeJobs(completed), want: models.ReportStatusComplete},
		{name: "failed job", jobs: newFakeJobs(failed), want: models.ReportStatusError},
		{name: "removed job with cached report", jobs: newFakeJobs(), cached: report, want: models.ReportStatusComplete},
		{name: "missing job", jobs: newFakeJobs(), want: models.ReportStatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rc := newReportCache()
			if tt.cached != nil {
				if err := rc.SetReport(context.Background(), "r1", tt.cached); err != nil {
					t.Fatalf("SetReport: %v", err)
				}
			}
			st := NewStatusAggregator(tt.jobs, queue.NewEventBus(4), rc, time.Hour).Observe(context.Background(), "r1", nil)
			if got := next(t, st); got.Status != tt.want {
				t.Errorf("status = %+v, want %s", got, tt.want)
			}
			waitClosed(t, st)
		})
	}
}

func TestStatusAggregator_ResyncsFromStore(t *testing.T) {
	t.Parallel()
	jobs := newFakeJobs(parentJob("r1", queue.StateWaitingChildren, 0, 2))
	st := NewStatusAggregator(jobs, queue.NewEventBus(4), newReportCache(), 10*time.Millisecond).
		Observe(context.Background(), "r1", nil)

	next(t, st)
	jobs.put(parentJob("r1", queue.StateWaitingChildren, 1, 2))
	if got := next(t, st); got.CompletedChildJobs != 1 {
		t.Fatalf("after resync = %+v, want 1/2", got)
	}

	failed := parentJob("r1", queue.StateFailed, 1, 2)
	failed.FailedReason = "boom"
	jobs.put(failed)
	if got := next(t, st); got.Status != models.ReportStatusError || got.Error != "boom" {
		t.Fatalf("after failure = %+v", got)
	}
	waitClosed(t, st)
}

func TestStatusAggregator_CancelClosesStream(t *testing.T) {
	t.Parallel()
	jobs := newFakeJobs(parentJob("r1", queue.StateWaitingChildren, 0, 1))
	bus := queue.NewEventBus(4)
	ctx, cancel := context.WithCancel(context.Background())

	st := NewStatusAggregator(jobs, bus, newReportCache(), time.Hour).Observe(ctx, "r1", nil)
	next(t, st)
	cancel()
	waitClosed(t, st)

	deadline := time.Now().Add(5 * time.Second)
	for bus.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("observer kept its subscription after cancel")
		}
		time.Sleep(time.Millisecond)
	}
}
