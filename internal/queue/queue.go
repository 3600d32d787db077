// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/customreports/internal/config"
	"github.com/tomtom215/customreports/internal/eventprocessor"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/metrics"
)

// Publisher sends a message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// Transport supplies the subscribers the queue consumes from.
type Transport interface {
	JobSubscriber(queue string, concurrency int) (message.Subscriber, error)
	EventSubscriber() message.Subscriber
}

// Router registers consumer handlers. Handlers must be added before the
// router runs.
type Router interface {
	AddConsumerHandler(name, topic string, subscriber message.Subscriber, handler message.NoPublishHandlerFunc) *message.Handler
}

// Options are the queue-wide defaults.
type Options struct {
	// Defaults apply to jobs added without their own options.
	Defaults JobOptions
	// LockDuration bounds one processing attempt.
	LockDuration time.Duration
}

// OptionsFromConfig maps the queue configuration section to Options.
// Children of a flow always fail their parents.
func OptionsFromConfig(cfg *config.QueueConfig) Options {
	return Options{
		Defaults: JobOptions{
			Attempts:            cfg.Attempts,
			Backoff:             cfg.Backoff,
			RemoveOnComplete:    cfg.RemoveOnComplete,
			RemoveOnFail:        cfg.RemoveOnFail,
			FailParentOnFailure: true,
		},
		LockDuration: cfg.LockDuration,
	}
}

var (
	errNotClaimable = errors.New("job not claimable")
	errNotTerminal  = errors.New("job not terminal")
)

// dispatchMessage is the payload of a job topic message.
type dispatchMessage struct {
	Queue string `json:"queue"`
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Queue is a persistent job queue with parent/child flows. Job records
// live in a JobStore; the transport only carries dispatch notices and
// lifecycle events, so any instance sharing the store and transport can
// process any job.
type Queue struct {
	store     JobStore
	publisher Publisher
	transport Transport
	router    Router
	bus       *EventBus
	opts      Options
	wmLogger  watermill.LoggerAdapter
	now       func() time.Time

	mu      sync.Mutex
	loggers map[string]*logging.JobLogger
}

// New returns a queue and registers the event listener on router, which
// relays transport events into bus.
func New(store JobStore, publisher Publisher, transport Transport, router Router, bus *EventBus, opts Options) *Queue {
	if opts.Defaults.Attempts <= 0 {
		opts.Defaults.Attempts = 1
	}
	if opts.LockDuration <= 0 {
		opts.LockDuration = 5 * time.Minute
	}

	q := &Queue{
		store:     store,
		publisher: publisher,
		transport: transport,
		router:    router,
		bus:       bus,
		opts:      opts,
		wmLogger:  watermill.NewSlogLogger(logging.NewComponentSlogLogger("queue")),
		now:       time.Now,
		loggers:   make(map[string]*logging.JobLogger),
	}
	router.AddConsumerHandler("queue-events", eventprocessor.EventsTopic, transport.EventSubscriber(), q.relayEvent)
	return q
}

// Events returns the in-process event bus.
func (q *Queue) Events() *EventBus {
	return q.bus
}

// Get returns the stored job.
func (q *Queue) Get(ctx context.Context, ref Ref) (*Job, error) {
	return q.store.Get(ctx, ref)
}

func (q *Queue) jobLogger(queue string) *logging.JobLogger {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.loggers[queue]
	if !ok {
		l = logging.NewJobLogger(queue)
		q.loggers[queue] = l
	}
	return l
}

func (q *Queue) newJob(spec JobSpec) (*Job, error) {
	if spec.Queue == "" || spec.ID == "" {
		return nil, fmt.Errorf("job needs a queue and an id")
	}
	opts := q.opts.Defaults
	if spec.Options != nil {
		opts = *spec.Options
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}

	job := &Job{
		ID:          spec.ID,
		Queue:       spec.Queue,
		State:       StateWaiting,
		MaxAttempts: opts.Attempts,
		Token:       uuid.NewString(),
		Options:     opts,
		CreatedAt:   q.now().UTC(),
	}
	if spec.Data != nil {
		data, err := json.Marshal(spec.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal data of job %s: %w", spec.ID, err)
		}
		job.Data = data
	}
	return job, nil
}

// resetJob prepares a finished job for another run with fresh's data and
// options.
func resetJob(j, fresh *Job) {
	j.Data = fresh.Data
	j.Options = fresh.Options
	j.MaxAttempts = fresh.MaxAttempts
	j.State = fresh.State
	j.Token = fresh.Token
	j.Attempts = 0
	j.Result = nil
	j.FailedReason = ""
	j.LockedUntil = time.Time{}
	j.FinishedAt = time.Time{}
	j.Children = fresh.Children
	j.DoneChildren = nil
	j.PendingChildren = fresh.PendingChildren
}

// Add enqueues a job. When a job with the same id is already waiting or
// active, Add changes nothing and returns that job with false. A finished
// job with the same id is reset and run again.
func (q *Queue) Add(ctx context.Context, spec JobSpec) (*Job, bool, error) {
	job, err := q.newJob(spec)
	if err != nil {
		return nil, false, err
	}
	stored, added, err := q.put(ctx, job)
	if err != nil || !added {
		return stored, added, err
	}
	if err := q.dispatch(ctx, stored); err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// put creates job, or resets a finished job with the same ref. It returns
// the stored job and whether the caller now owns a fresh run of it.
func (q *Queue) put(ctx context.Context, job *Job) (*Job, bool, error) {
	log := q.jobLogger(job.Queue)

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		stored, created, err := q.store.Create(ctx, job)
		if err != nil {
			return nil, false, err
		}
		if created {
			metrics.RecordJob(job.Queue, "added")
			log.LogAdded(ctx, job.ID, len(job.Children))
			return stored, true, nil
		}
		if !stored.State.Terminal() {
			metrics.RecordJob(job.Queue, "coalesced")
			log.LogCoalesced(ctx, job.ID, string(stored.State))
			return stored, false, nil
		}

		reset, err := q.store.Update(ctx, job.Ref(), func(j *Job) error {
			if !j.State.Terminal() {
				return errNotTerminal
			}
			resetJob(j, job)
			return nil
		})
		switch {
		case err == nil:
			metrics.RecordJob(job.Queue, "added")
			log.LogAdded(ctx, job.ID, len(job.Children))
			return reset, true, nil
		case errors.Is(err, errNotTerminal), errors.Is(err, ErrJobNotFound):
			// Another caller got there first, or cleanup removed it.
			continue
		default:
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("add job %s/%s: too many conflicts", job.Queue, job.ID)
}

// AddFlow adds a parent job that runs once every child has completed. A
// child id that already exists is shared: the parent is attached to it
// instead of creating a second job. A flow whose parent is already waiting
// or active is returned unchanged with false.
func (q *Queue) AddFlow(ctx context.Context, flow FlowSpec) (*Job, bool, error) {
	parent, err := q.newJob(flow.Parent)
	if err != nil {
		return nil, false, err
	}
	children := make([]*Job, 0, len(flow.Children))
	for _, spec := range flow.Children {
		child, err := q.newJob(spec)
		if err != nil {
			return nil, false, err
		}
		child.Parents = []Ref{parent.Ref()}
		children = append(children, child)
		if !containsRef(parent.Children, child.Ref()) {
			parent.Children = append(parent.Children, child.Ref())
		}
	}
	parent.PendingChildren = len(parent.Children)
	if parent.PendingChildren > 0 {
		parent.State = StateWaitingChildren
	}

	stored, added, err := q.put(ctx, parent)
	if err != nil || !added {
		return stored, added, err
	}
	if stored.State == StateWaiting {
		return stored, true, q.dispatch(ctx, stored)
	}

	for _, child := range children {
		if err := q.attachChild(ctx, parent.Ref(), child); err != nil {
			return nil, false, err
		}
	}

	current, err := q.store.Get(ctx, parent.Ref())
	if err != nil {
		return nil, false, err
	}
	return current, true, nil
}

// attachChild makes child part of the flow under parentRef, creating it,
// joining a waiting or active job, or rerunning a failed one. A child that
// has already completed counts as done straight away.
func (q *Queue) attachChild(ctx context.Context, parentRef Ref, child *Job) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		stored, created, err := q.store.Create(ctx, child)
		if err != nil {
			return err
		}
		if created {
			metrics.RecordJob(child.Queue, "added")
			return q.dispatch(ctx, stored)
		}

		var completed, rerun bool
		joined, err := q.store.Update(ctx, child.Ref(), func(j *Job) error {
			completed, rerun = false, false
			switch j.State {
			case StateCompleted:
				completed = true
				return nil
			case StateFailed:
				resetJob(j, child)
				j.Parents = nil
				rerun = true
			}
			if !j.HasParent(parentRef) {
				j.Parents = append(j.Parents, parentRef)
			}
			return nil
		})
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		metrics.RecordJob(child.Queue, "coalesced")
		q.jobLogger(child.Queue).LogCoalesced(ctx, child.ID, string(joined.State))
		switch {
		case completed:
			return q.childCompleted(ctx, parentRef, child.Ref())
		case rerun:
			return q.dispatch(ctx, joined)
		default:
			return nil
		}
	}
	return fmt.Errorf("attach job %s/%s: too many conflicts", child.Queue, child.ID)
}

func (q *Queue) dispatch(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(dispatchMessage{Queue: job.Queue, ID: job.ID, Token: job.Token})
	if err != nil {
		return fmt.Errorf("marshal dispatch: %w", err)
	}
	// The token doubles as message id, so re-sending the same dispatch is
	// dropped by the stream's duplicate window.
	msg := message.NewMessage(job.Token, payload)
	if err := q.publisher.Publish(ctx, eventprocessor.JobTopic(job.Queue), msg); err != nil {
		return fmt.Errorf("dispatch job %s/%s: %w", job.Queue, job.ID, err)
	}
	return nil
}

func (q *Queue) publishEvent(ctx context.Context, e Event) {
	e.Timestamp = q.now().UTC()
	payload, err := json.Marshal(e)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("job_id", e.JobID).Msg("Failed to marshal job event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := q.publisher.Publish(ctx, eventprocessor.EventsTopic, msg); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("job_id", e.JobID).Str("event", string(e.Type)).Msg("Failed to publish job event")
	}
}

func (q *Queue) relayEvent(msg *message.Message) error {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed job event")
		return nil
	}
	q.bus.Dispatch(e)
	return nil
}

// Process registers processor for queue. At most concurrency jobs of the
// queue run at once on this instance. It must be called before the router
// runs.
func (q *Queue) Process(queue string, processor Processor, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	sub, err := q.transport.JobSubscriber(queue, concurrency)
	if err != nil {
		return err
	}
	sem := make(chan struct{}, concurrency)
	q.router.AddConsumerHandler("queue-"+queue, eventprocessor.JobTopic(queue), sub, func(msg *message.Message) error {
		return q.handleDispatch(msg, queue, processor, sem)
	})
	return nil
}

func (q *Queue) handleDispatch(msg *message.Message, queue string, processor Processor, sem chan struct{}) error {
	var d dispatchMessage
	if err := json.Unmarshal(msg.Payload, &d); err != nil || d.ID == "" {
		logging.Warn().Err(err).Str("queue", queue).Str("message_uuid", msg.UUID).Msg("Dropping malformed dispatch message")
		return nil
	}
	d.Queue = queue

	ctx := msg.Context()
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()

	job, err := q.claim(ctx, d)
	if errors.Is(err, errNotClaimable) || errors.Is(err, ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	q.run(ctx, msg, job, processor)
	return nil
}

// claim moves the job to active when the delivery is current and nobody
// else holds it. An active job whose lock has expired is taken over.
func (q *Queue) claim(ctx context.Context, d dispatchMessage) (*Job, error) {
	now := q.now()
	job, err := q.store.Update(ctx, Ref{Queue: d.Queue, ID: d.ID}, func(j *Job) error {
		if j.Token != d.Token {
			return errNotClaimable
		}
		switch j.State {
		case StateWaiting:
		case StateActive:
			if now.Before(j.LockedUntil) {
				return errNotClaimable
			}
		default:
			return errNotClaimable
		}
		j.State = StateActive
		j.Attempts = 0
		j.LockedUntil = now.Add(q.lockWindow(j))
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.publishEvent(ctx, Event{Type: EventActive, Queue: job.Queue, JobID: job.ID, Parents: job.Parents})
	return job, nil
}

// lockWindow covers every attempt of a job and the backoff between them.
func (q *Queue) lockWindow(j *Job) time.Duration {
	window := time.Duration(j.MaxAttempts) * q.opts.LockDuration
	delay := j.Options.Backoff
	for i := 1; i < j.MaxAttempts; i++ {
		window += delay
		delay = min(delay*2, maxBackoff(j.Options.Backoff))
	}
	return window
}

func maxBackoff(initial time.Duration) time.Duration {
	return max(initial, time.Minute)
}

func (q *Queue) run(ctx context.Context, msg *message.Message, job *Job, processor Processor) {
	log := q.jobLogger(job.Queue)
	ref := job.Ref()
	started := q.now()

	var (
		attempt int
		result  any
	)
	attemptFn := func(*message.Message) ([]*message.Message, error) {
		attempt++
		log.LogStarted(ctx, job.ID, attempt)
		if _, err := q.store.Update(ctx, ref, func(j *Job) error {
			j.Attempts = attempt
			return nil
		}); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job attempt")
		}

		attemptCtx, cancel := context.WithTimeout(ctx, q.opts.LockDuration)
		defer cancel()

		metrics.JobsActive.WithLabelValues(job.Queue).Inc()
		defer metrics.JobsActive.WithLabelValues(job.Queue).Dec()
		begin := time.Now()
		r, err := processor(attemptCtx, job)
		metrics.JobDuration.WithLabelValues(job.Queue).Observe(time.Since(begin).Seconds())
		if err != nil {
			if attempt < job.MaxAttempts && !IsUnrecoverable(err) {
				metrics.RecordJob(job.Queue, "retried")
				log.LogRetry(ctx, job.ID, attempt, err)
			}
			return nil, err
		}
		result = r
		return nil, nil
	}

	retry := middleware.Retry{
		MaxRetries:      job.MaxAttempts - 1,
		InitialInterval: job.Options.Backoff,
		MaxInterval:     maxBackoff(job.Options.Backoff),
		Multiplier:      2,
		ShouldRetry: func(p middleware.RetryParams) bool {
			return !IsUnrecoverable(p.Err)
		},
		Logger: q.wmLogger,
	}
	_, err := retry.Middleware(middleware.Recoverer(attemptFn))(msg)

	if err != nil {
		q.fail(ctx, ref, attempt, err)
		return
	}
	q.complete(ctx, ref, result, q.now().Sub(started))
}

func (q *Queue) complete(ctx context.Context, ref Ref, result any, took time.Duration) {
	var data []byte
	if result != nil {
		var err error
		if data, err = json.Marshal(result); err != nil {
			q.fail(ctx, ref, 0, Unrecoverable(fmt.Errorf("marshal result: %w", err)))
			return
		}
	}

	job, err := q.store.Update(ctx, ref, func(j *Job) error {
		j.State = StateCompleted
		j.Result = data
		j.FailedReason = ""
		j.LockedUntil = time.Time{}
		j.FinishedAt = q.now().UTC()
		return nil
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("queue", ref.Queue).Str("job_id", ref.ID).Msg("Failed to mark job completed")
		return
	}

	metrics.RecordJob(ref.Queue, "completed")
	q.jobLogger(ref.Queue).LogCompleted(ctx, ref.ID, took)
	q.publishEvent(ctx, Event{Type: EventCompleted, Queue: ref.Queue, JobID: ref.ID, Parents: job.Parents, Result: data})

	for _, parent := range job.Parents {
		if err := q.childCompleted(ctx, parent, ref); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("parent_id", parent.ID).Str("job_id", ref.ID).Msg("Failed to update parent job")
		}
	}
	if job.Options.RemoveOnComplete {
		q.remove(ctx, ref)
	}
}

func (q *Queue) fail(ctx context.Context, ref Ref, attempts int, cause error) {
	job, err := q.store.Update(ctx, ref, func(j *Job) error {
		j.State = StateFailed
		j.FailedReason = cause.Error()
		j.LockedUntil = time.Time{}
		j.FinishedAt = q.now().UTC()
		return nil
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("queue", ref.Queue).Str("job_id", ref.ID).Msg("Failed to mark job failed")
		return
	}

	metrics.RecordJob(ref.Queue, "failed")
	q.jobLogger(ref.Queue).LogFailed(ctx, ref.ID, attempts, cause)
	q.publishEvent(ctx, Event{Type: EventFailed, Queue: ref.Queue, JobID: ref.ID, Parents: job.Parents, Error: job.FailedReason})

	if job.Options.FailParentOnFailure {
		for _, parent := range job.Parents {
			q.failParent(ctx, parent, ref, job.FailedReason)
		}
	}
	if job.Options.RemoveOnFail {
		q.remove(ctx, ref)
	}
}

// childCompleted counts child as done for parent once. The parent is
// dispatched when its last child completes.
func (q *Queue) childCompleted(ctx context.Context, parentRef, child Ref) error {
	var counted bool
	parent, err := q.store.Update(ctx, parentRef, func(p *Job) error {
		counted = false
		if p.State != StateWaitingChildren || !containsRef(p.Children, child) || containsRef(p.DoneChildren, child) {
			return nil
		}
		p.DoneChildren = append(p.DoneChildren, child)
		p.PendingChildren = len(p.Children) - len(p.DoneChildren)
		if p.PendingChildren == 0 {
			p.State = StateWaiting
		}
		counted = true
		return nil
	})
	if errors.Is(err, ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !counted {
		return nil
	}

	q.publishEvent(ctx, Event{
		Type:      EventProgress,
		Queue:     parent.Queue,
		JobID:     parent.ID,
		Completed: parent.CompletedChildren(),
		Total:     len(parent.Children),
	})
	if parent.PendingChildren == 0 {
		return q.dispatch(ctx, parent)
	}
	return nil
}

func (q *Queue) failParent(ctx context.Context, parentRef, child Ref, reason string) {
	var failed bool
	parent, err := q.store.Update(ctx, parentRef, func(p *Job) error {
		failed = false
		if p.State != StateWaitingChildren || !containsRef(p.Children, child) {
			return nil
		}
		p.State = StateFailed
		p.FailedReason = fmt.Sprintf("child %s failed: %s", child.ID, reason)
		p.FinishedAt = q.now().UTC()
		failed = true
		return nil
	})
	if errors.Is(err, ErrJobNotFound) {
		return
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("parent_id", parentRef.ID).Msg("Failed to fail parent job")
		return
	}
	if !failed {
		return
	}

	metrics.RecordJob(parent.Queue, "failed")
	q.jobLogger(parent.Queue).LogFailed(ctx, parent.ID, parent.Attempts, errors.New(parent.FailedReason))
	q.publishEvent(ctx, Event{Type: EventFailed, Queue: parent.Queue, JobID: parent.ID, Error: parent.FailedReason})
	if parent.Options.RemoveOnFail {
		q.remove(ctx, parentRef)
	}
}

func (q *Queue) remove(ctx context.Context, ref Ref) {
	if err := q.store.Delete(ctx, ref); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("queue", ref.Queue).Str("job_id", ref.ID).Msg("Failed to remove finished job")
	}
}
