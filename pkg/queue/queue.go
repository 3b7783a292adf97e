package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
)

// Queue manages job admission and exposes the backend to workers and
// operational tooling, with a typed event stream layered on top.
type Queue struct {
	store core.QueueStore

	mu        sync.RWMutex
	eventSubs []chan core.Event
}

// New creates a Queue on the given backend.
func New(store core.QueueStore) *Queue {
	return &Queue{store: store}
}

// Store returns the underlying queue backend.
func (q *Queue) Store() core.QueueStore {
	return q.store
}

// Enqueue admits one recompute job for a tenant and returns its id.
// Jobs without a tenant id are rejected here and never reach the
// backend.
func (q *Queue) Enqueue(ctx context.Context, tenantID string, opts ...Option) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", core.ErrMissingTenant
	}

	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	job := &core.RecomputeJob{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Priority:    options.Priority,
		Status:      core.StatusPending,
		MaxRetries:  core.ClampRetries(options.MaxRetries),
		ScheduledAt: time.Now(),
	}
	if options.Delay > 0 {
		job.ScheduledAt = job.ScheduledAt.Add(options.Delay)
	}
	if options.ScheduledAt != nil {
		job.ScheduledAt = *options.ScheduledAt
	}

	if err := q.store.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}
	return job.ID, nil
}

// Dequeue claims the next eligible job for a worker.
func (q *Queue) Dequeue(ctx context.Context, workerID string) (*core.RecomputeJob, error) {
	return q.store.Dequeue(ctx, workerID)
}

// Complete marks a claimed job as done.
func (q *Queue) Complete(ctx context.Context, jobID, workerID string) error {
	return q.store.Complete(ctx, jobID, workerID)
}

// Fail re-queues (non-nil retryAt) or drops (nil retryAt) a claimed job.
func (q *Queue) Fail(ctx context.Context, jobID, workerID, errMsg string, retryAt *time.Time) error {
	return q.store.Fail(ctx, jobID, workerID, errMsg, retryAt)
}

// Status returns the per-list job counts.
func (q *Queue) Status(ctx context.Context) (core.QueueStatus, error) {
	return q.store.Status(ctx)
}

// InFlight returns the currently claimed jobs.
func (q *Queue) InFlight(ctx context.Context) ([]*core.RecomputeJob, error) {
	return q.store.InFlight(ctx)
}

// Events returns a channel receiving queue events. The caller must call
// Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events(). The
// channel is not closed; callers must stop reading before calling
// Unsubscribe.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit delivers an event to all subscribers. Sends never block; a full
// subscriber channel drops the event rather than stalling a worker.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}
