package core

import (
	"context"
	"time"
)

// QueueStatus is a point-in-time count of jobs per queue list.
type QueueStatus struct {
	Pending   int64 `json:"pending"`
	InFlight  int64 `json:"inFlight"`
	Completed int64 `json:"completed"`
}

// QueueStore is the durable queue backend.
//
// Dequeue must be atomic: a job handed to one worker must never be
// returned by a concurrent Dequeue call. This is the only hard
// concurrency invariant the orchestrator relies on.
type QueueStore interface {
	// Migrate prepares the backend (tables, keys). Safe to call repeatedly.
	Migrate(ctx context.Context) error

	// Enqueue appends a job to the pending set. Jobs without a tenant
	// are rejected with ErrMissingTenant and never admitted.
	Enqueue(ctx context.Context, job *RecomputeJob) error

	// Dequeue claims the next pending job whose ScheduledAt is due and
	// moves it to the in-flight set, recording the claiming worker and a
	// start timestamp. Returns (nil, nil) when no job is eligible.
	Dequeue(ctx context.Context, workerID string) (*RecomputeJob, error)

	// Complete removes a claimed job from the in-flight set. Returns
	// ErrJobNotOwned when the job is not held by workerID.
	Complete(ctx context.Context, jobID, workerID string) error

	// Fail removes a claimed job from the in-flight set after a failure.
	// With a non-nil retryAt the job goes back to pending with
	// RetryCount+1 and ScheduledAt = retryAt; with nil it is dropped and
	// retained as a dead-letter record.
	Fail(ctx context.Context, jobID, workerID, errMsg string, retryAt *time.Time) error

	// InFlight returns the currently claimed jobs, oldest first, so a
	// crashed worker's orphans stay visible to operational tooling.
	InFlight(ctx context.Context) ([]*RecomputeJob, error)

	// Status returns per-list counts without scanning job payloads.
	Status(ctx context.Context) (QueueStatus, error)
}

// SignalSource is the read-only view of the tenant signal store.
type SignalSource interface {
	// Window returns a tenant's records dated on or after since, newest
	// first. An empty window is not an error.
	Window(ctx context.Context, tenantID string, since time.Time) (SignalWindow, error)

	// ActiveTenants returns the distinct tenants with at least one
	// record dated on or after since.
	ActiveTenants(ctx context.Context, since time.Time) ([]string, error)
}

// SummarySink persists the latest score per tenant. Upsert must be
// idempotent on TenantID so re-running a job is always safe.
type SummarySink interface {
	Upsert(ctx context.Context, summary *TenantScoreSummary) error
}

// EventSink appends audit events. Implementations never mutate or
// delete previously written events.
type EventSink interface {
	Append(ctx context.Context, event *ScoreEvent) error
}
