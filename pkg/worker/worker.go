package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/queue"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/scoring"
)

// Backoff returns the delay before the retry following the given retry
// count: 2^n minutes. It is unbounded by itself; the retry budget caps
// it in practice.
func Backoff(retryCount int) time.Duration {
	return time.Duration(1<<retryCount) * time.Minute
}

// Worker consumes recompute jobs from the queue. Several workers may
// run against the same queue; the backend's atomic dequeue keeps them
// from sharing a job, and last-writer-wins on the summary makes
// concurrent recomputation for one tenant safe, if occasionally stale.
type Worker struct {
	queue     *queue.Queue
	signals   core.SignalSource
	summaries core.SummarySink
	events    core.EventSink
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a worker bound to the queue and the three external
// stores.
func New(q *queue.Queue, signals core.SignalSource, summaries core.SummarySink, events core.EventSink, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		signals:   signals,
		summaries: summaries,
		events:    events,
		config: Config{
			WorkerID:     uuid.New().String(),
			PollInterval: 5 * time.Second,
			OpTimeout:    30 * time.Second,
			LookbackDays: 30,
			StorageRetry: DefaultRetryConfig(),
		},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt.ApplyWorker(w)
	}
	return w
}

// ID returns the worker identity recorded on claimed jobs.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Start processes jobs until the context is cancelled. The queue is
// drained whenever jobs are eligible; the poll interval only paces the
// loop while the queue is empty.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("dequeue failed", "worker_id", w.config.WorkerID, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce drains the currently eligible jobs and returns how many were
// processed. Dequeue errors stop the drain; job failures do not.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		job, err := w.queue.Dequeue(ctx, w.config.WorkerID)
		if err != nil {
			return processed, fmt.Errorf("worker: dequeue: %w", err)
		}
		if job == nil {
			return processed, nil
		}
		w.processJob(ctx, job)
		processed++
	}
}

// processJob runs one job through the state machine:
// in-flight -> completed, pending (retry) or dropped.
func (w *Worker) processJob(ctx context.Context, job *core.RecomputeJob) {
	start := w.now()
	w.queue.Emit(&core.JobStarted{Job: job, Timestamp: start})

	summary, err := w.recompute(ctx, job)
	if err != nil {
		w.handleFailure(ctx, job, err)
		return
	}

	if err := w.completeWithRetry(ctx, job); err != nil {
		w.logger.Error("failed to complete job",
			"job_id", job.ID, "tenant_id", job.TenantID, "error", err)
		return
	}

	if summary == nil {
		// Insufficient data is a documented no-op, not a failure: the
		// job is done and nothing was written.
		w.logger.Debug("skipped tenant with insufficient signal data",
			"job_id", job.ID, "tenant_id", job.TenantID)
		w.queue.Emit(&core.JobSkipped{Job: job, Reason: "insufficient data", Timestamp: w.now()})
		return
	}

	w.logger.Info("tenant score recomputed",
		"tenant_id", job.TenantID,
		"score", summary.Score,
		"risk_level", summary.RiskLevel,
		"data_points", summary.Metrics.DataPoints)
	w.queue.Emit(&core.JobCompleted{
		Job:       job,
		Summary:   summary,
		Duration:  w.now().Sub(start),
		Timestamp: w.now(),
	})
}

// recompute fetches the signal window, scores it and persists the
// result. A nil summary with nil error means insufficient data. Panics
// are converted to errors so a bad window can never kill the loop.
func (w *Worker) recompute(ctx context.Context, job *core.RecomputeJob) (summary *core.TenantScoreSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = fmt.Errorf("worker: panic during recompute: %v", r)
		}
	}()

	now := w.now()
	since := now.AddDate(0, 0, -w.config.LookbackDays)

	readCtx, cancel := context.WithTimeout(ctx, w.config.OpTimeout)
	window, err := w.signals.Window(readCtx, job.TenantID, since)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("worker: signal window: %w", err)
	}
	if len(window) == 0 {
		// No rows at all reads like an ingestion outage, not a tenant
		// without data, so it goes down the retry path.
		return nil, core.ErrNoSignalData
	}

	result, ok := scoring.Compute(window, now)
	if !ok {
		return nil, nil
	}

	summary = &core.TenantScoreSummary{
		TenantID:    job.TenantID,
		Score:       result.Score,
		RiskLevel:   result.RiskLevel,
		LastUpdated: now,
		Metrics:     result.Metrics,
	}

	// The summary upsert and the event append are one logical unit for
	// retry purposes: if the event write fails the whole job is retried,
	// and the idempotent upsert makes the re-run harmless.
	writeCtx, cancel := context.WithTimeout(ctx, w.config.OpTimeout)
	err = w.summaries.Upsert(writeCtx, summary)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("worker: upsert summary: %w", err)
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal event payload: %w", err)
	}
	event := &core.ScoreEvent{
		TenantID:  job.TenantID,
		EventType: core.EventTypeRecompute,
		Payload:   payload,
	}
	eventCtx, cancel := context.WithTimeout(ctx, w.config.OpTimeout)
	err = w.events.Append(eventCtx, event)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("worker: append event: %w", err)
	}

	return summary, nil
}

// handleFailure converts a processing error into the retry-or-drop
// decision. With maxRetries = m a persistently failing job is processed
// at most m times; the drop decision is made on the m-th failure.
func (w *Worker) handleFailure(ctx context.Context, job *core.RecomputeJob, cause error) {
	var noRetry *core.NoRetryError
	next := job.RetryCount + 1
	if next < job.MaxRetries && !errors.As(cause, &noRetry) {
		retryAt := w.now().Add(Backoff(job.RetryCount))
		w.failWithRetry(ctx, job, cause.Error(), &retryAt)
		w.logger.Warn("job failed, retrying",
			"job_id", job.ID,
			"tenant_id", job.TenantID,
			"attempt", next,
			"retry_at", retryAt,
			"error", cause)
		w.queue.Emit(&core.JobRetrying{
			Job:       job,
			Attempt:   next,
			Error:     cause,
			NextRunAt: retryAt,
			Timestamp: w.now(),
		})
		return
	}

	w.failWithRetry(ctx, job, cause.Error(), nil)
	w.logger.Error("job dropped after exhausting retries",
		"job_id", job.ID,
		"tenant_id", job.TenantID,
		"retries", job.RetryCount,
		"error", cause)
	w.queue.Emit(&core.JobDropped{Job: job, Error: cause, Timestamp: w.now()})
}

// completeWithRetry marks a job complete, retrying transient storage
// failures so the job is not stranded in flight.
func (w *Worker) completeWithRetry(ctx context.Context, job *core.RecomputeJob) error {
	return retryWithBackoff(ctx, w.config.StorageRetry, func() error {
		return w.queue.Complete(ctx, job.ID, w.config.WorkerID)
	})
}

func (w *Worker) failWithRetry(ctx context.Context, job *core.RecomputeJob, errMsg string, retryAt *time.Time) {
	err := retryWithBackoff(ctx, w.config.StorageRetry, func() error {
		return w.queue.Fail(ctx, job.ID, w.config.WorkerID, errMsg, retryAt)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("failed to record job failure",
			"job_id", job.ID, "tenant_id", job.TenantID, "error", err)
	}
}
