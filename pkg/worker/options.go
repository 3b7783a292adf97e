package worker

import (
	"log/slog"
	"time"
)

// Config holds worker configuration.
type Config struct {
	// WorkerID identifies this worker on claimed jobs, for
	// diagnosability rather than correctness.
	WorkerID string

	// PollInterval is how long the loop sleeps when the queue is empty.
	// This sleep is the only busy-wait point in the worker.
	PollInterval time.Duration

	// OpTimeout bounds each signal read and persistence write. A timeout
	// surfaces as a retryable failure, same as a transport error.
	OpTimeout time.Duration

	// LookbackDays is the signal window fetched per job.
	LookbackDays int

	// StorageRetry is the retry policy for queue bookkeeping calls
	// (complete/fail), not for job processing itself.
	StorageRetry RetryConfig
}

// Option configures a Worker.
type Option interface {
	ApplyWorker(*Worker)
}

type optionFunc func(*Worker)

func (f optionFunc) ApplyWorker(w *Worker) { f(w) }

// WithWorkerID overrides the generated worker identity.
func WithWorkerID(id string) Option {
	return optionFunc(func(w *Worker) { w.config.WorkerID = id })
}

// WithPollInterval sets the empty-queue sleep interval.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(w *Worker) { w.config.PollInterval = d })
}

// WithOpTimeout sets the per-operation timeout.
func WithOpTimeout(d time.Duration) Option {
	return optionFunc(func(w *Worker) { w.config.OpTimeout = d })
}

// WithLookbackDays sets the signal window length.
func WithLookbackDays(days int) Option {
	return optionFunc(func(w *Worker) { w.config.LookbackDays = days })
}

// WithLogger sets the worker logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(w *Worker) { w.logger = logger })
}

// WithClock overrides the worker clock. Tests use this to make backoff
// schedules deterministic.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(w *Worker) { w.now = now })
}

// WithStorageRetry overrides the retry policy for queue bookkeeping
// calls (complete/fail), not for job processing itself.
func WithStorageRetry(cfg RetryConfig) Option {
	return optionFunc(func(w *Worker) { w.config.StorageRetry = cfg })
}
