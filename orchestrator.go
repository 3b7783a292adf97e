// Package orchestrator recomputes dealership visibility scores. It
// glues a durable recompute queue, a pool of scoring workers and an
// hourly tenant sweep into one runtime, and re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("orchestrator.db"), &gorm.Config{})
//	store := orchestrator.NewGormStore(db)
//	store.Migrate(context.Background())
//
//	o, _ := orchestrator.New(orchestrator.Deps{
//		Queue:     store,
//		Signals:   store,
//		Summaries: store,
//		Events:    store,
//	})
//
//	o.Enqueue(ctx, "tenant-123", orchestrator.WithPriority(orchestrator.PriorityHigh))
//	o.Run(ctx)
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/queue"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/scheduler"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/storage"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/worker"
)

// Type aliases re-exported from the pkg/ packages.
type (
	// RecomputeJob is one request to recompute a tenant's score.
	RecomputeJob = core.RecomputeJob

	// JobStatus represents the current state of a recompute job.
	JobStatus = core.JobStatus

	// Priority orders eligible jobs relative to each other.
	Priority = core.Priority

	// QueueStatus is a point-in-time count of jobs per queue list.
	QueueStatus = core.QueueStatus

	// QueueStore is the durable queue backend.
	QueueStore = core.QueueStore

	// SignalSource is the read-only view of the tenant signal store.
	SignalSource = core.SignalSource

	// SummarySink persists the latest score per tenant.
	SummarySink = core.SummarySink

	// EventSink appends audit events.
	EventSink = core.EventSink

	// SignalRecord is one day of visibility signals for a tenant.
	SignalRecord = core.SignalRecord

	// SignalWindow is a tenant's signal records over a lookback period.
	SignalWindow = core.SignalWindow

	// TenantScoreSummary is the latest score per tenant.
	TenantScoreSummary = core.TenantScoreSummary

	// ScoreMetrics are the aggregates behind a composite score.
	ScoreMetrics = core.ScoreMetrics

	// ScoreEvent is one append-only audit record of a recomputation.
	ScoreEvent = core.ScoreEvent

	// Event is the interface for all queue events.
	Event = core.Event

	// JobStarted is emitted when a worker claims a job.
	JobStarted = core.JobStarted

	// JobCompleted is emitted when a job finishes and its summary was written.
	JobCompleted = core.JobCompleted

	// JobSkipped is emitted when scoring reported insufficient data.
	JobSkipped = core.JobSkipped

	// JobRetrying is emitted when a failed job is re-queued with backoff.
	JobRetrying = core.JobRetrying

	// JobDropped is emitted when a job exhausts its retry budget.
	JobDropped = core.JobDropped

	// SweepCompleted is emitted after a scheduler sweep.
	SweepCompleted = core.SweepCompleted

	// NoRetryError wraps an error that must not be retried.
	NoRetryError = core.NoRetryError

	// Queue manages job admission and the event stream.
	Queue = queue.Queue

	// EnqueueOption configures one enqueued job.
	EnqueueOption = queue.Option

	// Worker processes recompute jobs from the queue.
	Worker = worker.Worker

	// Scheduler sweeps active tenants into the queue on a cron schedule.
	Scheduler = scheduler.Scheduler

	// GormStore is the GORM-backed store for the queue, signals,
	// summaries and events.
	GormStore = storage.GormStore

	// RedisQueueStore is the Redis-backed queue store.
	RedisQueueStore = storage.RedisQueueStore
)

// Status constants.
const (
	StatusPending   = core.StatusPending
	StatusRunning   = core.StatusRunning
	StatusCompleted = core.StatusCompleted
	StatusDropped   = core.StatusDropped
)

// Priority constants.
const (
	PriorityLow    = core.PriorityLow
	PriorityMedium = core.PriorityMedium
	PriorityHigh   = core.PriorityHigh
)

// Error variables.
var (
	ErrMissingTenant   = core.ErrMissingTenant
	ErrInvalidPriority = core.ErrInvalidPriority
	ErrJobNotOwned     = core.ErrJobNotOwned
	ErrNoSignalData    = core.ErrNoSignalData
)

// Enqueue options.
var (
	WithPriority    = queue.WithPriority
	WithMaxRetries  = queue.WithMaxRetries
	WithDelay       = queue.WithDelay
	WithScheduledAt = queue.WithScheduledAt
)

// NewGormStore creates a GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// NoRetry wraps an error to indicate the job should be dropped on the
// first failure instead of retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// Deps are the external stores the orchestrator runs against. Queue,
// Signals, Summaries and Events may all be one value; GormStore
// implements all four.
type Deps struct {
	Queue     QueueStore
	Signals   SignalSource
	Summaries SummarySink
	Events    EventSink
}

// Orchestrator owns the queue, the worker pool and the sweep
// scheduler.
type Orchestrator struct {
	queue     *Queue
	workers   []*Worker
	scheduler *Scheduler
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*settings)

type settings struct {
	workerCount   int
	workerOpts    []worker.Option
	schedulerOpts []scheduler.Option
	logger        *slog.Logger
}

// WithWorkers sets the worker pool size. The default is 2.
func WithWorkers(n int) Option {
	return func(s *settings) { s.workerCount = n }
}

// WithWorkerOptions passes options to every worker in the pool.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(s *settings) { s.workerOpts = append(s.workerOpts, opts...) }
}

// WithSchedulerOptions passes options to the sweep scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(s *settings) { s.schedulerOpts = append(s.schedulerOpts, opts...) }
}

// WithLogger sets the logger shared by the pool and the scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New creates an orchestrator on the given stores.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Queue == nil {
		return nil, errors.New("orchestrator: queue store is required")
	}
	if deps.Signals == nil {
		return nil, errors.New("orchestrator: signal source is required")
	}
	if deps.Summaries == nil {
		return nil, errors.New("orchestrator: summary sink is required")
	}
	if deps.Events == nil {
		return nil, errors.New("orchestrator: event sink is required")
	}

	s := settings{workerCount: 2, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.workerCount < 1 {
		return nil, fmt.Errorf("orchestrator: worker count must be at least 1, got %d", s.workerCount)
	}

	q := queue.New(deps.Queue)

	workers := make([]*Worker, 0, s.workerCount)
	for i := 0; i < s.workerCount; i++ {
		workerOpts := append([]worker.Option{worker.WithLogger(s.logger)}, s.workerOpts...)
		workers = append(workers, worker.New(q, deps.Signals, deps.Summaries, deps.Events, workerOpts...))
	}

	schedulerOpts := append([]scheduler.Option{scheduler.WithLogger(s.logger)}, s.schedulerOpts...)

	return &Orchestrator{
		queue:     q,
		workers:   workers,
		scheduler: scheduler.New(q, deps.Signals, schedulerOpts...),
		logger:    s.logger,
	}, nil
}

// Queue returns the job queue for admission, introspection and the
// event stream.
func (o *Orchestrator) Queue() *Queue {
	return o.queue
}

// Enqueue admits one recompute job for a tenant and returns its id.
func (o *Orchestrator) Enqueue(ctx context.Context, tenantID string, opts ...EnqueueOption) (string, error) {
	return o.queue.Enqueue(ctx, tenantID, opts...)
}

// Sweep enqueues a low-priority job for every active tenant now,
// outside the cron schedule.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	return o.scheduler.Sweep(ctx)
}

// Run starts the worker pool and the sweep scheduler and blocks until
// the context is cancelled. All goroutines have exited by the time it
// returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, w := range o.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				o.logger.Error("worker stopped", "worker_id", w.ID(), "error", err)
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := o.scheduler.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			o.logger.Error("scheduler stopped", "error", err)
		}
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}
