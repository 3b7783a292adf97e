package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/queue"
)

// DefaultCronSpec runs the sweep at the top of every hour.
const DefaultCronSpec = "0 * * * *"

// DefaultActiveWindowDays is the lookback used to decide whether a
// tenant is active enough to sweep.
const DefaultActiveWindowDays = 7

// Scheduler enqueues recompute jobs for every active tenant on a cron
// schedule. Sweep jobs are low priority so explicit requests are always
// served first.
type Scheduler struct {
	queue            *queue.Queue
	signals          core.SignalSource
	cronSpec         string
	activeWindowDays int
	logger           *slog.Logger
	now              func() time.Time
}

// Option configures a Scheduler.
type Option interface {
	ApplyScheduler(*Scheduler)
}

type optionFunc func(*Scheduler)

func (f optionFunc) ApplyScheduler(s *Scheduler) { f(s) }

// WithCronSpec overrides the sweep schedule.
func WithCronSpec(spec string) Option {
	return optionFunc(func(s *Scheduler) { s.cronSpec = spec })
}

// WithActiveWindowDays overrides the activity lookback.
func WithActiveWindowDays(days int) Option {
	return optionFunc(func(s *Scheduler) { s.activeWindowDays = days })
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(s *Scheduler) { s.logger = logger })
}

// WithClock overrides the scheduler clock.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(s *Scheduler) { s.now = now })
}

// New creates a scheduler sweeping the given signal source into the
// queue.
func New(q *queue.Queue, signals core.SignalSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:            q,
		signals:          signals,
		cronSpec:         DefaultCronSpec,
		activeWindowDays: DefaultActiveWindowDays,
		logger:           slog.Default(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt.ApplyScheduler(s)
	}
	return s
}

// Start runs sweeps on the cron schedule until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	runner := cron.New()
	_, err := runner.AddFunc(s.cronSpec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron spec %q: %w", s.cronSpec, err)
	}

	runner.Start()
	<-ctx.Done()
	<-runner.Stop().Done()
	return ctx.Err()
}

// Sweep enqueues one low-priority job per active tenant and returns how
// many were enqueued. A single tenant's enqueue failure does not stop
// the sweep; it is logged and the remaining tenants are still covered.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	since := s.now().AddDate(0, 0, -s.activeWindowDays)
	tenants, err := s.signals.ActiveTenants(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("scheduler: active tenants: %w", err)
	}

	enqueued := 0
	for _, tenant := range tenants {
		_, err := s.queue.Enqueue(ctx, tenant, queue.WithPriority(core.PriorityLow))
		if err != nil {
			s.logger.Error("sweep enqueue failed", "tenant_id", tenant, "error", err)
			continue
		}
		enqueued++
	}

	s.logger.Info("sweep completed", "tenants", enqueued)
	s.queue.Emit(&core.SweepCompleted{Tenants: enqueued, Timestamp: s.now()})
	return enqueued, nil
}
