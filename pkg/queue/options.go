package queue

import (
	"time"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
)

// DefaultMaxRetries is applied to jobs enqueued without an explicit
// retry budget.
const DefaultMaxRetries = 3

// Options holds configuration for one enqueued job.
type Options struct {
	Priority    core.Priority
	MaxRetries  int
	Delay       time.Duration
	ScheduledAt *time.Time
}

// NewOptions creates Options with defaults: medium priority, the
// default retry budget, eligible immediately.
func NewOptions() *Options {
	return &Options{
		Priority:   core.PriorityMedium,
		MaxRetries: DefaultMaxRetries,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// WithPriority sets the scheduling priority.
func WithPriority(p core.Priority) Option {
	return optionFunc(func(o *Options) {
		o.Priority = p
	})
}

// WithMaxRetries sets the retry budget. Values are clamped to
// [0, core.MaxRetryLimit].
func WithMaxRetries(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxRetries = core.ClampRetries(n)
	})
}

// WithDelay makes the job eligible only after a duration.
func WithDelay(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Delay = d
	})
}

// WithScheduledAt makes the job eligible at a specific time.
func WithScheduledAt(t time.Time) Option {
	return optionFunc(func(o *Options) {
		o.ScheduledAt = &t
	})
}
