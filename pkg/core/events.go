package core

import "time"

// Event is the interface for all queue events.
type Event interface {
	eventMarker()
}

// JobStarted is emitted when a worker claims a job.
type JobStarted struct {
	Job       *RecomputeJob
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job finishes and its summary was written.
type JobCompleted struct {
	Job       *RecomputeJob
	Summary   *TenantScoreSummary
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobSkipped is emitted when scoring reported insufficient data. The job
// is done but nothing was written; this is not a failure.
type JobSkipped struct {
	Job       *RecomputeJob
	Reason    string
	Timestamp time.Time
}

func (*JobSkipped) eventMarker() {}

// JobRetrying is emitted when a failed job is re-queued with backoff.
type JobRetrying struct {
	Job       *RecomputeJob
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

func (*JobRetrying) eventMarker() {}

// JobDropped is emitted when a job exhausts its retry budget. This is
// the terminal failure report; it is never emitted silently alongside
// discarding the job.
type JobDropped struct {
	Job       *RecomputeJob
	Error     error
	Timestamp time.Time
}

func (*JobDropped) eventMarker() {}

// SweepCompleted is emitted after a scheduler sweep enqueued jobs for
// the active tenants.
type SweepCompleted struct {
	Tenants   int
	Timestamp time.Time
}

func (*SweepCompleted) eventMarker() {}
