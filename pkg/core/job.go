package core

import (
	"fmt"
	"time"
)

// JobStatus represents the current state of a recompute job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusDropped   JobStatus = "dropped"
)

// Priority orders eligible jobs relative to each other. It never preempts
// a running job; a higher priority only means the job is claimed first
// when several are due at the same time.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String returns the wire representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority converts a wire string into a Priority.
// Unknown values are rejected so invalid priorities never enter the queue.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// MarshalText implements encoding.TextMarshaler so priorities serialize
// as "low"/"medium"/"high" in JSON payloads.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RecomputeJob is one request to recompute a tenant's score.
//
// A job lives in the pending set until a worker claims it, moves to the
// in-flight set while processed, and ends up completed or dropped. On a
// retryable failure it is re-queued with RetryCount+1 and a future
// ScheduledAt. Duplicate jobs for the same tenant are allowed; the
// idempotent summary upsert reconciles them.
//
// Priority and MaxRetries carry no gorm column default: GORM skips
// zero-valued fields on insert when a default tag is present, which
// would silently rewrite low priority (0) and a zero retry budget.
// Defaults are applied in code at enqueue time instead.
type RecomputeJob struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	TenantID    string     `gorm:"index;size:255;not null" json:"tenantId"`
	Priority    Priority   `gorm:"index" json:"priority"`
	Status      JobStatus  `gorm:"index;size:20" json:"status"`
	RetryCount  int        `json:"retryCount"`
	MaxRetries  int        `json:"maxRetries"`
	ScheduledAt time.Time  `gorm:"index" json:"scheduledAt"`
	LastError   string     `gorm:"type:text" json:"lastError,omitempty"`
	LockedBy    string     `gorm:"size:255" json:"lockedBy,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}
