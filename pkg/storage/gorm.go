package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
)

// signalRecord maps the signal_records table. The table is owned by the
// ingestion pipeline and only ever read here; it is included in Migrate
// so local and test databases come up self-contained.
type signalRecord struct {
	ID           uint      `gorm:"primaryKey"`
	TenantID     string    `gorm:"index:idx_signal_tenant_date;size:255;not null"`
	Date         time.Time `gorm:"index:idx_signal_tenant_date"`
	Engagement   *float64
	GeoRelevance *float64
	UGCHealth    *float64
}

func (signalRecord) TableName() string { return "signal_records" }

// GormStore implements the queue store, the summary and event sinks,
// and the signal source on one GORM database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.RecomputeJob{},
		&core.TenantScoreSummary{},
		&core.ScoreEvent{},
		&signalRecord{},
	)
}

// Enqueue appends a job to the pending set. Duplicate tenants are fine;
// the queue never deduplicates.
func (s *GormStore) Enqueue(ctx context.Context, job *core.RecomputeJob) error {
	if job.TenantID == "" {
		return core.ErrMissingTenant
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusPending
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// Dequeue claims the next due pending job. The claim is a guarded
// update: only the caller whose UPDATE still finds the row pending
// wins it. Under SQLite the file lock makes the race moot; under
// PostgreSQL READ COMMITTED a concurrent claimer blocks on the row
// lock, re-evaluates the WHERE after commit, matches zero rows and
// moves on to the next candidate. Two workers can never hold the same
// job.
func (s *GormStore) Dequeue(ctx context.Context, workerID string) (*core.RecomputeJob, error) {
	now := time.Now()

	for {
		var job core.RecomputeJob
		err := s.db.WithContext(ctx).
			Where("status = ?", core.StatusPending).
			Where("scheduled_at <= ?", now).
			Order("priority DESC, created_at ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		result := s.db.WithContext(ctx).
			Model(&core.RecomputeJob{}).
			Where("id = ? AND status = ?", job.ID, core.StatusPending).
			Updates(map[string]any{
				"status":     core.StatusRunning,
				"locked_by":  workerID,
				"started_at": now,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the claim to a concurrent worker; try the next row.
			continue
		}

		job.Status = core.StatusRunning
		job.LockedBy = workerID
		job.StartedAt = &now
		return &job, nil
	}
}

// Complete removes a job from the in-flight set as succeeded.
func (s *GormStore) Complete(ctx context.Context, jobID, workerID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.RecomputeJob{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Updates(map[string]any{
			"status":       core.StatusCompleted,
			"completed_at": now,
			"locked_by":    "",
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// Fail removes a job from the in-flight set after a failure. A non-nil
// retryAt re-queues it with RetryCount+1; nil drops it. Dropped rows are
// retained as the dead-letter trace for exhausted jobs.
func (s *GormStore) Fail(ctx context.Context, jobID, workerID, errMsg string, retryAt *time.Time) error {
	updates := map[string]any{
		"last_error": core.TruncateError(errMsg),
		"locked_by":  "",
	}

	if retryAt != nil {
		updates["status"] = core.StatusPending
		updates["scheduled_at"] = *retryAt
		updates["retry_count"] = gorm.Expr("retry_count + 1")
		updates["started_at"] = nil
	} else {
		updates["status"] = core.StatusDropped
		updates["completed_at"] = time.Now()
	}

	result := s.db.WithContext(ctx).
		Model(&core.RecomputeJob{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// InFlight returns the claimed jobs, oldest first.
func (s *GormStore) InFlight(ctx context.Context) ([]*core.RecomputeJob, error) {
	var jobs []*core.RecomputeJob
	err := s.db.WithContext(ctx).
		Where("status = ?", core.StatusRunning).
		Order("started_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// StaleInFlight returns claimed jobs that have been running longer than
// olderThan. The orchestrator never reaps them itself; this exists so
// operational tooling can see orphans left by a crashed worker.
func (s *GormStore) StaleInFlight(ctx context.Context, olderThan time.Duration) ([]*core.RecomputeJob, error) {
	cutoff := time.Now().Add(-olderThan)
	var jobs []*core.RecomputeJob
	err := s.db.WithContext(ctx).
		Where("status = ?", core.StatusRunning).
		Where("started_at < ?", cutoff).
		Order("started_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// Status counts jobs per list. The status column is indexed, so each
// count stays cheap as the completed set grows.
func (s *GormStore) Status(ctx context.Context) (core.QueueStatus, error) {
	var status core.QueueStatus
	counts := []struct {
		state core.JobStatus
		dest  *int64
	}{
		{core.StatusPending, &status.Pending},
		{core.StatusRunning, &status.InFlight},
		{core.StatusCompleted, &status.Completed},
	}
	for _, c := range counts {
		err := s.db.WithContext(ctx).
			Model(&core.RecomputeJob{}).
			Where("status = ?", c.state).
			Count(c.dest).Error
		if err != nil {
			return core.QueueStatus{}, err
		}
	}
	return status, nil
}

// Upsert writes the latest summary for a tenant. The row is keyed by
// tenant_id and fully overwritten, so replays and out-of-order writers
// converge on the last write.
func (s *GormStore) Upsert(ctx context.Context, summary *core.TenantScoreSummary) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(summary).Error
}

// Append writes one audit event. Events are insert-only.
func (s *GormStore) Append(ctx context.Context, event *core.ScoreEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.EventType == "" {
		event.EventType = core.EventTypeRecompute
	}
	return s.db.WithContext(ctx).Create(event).Error
}

// Window returns a tenant's signal records dated on or after since,
// newest first.
func (s *GormStore) Window(ctx context.Context, tenantID string, since time.Time) (core.SignalWindow, error) {
	var rows []signalRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("date >= ?", since).
		Order("date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	window := make(core.SignalWindow, 0, len(rows))
	for _, r := range rows {
		window = append(window, core.SignalRecord{
			Date:         r.Date,
			Engagement:   r.Engagement,
			GeoRelevance: r.GeoRelevance,
			UGCHealth:    r.UGCHealth,
		})
	}
	return window, nil
}

// ActiveTenants returns the tenants with any record dated on or after
// since.
func (s *GormStore) ActiveTenants(ctx context.Context, since time.Time) ([]string, error) {
	var tenants []string
	err := s.db.WithContext(ctx).
		Model(&signalRecord{}).
		Where("date >= ?", since).
		Distinct().
		Order("tenant_id ASC").
		Pluck("tenant_id", &tenants).Error
	return tenants, err
}
