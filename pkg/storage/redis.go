package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
)

// RedisQueueStore implements core.QueueStore on Redis structures:
//
//   - <prefix>:jobs      hash  job id -> JSON payload
//   - <prefix>:pending   zset  job id scored by ScheduledAt (unix seconds)
//   - <prefix>:inflight  hash  job id -> JSON payload at claim time
//   - <prefix>:dead      list  dropped job payloads (dead letters)
//   - <prefix>:completed counter of completed jobs
//
// The pending-to-inflight move runs in a Lua script, so a job claimed by
// one worker is never visible to a concurrent Dequeue.
type RedisQueueStore struct {
	rdb    *redis.Client
	prefix string
}

// claimScript pops the first due job id from the pending zset and moves
// its payload to the in-flight hash in one atomic step. ARGV[1] is the
// current unix time.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local payload = redis.call('HGET', KEYS[2], id)
redis.call('HSET', KEYS[3], id, payload)
return payload
`)

// NewRedisQueueStore creates a queue store on the given Redis client.
// An empty prefix defaults to "recompute".
func NewRedisQueueStore(rdb *redis.Client, prefix string) *RedisQueueStore {
	if prefix == "" {
		prefix = "recompute"
	}
	return &RedisQueueStore{rdb: rdb, prefix: prefix}
}

func (s *RedisQueueStore) jobsKey() string      { return s.prefix + ":jobs" }
func (s *RedisQueueStore) pendingKey() string   { return s.prefix + ":pending" }
func (s *RedisQueueStore) inflightKey() string  { return s.prefix + ":inflight" }
func (s *RedisQueueStore) deadKey() string      { return s.prefix + ":dead" }
func (s *RedisQueueStore) completedKey() string { return s.prefix + ":completed" }

// Migrate verifies connectivity; Redis needs no schema.
func (s *RedisQueueStore) Migrate(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Enqueue stores the payload and schedules the job id in the pending set.
func (s *RedisQueueStore) Enqueue(ctx context.Context, job *core.RecomputeJob) error {
	if job.TenantID == "" {
		return core.ErrMissingTenant
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusPending
	}
	now := time.Now()
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("storage: marshal job: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.jobsKey(), job.ID, payload)
	pipe.ZAdd(ctx, s.pendingKey(), redis.Z{
		Score:  float64(job.ScheduledAt.Unix()),
		Member: job.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Dequeue atomically claims the next due job.
func (s *RedisQueueStore) Dequeue(ctx context.Context, workerID string) (*core.RecomputeJob, error) {
	keys := []string{s.pendingKey(), s.jobsKey(), s.inflightKey()}
	raw, err := claimScript.Run(ctx, s.rdb, keys, time.Now().Unix()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payload, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("storage: unexpected claim result %T", raw)
	}

	var job core.RecomputeJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("storage: unmarshal claimed job: %w", err)
	}

	now := time.Now()
	job.Status = core.StatusRunning
	job.LockedBy = workerID
	job.StartedAt = &now
	if err := s.writeClaimed(ctx, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// writeClaimed refreshes the stored payload after the claim metadata is set.
func (s *RedisQueueStore) writeClaimed(ctx context.Context, job *core.RecomputeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("storage: marshal claimed job: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.jobsKey(), job.ID, payload)
	pipe.HSet(ctx, s.inflightKey(), job.ID, payload)
	_, err = pipe.Exec(ctx)
	return err
}

// claimed loads an in-flight job and validates ownership.
func (s *RedisQueueStore) claimed(ctx context.Context, jobID, workerID string) (*core.RecomputeJob, error) {
	payload, err := s.rdb.HGet(ctx, s.inflightKey(), jobID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrJobNotOwned
	}
	if err != nil {
		return nil, err
	}

	var job core.RecomputeJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("storage: unmarshal in-flight job: %w", err)
	}
	if job.LockedBy != workerID {
		return nil, core.ErrJobNotOwned
	}
	return &job, nil
}

// Complete removes the job from the in-flight hash and bumps the
// completed counter.
func (s *RedisQueueStore) Complete(ctx context.Context, jobID, workerID string) error {
	if _, err := s.claimed(ctx, jobID, workerID); err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HDel(ctx, s.inflightKey(), jobID)
	pipe.HDel(ctx, s.jobsKey(), jobID)
	pipe.Incr(ctx, s.completedKey())
	_, err := pipe.Exec(ctx)
	return err
}

// Fail re-queues or dead-letters a claimed job.
func (s *RedisQueueStore) Fail(ctx context.Context, jobID, workerID, errMsg string, retryAt *time.Time) error {
	job, err := s.claimed(ctx, jobID, workerID)
	if err != nil {
		return err
	}

	job.LastError = core.TruncateError(errMsg)
	job.LockedBy = ""
	job.StartedAt = nil

	if retryAt != nil {
		job.Status = core.StatusPending
		job.RetryCount++
		job.ScheduledAt = *retryAt

		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("storage: marshal retried job: %w", err)
		}
		pipe := s.rdb.TxPipeline()
		pipe.HDel(ctx, s.inflightKey(), jobID)
		pipe.HSet(ctx, s.jobsKey(), jobID, payload)
		pipe.ZAdd(ctx, s.pendingKey(), redis.Z{
			Score:  float64(retryAt.Unix()),
			Member: jobID,
		})
		_, err = pipe.Exec(ctx)
		return err
	}

	now := time.Now()
	job.Status = core.StatusDropped
	job.CompletedAt = &now

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("storage: marshal dropped job: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HDel(ctx, s.inflightKey(), jobID)
	pipe.HDel(ctx, s.jobsKey(), jobID)
	pipe.LPush(ctx, s.deadKey(), payload)
	_, err = pipe.Exec(ctx)
	return err
}

// InFlight returns the claimed jobs, oldest first.
func (s *RedisQueueStore) InFlight(ctx context.Context) ([]*core.RecomputeJob, error) {
	payloads, err := s.rdb.HVals(ctx, s.inflightKey()).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*core.RecomputeJob, 0, len(payloads))
	for _, p := range payloads {
		var job core.RecomputeJob
		if err := json.Unmarshal([]byte(p), &job); err != nil {
			return nil, fmt.Errorf("storage: unmarshal in-flight job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	// HVALS has no ordering; sort oldest claim first.
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i].StartedAt, jobs[j].StartedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.Before(*b)
	})
	return jobs, nil
}

// Status reads the three list sizes in O(1).
func (s *RedisQueueStore) Status(ctx context.Context) (core.QueueStatus, error) {
	pipe := s.rdb.Pipeline()
	pending := pipe.ZCard(ctx, s.pendingKey())
	inflight := pipe.HLen(ctx, s.inflightKey())
	completed := pipe.Get(ctx, s.completedKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return core.QueueStatus{}, err
	}

	status := core.QueueStatus{
		Pending:  pending.Val(),
		InFlight: inflight.Val(),
	}
	if n, err := completed.Int64(); err == nil {
		status.Completed = n
	}
	return status, nil
}

// DeadLetters returns up to limit of the most recently dropped jobs.
func (s *RedisQueueStore) DeadLetters(ctx context.Context, limit int64) ([]*core.RecomputeJob, error) {
	payloads, err := s.rdb.LRange(ctx, s.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*core.RecomputeJob, 0, len(payloads))
	for _, p := range payloads {
		var job core.RecomputeJob
		if err := json.Unmarshal([]byte(p), &job); err != nil {
			return nil, fmt.Errorf("storage: unmarshal dead letter: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}
