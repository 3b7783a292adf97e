package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/queue"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/storage"
)

func fptr(v float64) *float64 { return &v }

// fakeSignals serves a canned window or error, counting calls.
type fakeSignals struct {
	window core.SignalWindow
	err    error
	panics bool
	calls  int
}

func (f *fakeSignals) Window(_ context.Context, _ string, _ time.Time) (core.SignalWindow, error) {
	f.calls++
	if f.panics {
		panic("corrupt signal row")
	}
	return f.window, f.err
}

func (f *fakeSignals) ActiveTenants(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

// memSink records summaries and events in memory. failAppends makes the
// first N event appends fail.
type memSink struct {
	summaries   map[string]*core.TenantScoreSummary
	events      []*core.ScoreEvent
	failAppends int
}

func newMemSink() *memSink {
	return &memSink{summaries: make(map[string]*core.TenantScoreSummary)}
}

func (m *memSink) Upsert(_ context.Context, s *core.TenantScoreSummary) error {
	cp := *s
	m.summaries[s.TenantID] = &cp
	return nil
}

func (m *memSink) Append(_ context.Context, e *core.ScoreEvent) error {
	if m.failAppends > 0 {
		m.failAppends--
		return errors.New("event store unavailable")
	}
	m.events = append(m.events, e)
	return nil
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := storage.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return queue.New(store)
}

// fastRetry keeps bookkeeping retries from slowing tests down.
func fastRetry() Option {
	return WithStorageRetry(RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1.0,
	})
}

// pastClock pins the worker clock an hour in the past so retry
// schedules computed from it are immediately due against wall time.
func pastClock() func() time.Time {
	at := time.Now().Add(-time.Hour)
	return func() time.Time { return at }
}

func stableWindow(days int) core.SignalWindow {
	window := make(core.SignalWindow, 0, days)
	for i := 0; i < days; i++ {
		window = append(window, core.SignalRecord{
			Date:         time.Now().AddDate(0, 0, -i),
			Engagement:   fptr(50),
			GeoRelevance: fptr(40),
			UGCHealth:    fptr(30),
		})
	}
	return window
}

func collectEvents(ch <-chan core.Event) []core.Event {
	var events []core.Event
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestWorker_SuccessWritesSummaryAndEvent(t *testing.T) {
	q := newTestQueue(t)
	signals := &fakeSignals{window: stableWindow(10)}
	sink := newMemSink()
	w := New(q, signals, sink, sink, WithWorkerID("worker-a"), fastRetry())

	ctx := context.Background()
	sub := q.Events()
	defer q.Unsubscribe(sub)

	_, err := q.Enqueue(ctx, "dealer-1")
	require.NoError(t, err)

	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	summary := sink.summaries["dealer-1"]
	require.NotNil(t, summary)
	// 50*0.40 + 40*0.35 + 30*0.25 with zero volatility.
	assert.InDelta(t, 41.5, summary.Score, 0.001)
	assert.InDelta(t, 0.2, summary.RiskLevel, 0.001)
	assert.Equal(t, 10, summary.Metrics.DataPoints)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "dealer-1", sink.events[0].TenantID)
	assert.Equal(t, core.EventTypeRecompute, sink.events[0].EventType)
	assert.NotEmpty(t, sink.events[0].Payload)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.Completed)
	assert.Zero(t, status.Pending)
	assert.Zero(t, status.InFlight)

	events := collectEvents(sub)
	require.Len(t, events, 2)
	assert.IsType(t, &core.JobStarted{}, events[0])
	completed, ok := events[1].(*core.JobCompleted)
	require.True(t, ok)
	assert.InDelta(t, 41.5, completed.Summary.Score, 0.001)
}

func TestWorker_InsufficientDataCompletesWithoutWrites(t *testing.T) {
	q := newTestQueue(t)
	// Records exist but none carry engagement, so scoring declines.
	signals := &fakeSignals{window: core.SignalWindow{
		{Date: time.Now(), GeoRelevance: fptr(80)},
		{Date: time.Now().AddDate(0, 0, -1), UGCHealth: fptr(60)},
	}}
	sink := newMemSink()
	w := New(q, signals, sink, sink, fastRetry())

	ctx := context.Background()
	sub := q.Events()
	defer q.Unsubscribe(sub)

	_, err := q.Enqueue(ctx, "dealer-1")
	require.NoError(t, err)

	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	assert.Empty(t, sink.summaries)
	assert.Empty(t, sink.events)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.Completed, "skip is completion, not failure")

	events := collectEvents(sub)
	require.Len(t, events, 2)
	skipped, ok := events[1].(*core.JobSkipped)
	require.True(t, ok)
	assert.Equal(t, "insufficient data", skipped.Reason)
}

func TestWorker_EmptyWindowIsRetried(t *testing.T) {
	q := newTestQueue(t)
	signals := &fakeSignals{window: core.SignalWindow{}}
	sink := newMemSink()
	now := time.Now()
	w := New(q, signals, sink, sink,
		fastRetry(),
		WithClock(func() time.Time { return now }))

	ctx := context.Background()
	sub := q.Events()
	defer q.Unsubscribe(sub)

	_, err := q.Enqueue(ctx, "dealer-1")
	require.NoError(t, err)

	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.Pending, "failed job goes back to pending")
	assert.Zero(t, status.InFlight)

	events := collectEvents(sub)
	require.Len(t, events, 2)
	retrying, ok := events[1].(*core.JobRetrying)
	require.True(t, ok)
	assert.Equal(t, 1, retrying.Attempt)
	assert.ErrorIs(t, retrying.Error, core.ErrNoSignalData)
	// First retry waits 2^0 = 1 minute.
	assert.Equal(t, now.Add(time.Minute), retrying.NextRunAt)
}

func TestWorker_PersistentFailureDropsAfterRetryBudget(t *testing.T) {
	q := newTestQueue(t)
	signals := &fakeSignals{err: errors.New("signal store down")}
	sink := newMemSink()
	w := New(q, signals, sink, sink,
		fastRetry(),
		WithClock(pastClock()))

	ctx := context.Background()
	sub := q.Events()
	defer q.Unsubscribe(sub)

	_, err := q.Enqueue(ctx, "dealer-1") // default maxRetries = 3
	require.NoError(t, err)

	// Retry schedules land in the past, so one drain covers the whole
	// lifecycle: three attempts, then the drop.
	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, processed, "a job with maxRetries=3 is attempted exactly 3 times")
	assert.Equal(t, 3, signals.calls)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending)
	assert.Zero(t, status.InFlight)
	assert.Zero(t, status.Completed, "dropped jobs are not completions")

	var dropped, retries int
	for _, e := range collectEvents(sub) {
		switch e.(type) {
		case *core.JobRetrying:
			retries++
		case *core.JobDropped:
			dropped++
		}
	}
	assert.Equal(t, 2, retries)
	assert.Equal(t, 1, dropped, "the drop is always reported")
}

func TestWorker_NoRetryErrorDropsImmediately(t *testing.T) {
	q := newTestQueue(t)
	signals := &fakeSignals{err: core.NoRetry(errors.New("tenant deleted"))}
	sink := newMemSink()
	w := New(q, signals, sink, sink,
		fastRetry(),
		WithClock(pastClock()))

	ctx := context.Background()
	sub := q.Events()
	defer q.Unsubscribe(sub)

	_, err := q.Enqueue(ctx, "dealer-1")
	require.NoError(t, err)

	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed, "no-retry failures skip the budget")

	var dropped int
	for _, e := range collectEvents(sub) {
		if _, ok := e.(*core.JobDropped); ok {
			dropped++
		}
	}
	assert.Equal(t, 1, dropped)
}

func TestWorker_PanicIsContainedAndRetried(t *testing.T) {
	q := newTestQueue(t)
	signals := &fakeSignals{panics: true}
	sink := newMemSink()
	w := New(q, signals, sink, sink,
		fastRetry(),
		WithClock(pastClock()))

	ctx := context.Background()
	_, err := q.Enqueue(ctx, "dealer-1")
	require.NoError(t, err)

	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, processed, "panics follow the same retry path as errors")

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending)
	assert.Zero(t, status.InFlight)
}

func TestWorker_EventAppendFailureRetriesThenConverges(t *testing.T) {
	q := newTestQueue(t)
	signals := &fakeSignals{window: stableWindow(10)}
	sink := newMemSink()
	sink.failAppends = 1
	w := New(q, signals, sink, sink,
		fastRetry(),
		WithClock(pastClock()))

	ctx := context.Background()
	_, err := q.Enqueue(ctx, "dealer-1")
	require.NoError(t, err)

	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, processed, "failed append retries the whole job")

	// The first attempt upserted before the append failed; the retry
	// upserted again. Idempotence leaves exactly one summary.
	require.Len(t, sink.summaries, 1)
	require.Len(t, sink.events, 1)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.Completed)
}

func TestWorker_RunOnceDrainsAllEligibleJobs(t *testing.T) {
	q := newTestQueue(t)
	signals := &fakeSignals{window: stableWindow(10)}
	sink := newMemSink()
	w := New(q, signals, sink, sink, fastRetry())

	ctx := context.Background()
	for _, tenant := range []string{"dealer-1", "dealer-2", "dealer-3"} {
		_, err := q.Enqueue(ctx, tenant)
		require.NoError(t, err)
	}

	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Len(t, sink.summaries, 3)
}

func TestWorker_SameTenantLastWriterWins(t *testing.T) {
	q := newTestQueue(t)
	sink := newMemSink()

	// Two workers hold one job each for the same tenant and complete in
	// a fixed order: B first with a one-record window, then A with a
	// ten-day window. The summary must deterministically reflect the
	// last completed write, not enqueue order.
	richWindow := stableWindow(10) // scores 41.5
	sparseWindow := core.SignalWindow{{
		Date:         time.Now(),
		Engagement:   fptr(80),
		GeoRelevance: fptr(70),
		UGCHealth:    fptr(60),
	}} // scores 71.5

	workerA := New(q, &fakeSignals{window: richWindow}, sink, sink,
		WithWorkerID("worker-a"), fastRetry())
	workerB := New(q, &fakeSignals{window: sparseWindow}, sink, sink,
		WithWorkerID("worker-b"), fastRetry())

	ctx := context.Background()
	_, err := q.Enqueue(ctx, "dealer-1")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "dealer-1")
	require.NoError(t, err)

	jobA, err := q.Dequeue(ctx, workerA.ID())
	require.NoError(t, err)
	require.NotNil(t, jobA)
	jobB, err := q.Dequeue(ctx, workerB.ID())
	require.NoError(t, err)
	require.NotNil(t, jobB)

	workerB.processJob(ctx, jobB)
	workerA.processJob(ctx, jobA)

	require.Len(t, sink.summaries, 1, "same tenant converges on one summary")
	summary := sink.summaries["dealer-1"]
	assert.InDelta(t, 41.5, summary.Score, 0.001, "last completed write wins")
	assert.Equal(t, 10, summary.Metrics.DataPoints)
	require.Len(t, sink.events, 2, "both completions are audited")

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, status.Completed)
	assert.Zero(t, status.InFlight)
}

func TestWorker_StartStopsOnContextCancel(t *testing.T) {
	q := newTestQueue(t)
	signals := &fakeSignals{window: stableWindow(10)}
	sink := newMemSink()
	w := New(q, signals, sink, sink,
		fastRetry(),
		WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestBackoff_DoublesPerRetry(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(0))
	assert.Equal(t, 2*time.Minute, Backoff(1))
	assert.Equal(t, 4*time.Minute, Backoff(2))
	assert.Equal(t, 8*time.Minute, Backoff(3))
}
