package scheduler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"claims_backend/internal/aitasks"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	removed int64
	err     error
	calls   int
}

func (f *fakeCleaner) CleanupExpired(context.Context) (int64, error) {
	f.calls++
	return f.removed, f.err
}

type fakeFinder struct {
	stuck      []aitasks.StuckClaim
	olderThan  time.Duration
	limit      int
	calls      int
	recovered  int
	recoverErr error
	timeout    time.Duration
}

func (f *fakeFinder) RecoverStalled(_ context.Context, timeout time.Duration, limit int) (int, error) {
	f.timeout = timeout
	return f.recovered, f.recoverErr
}

func (f *fakeFinder) ListStuckClaims(_ context.Context, olderThan time.Duration, limit int) ([]aitasks.StuckClaim, error) {
	f.calls++
	f.olderThan = olderThan
	f.limit = limit
	return f.stuck, nil
}

type fixedLocker struct {
	held bool
	err  error
}

func (l fixedLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return l.held, l.err
}

type fakeProcessor struct {
	processed []uuid.UUID
}

func (p *fakeProcessor) Process(_ context.Context, taskID uuid.UUID) error {
	p.processed = append(p.processed, taskID)
	return nil
}

func TestCleanupIdempotencyRunsUnderLease(t *testing.T) {
	cleaner := &fakeCleaner{removed: 7}
	jobs := NewJobs(cleaner, &fakeFinder{}, fixedLocker{held: true}, 10*time.Minute, logger.Discard())

	removed, err := jobs.CleanupIdempotency(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
	assert.Equal(t, 1, cleaner.calls)
}

func TestCleanupIdempotencySkipsWithoutLease(t *testing.T) {
	cleaner := &fakeCleaner{removed: 7}
	jobs := NewJobs(cleaner, &fakeFinder{}, fixedLocker{held: false}, 10*time.Minute, logger.Discard())

	removed, err := jobs.CleanupIdempotency(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), removed)
	assert.Zero(t, cleaner.calls)
}

func TestCleanupIdempotencyLeaseError(t *testing.T) {
	cleaner := &fakeCleaner{}
	jobs := NewJobs(cleaner, &fakeFinder{}, fixedLocker{err: errors.New("redis down")}, 10*time.Minute, logger.Discard())

	_, err := jobs.CleanupIdempotency(context.Background())
	require.Error(t, err)
	assert.Zero(t, cleaner.calls)
}

func TestScanStuckClaimsAlertsOnBreach(t *testing.T) {
	var buf bytes.Buffer
	finder := &fakeFinder{stuck: []aitasks.StuckClaim{
		{ClaimID: uuid.New(), ClaimNumber: "CLM-2026-000001-001", Total: 3, Completed: 1, CreatedAt: time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)},
		{ClaimID: uuid.New(), ClaimNumber: "CLM-2026-000002-002", Total: 2, Completed: 0, Failed: 1, CreatedAt: time.Date(2026, 6, 15, 8, 30, 0, 0, time.UTC)},
	}}
	jobs := NewJobs(&fakeCleaner{}, finder, nil, 10*time.Minute, logger.NewWithWriter("production", &buf))

	stuck, err := jobs.ScanStuckClaims(context.Background())
	require.NoError(t, err)
	assert.Len(t, stuck, 2)
	assert.Equal(t, 10*time.Minute, finder.olderThan)
	assert.Equal(t, stuckClaimScanLimit, finder.limit)

	out := buf.String()
	assert.Contains(t, out, `"alert":"slo_breach"`)
	assert.Contains(t, out, `"stuck_claims":2`)
	assert.Contains(t, out, `"pending_tasks":3`)
	assert.Contains(t, out, "CLM-2026-000001-001")
}

func TestScanStuckClaimsQuietWhenHealthy(t *testing.T) {
	var buf bytes.Buffer
	jobs := NewJobs(&fakeCleaner{}, &fakeFinder{}, nil, 10*time.Minute, logger.NewWithWriter("production", &buf))

	stuck, err := jobs.ScanStuckClaims(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stuck)
	assert.Empty(t, buf.String())
}

func TestScanStuckClaimsSkipsWithoutLease(t *testing.T) {
	finder := &fakeFinder{}
	jobs := NewJobs(&fakeCleaner{}, finder, fixedLocker{held: false}, 10*time.Minute, logger.Discard())

	_, err := jobs.ScanStuckClaims(context.Background())
	require.NoError(t, err)
	assert.Zero(t, finder.calls)
}

func TestWorkerRunsAITaskFromPayload(t *testing.T) {
	processor := &fakeProcessor{}
	w := &Worker{processor: processor, log: logger.Discard()}
	taskID := uuid.New()

	task, err := NewAITaskRunTask(taskID)
	require.NoError(t, err)
	require.NoError(t, w.handleAITaskRun(context.Background(), task))
	assert.Equal(t, []uuid.UUID{taskID}, processor.processed)
}

func TestWorkerSkipsRetryOnBadPayload(t *testing.T) {
	w := &Worker{processor: &fakeProcessor{}, log: logger.Discard()}

	err := w.handleAITaskRun(context.Background(), asynq.NewTask(TaskAITaskRun, []byte(`{"taskId":"nope"}`)))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRedisOptionsParsesURL(t *testing.T) {
	opt, err := redisOptions("rediss://:secret@cache.internal:6380/2", true)
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)
	require.NotNil(t, opt.TLSConfig)
	assert.True(t, opt.TLSConfig.InsecureSkipVerify)
}

func TestRedisOptionsRequiresURL(t *testing.T) {
	_, err := redisOptions("", false)
	assert.ErrorIs(t, err, errRedisNotConfigured)

	opt, err := redisOptions("redis://localhost:6379/0", false)
	require.NoError(t, err)
	assert.Nil(t, opt.TLSConfig)
}

func TestScanStuckClaimsRecoversStalledTasksFirst(t *testing.T) {
	var buf bytes.Buffer
	finder := &fakeFinder{recovered: 2}
	jobs := NewJobs(&fakeCleaner{}, finder, nil, 10*time.Minute, logger.NewWithWriter("production", &buf))

	_, err := jobs.ScanStuckClaims(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stalledTaskTimeout, finder.timeout)
	assert.Contains(t, buf.String(), `"recovered":2`)
	assert.Equal(t, 1, finder.calls)
}

func TestScanStuckClaimsAlertsWhenRecoveryFails(t *testing.T) {
	finder := &fakeFinder{
		recoverErr: errors.New("connection refused"),
		stuck:      []aitasks.StuckClaim{{ClaimID: uuid.New(), ClaimNumber: "CLM-2026-000003-001", Total: 3}},
	}
	jobs := NewJobs(&fakeCleaner{}, finder, nil, 10*time.Minute, logger.Discard())

	stuck, err := jobs.ScanStuckClaims(context.Background())
	require.NoError(t, err)
	assert.Len(t, stuck, 1)
}
