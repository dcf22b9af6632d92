package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"claims_backend/platform/apperr"
	"claims_backend/platform/clock"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the SQL semantics of Repository.
type memStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]Record)}
}

func (s *memStore) Get(_ context.Context, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, apperr.NotFound("idempotency record not found")
	}
	return rec, nil
}

func (s *memStore) DeleteIfExpired(_ context.Context, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok && !rec.ExpiresAt.After(now) {
		delete(s.records, key)
	}
	return nil
}

func (s *memStore) InsertPending(_ context.Context, p PendingParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[p.Key]; ok && rec.Status != StatusFailed && rec.ExpiresAt.After(p.Now) {
		return false, nil
	}
	s.records[p.Key] = Record{
		Key: p.Key, Status: StatusPending, RequestHash: p.RequestHash,
		ExpiresAt: p.ExpiresAt, CreatedAt: p.Now, UpdatedAt: p.Now,
	}
	return true, nil
}

func (s *memStore) MarkCompleted(_ context.Context, _ pgx.Tx, p CompletedParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[p.Key]
	if ok && rec.Status == StatusCompleted {
		return nil
	}
	if !ok {
		rec = Record{Key: p.Key, ExpiresAt: p.ExpiresAt, CreatedAt: p.Now}
	}
	claimID := p.ClaimID
	rec.Status = StatusCompleted
	rec.ClaimID = &claimID
	rec.ResponseBody = p.ResponseBody
	rec.ErrorMessage = nil
	rec.UpdatedAt = p.Now
	s.records[p.Key] = rec
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, key, message string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Status != StatusPending {
		return nil
	}
	rec.Status = StatusFailed
	rec.ErrorMessage = &message
	rec.UpdatedAt = now
	s.records[key] = rec
	return nil
}

func (s *memStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

func newTestLedger() (*Ledger, *memStore, *clock.Fake) {
	store := newMemStore()
	clk := clock.NewFake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	return NewLedger(store, 24*time.Hour, clk, logger.Discard()), store, clk
}

func TestCheckMissReturnsNil(t *testing.T) {
	ledger, _, _ := newTestLedger()
	cached, err := ledger.Check(context.Background(), "k1", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCompletedRecordReplaysStoredBytes(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger()
	req := []byte(`{"policyId":"P1"}`)
	body := []byte(`{"id":"x","claimId":"CLM-2026-000001-001"}`)
	claimID := uuid.New()

	require.NoError(t, ledger.Create(ctx, "k1", req))
	require.NoError(t, ledger.MarkCompleted(ctx, "k1", claimID, body))

	cached, err := ledger.Check(ctx, "k1", req)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, claimID, cached.ClaimID)
	assert.Equal(t, body, cached.Body)
}

func TestPendingRecordIsNotReplayedAndBlocksCreate(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger()
	require.NoError(t, ledger.Create(ctx, "k1", []byte(`{}`)))

	cached, err := ledger.Check(ctx, "k1", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, cached)

	err = ledger.Create(ctx, "k1", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeIdempotencyInFlight))
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestFailedRecordCanBeRetaken(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newTestLedger()
	require.NoError(t, ledger.Create(ctx, "k1", []byte(`{}`)))
	require.NoError(t, ledger.MarkFailed(ctx, "k1", "policy inactive"))
	require.NoError(t, ledger.MarkFailed(ctx, "k1", "again"))

	cached, err := ledger.Check(ctx, "k1", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, cached)

	require.NoError(t, ledger.Create(ctx, "k1", []byte(`{}`)))
	assert.Equal(t, StatusPending, store.records["k1"].Status)
}

func TestExpiredRecordIsPurgedOnRead(t *testing.T) {
	ctx := context.Background()
	ledger, store, clk := newTestLedger()
	require.NoError(t, ledger.Create(ctx, "k1", []byte(`{}`)))
	require.NoError(t, ledger.MarkCompleted(ctx, "k1", uuid.New(), []byte(`{}`)))

	clk.Advance(24 * time.Hour)
	cached, err := ledger.Check(ctx, "k1", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, cached)
	_, present := store.records["k1"]
	assert.False(t, present)
}

func TestReusedKeyWithDifferentBodyConflicts(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger()
	require.NoError(t, ledger.Create(ctx, "k1", []byte(`{"claimedAmount":100}`)))
	require.NoError(t, ledger.MarkCompleted(ctx, "k1", uuid.New(), []byte(`{}`)))

	_, err := ledger.Check(ctx, "k1", []byte(`{"claimedAmount":900}`))
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeIdempotencyKeyReused))
}

func TestMarkCompletedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger()
	first := uuid.New()
	require.NoError(t, ledger.Create(ctx, "k1", []byte(`{}`)))
	require.NoError(t, ledger.MarkCompleted(ctx, "k1", first, []byte(`"first"`)))
	require.NoError(t, ledger.MarkCompleted(ctx, "k1", uuid.New(), []byte(`"second"`)))

	cached, err := ledger.Check(ctx, "k1", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, first, cached.ClaimID)
	assert.Equal(t, []byte(`"first"`), cached.Body)
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	ledger, _, clk := newTestLedger()
	require.NoError(t, ledger.Create(ctx, "old", []byte(`{}`)))
	clk.Advance(23 * time.Hour)
	require.NoError(t, ledger.Create(ctx, "new", []byte(`{}`)))
	clk.Advance(2 * time.Hour)

	removed, err := ledger.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestValidateKey(t *testing.T) {
	assert.Error(t, ValidateKey("  "))
	assert.Error(t, ValidateKey(string(make([]byte, 300))))
	assert.NoError(t, ValidateKey("b6f1c1d2-3c0e-4bbd-8a8e-1f7ad5c0f0a1"))
}
