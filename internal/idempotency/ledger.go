// Package idempotency records submission keys so that a retried claim
// submission replays the first response instead of creating a second claim.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"claims_backend/platform/apperr"
	"claims_backend/platform/clock"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const maxKeyLength = 255

// Status of a ledger record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one row of the ledger.
type Record struct {
	Key          string
	Status       Status
	RequestHash  string
	ResponseBody []byte
	ClaimID      *uuid.UUID
	ErrorMessage *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CachedResponse is what a replayed submission returns.
type CachedResponse struct {
	ClaimID uuid.UUID
	Body    []byte
}

// PendingParams describes a new in-flight record.
type PendingParams struct {
	Key         string
	RequestBody []byte
	RequestHash string
	Now         time.Time
	ExpiresAt   time.Time
}

// CompletedParams describes the terminal success write.
type CompletedParams struct {
	Key          string
	ClaimID      uuid.UUID
	ResponseBody []byte
	Now          time.Time
	ExpiresAt    time.Time
}

// Store persists ledger records. A nil tx means the store's own pool.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	DeleteIfExpired(ctx context.Context, key string, now time.Time) error
	InsertPending(ctx context.Context, p PendingParams) (bool, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, p CompletedParams) error
	MarkFailed(ctx context.Context, key, message string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Ledger implements check, create and finalize on top of a Store.
type Ledger struct {
	store Store
	ttl   time.Duration
	clock clock.Clock
	log   *logger.Logger
}

// NewLedger builds a ledger whose records live for ttl.
func NewLedger(store Store, ttl time.Duration, clk clock.Clock, log *logger.Logger) *Ledger {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Ledger{store: store, ttl: ttl, clock: clk, log: log}
}

// RequestHash fingerprints the canonical request bytes.
func RequestHash(request []byte) string {
	sum := sha256.Sum256(request)
	return hex.EncodeToString(sum[:])
}

// ValidateKey rejects empty or oversized keys.
func ValidateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return apperr.Validation("Idempotency-Key header is required").WithCode(apperr.CodeValidationFailed)
	}
	if len(trimmed) > maxKeyLength {
		return apperr.Validation("Idempotency-Key is too long").WithCode(apperr.CodeValidationFailed)
	}
	return nil
}

// Check returns the stored response when a completed, unexpired record exists
// for key. Expired records are purged. A completed record whose request hash
// differs from request is reported as a reused key.
func (l *Ledger) Check(ctx context.Context, key string, request []byte) (*CachedResponse, error) {
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := l.clock.Now()
	if !now.Before(rec.ExpiresAt) {
		if err := l.store.DeleteIfExpired(ctx, key, now); err != nil {
			l.log.Warn("failed to purge expired idempotency record", "key", key, "error", err)
		}
		return nil, nil
	}

	if rec.Status != StatusCompleted || rec.ClaimID == nil {
		return nil, nil
	}
	if rec.RequestHash != "" && request != nil && rec.RequestHash != RequestHash(request) {
		return nil, apperr.Conflict("Idempotency-Key was already used for a different request").
			WithCode(apperr.CodeIdempotencyKeyReused)
	}

	return &CachedResponse{ClaimID: *rec.ClaimID, Body: rec.ResponseBody}, nil
}

// Create inserts a pending record. A failed or expired record under the same
// key is taken over. A live record yields an in-flight conflict.
func (l *Ledger) Create(ctx context.Context, key string, request []byte) error {
	now := l.clock.Now()
	inserted, err := l.store.InsertPending(ctx, PendingParams{
		Key:         key,
		RequestBody: request,
		RequestHash: RequestHash(request),
		Now:         now,
		ExpiresAt:   now.Add(l.ttl),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return apperr.Conflict("a request with this Idempotency-Key is already being processed").
			WithCode(apperr.CodeIdempotencyInFlight)
	}
	return nil
}

// MarkCompleted stores the response outside any transaction.
func (l *Ledger) MarkCompleted(ctx context.Context, key string, claimID uuid.UUID, body []byte) error {
	return l.MarkCompletedTx(ctx, nil, key, claimID, body)
}

// MarkCompletedTx stores the response inside tx so it commits with the claim.
func (l *Ledger) MarkCompletedTx(ctx context.Context, tx pgx.Tx, key string, claimID uuid.UUID, body []byte) error {
	now := l.clock.Now()
	return l.store.MarkCompleted(ctx, tx, CompletedParams{
		Key:          key,
		ClaimID:      claimID,
		ResponseBody: body,
		Now:          now,
		ExpiresAt:    now.Add(l.ttl),
	})
}

// MarkFailed releases the key so the client may retry with it.
func (l *Ledger) MarkFailed(ctx context.Context, key, message string) error {
	return l.store.MarkFailed(ctx, key, message, l.clock.Now())
}

// CleanupExpired deletes every record past its expiry.
func (l *Ledger) CleanupExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpired(ctx, l.clock.Now())
}
