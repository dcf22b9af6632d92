package idempotency

import (
	"context"
	"errors"
	"time"

	"claims_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGet             = "idempotency.repository.get"
	opDeleteIfExpired = "idempotency.repository.delete_if_expired"
	opInsertPending   = "idempotency.repository.insert_pending"
	opMarkCompleted   = "idempotency.repository.mark_completed"
	opMarkFailed      = "idempotency.repository.mark_failed"
	opDeleteExpired   = "idempotency.repository.delete_expired"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT key, status, request_hash, response_body, claim_id, error_message, expires_at, created_at, updated_at
		FROM idempotency_records
		WHERE key = $1
	`, key).Scan(
		&rec.Key, &status, &rec.RequestHash, &rec.ResponseBody, &rec.ClaimID, &rec.ErrorMessage,
		&rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, apperr.NotFound("idempotency record not found").WithOp(opGet)
		}
		return Record{}, apperr.Wrap(apperr.KindInternal, "load idempotency record failed", err).WithOp(opGet)
	}
	rec.Status = Status(status)
	return rec, nil
}

func (r *Repository) DeleteIfExpired(ctx context.Context, key string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1 AND expires_at <= $2`, key, now)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "purge idempotency record failed", err).WithOp(opDeleteIfExpired)
	}
	return nil
}

// InsertPending reports false when a live record already holds the key.
// Conflicting inserts serialize on the primary key.
func (r *Repository) InsertPending(ctx context.Context, p PendingParams) (bool, error) {
	var key string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO idempotency_records (key, status, request_body, request_hash, expires_at, created_at, updated_at)
		VALUES ($1, 'pending', $2, $3, $4, $5, $5)
		ON CONFLICT (key) DO UPDATE SET
			status = 'pending',
			request_body = EXCLUDED.request_body,
			request_hash = EXCLUDED.request_hash,
			response_body = NULL,
			claim_id = NULL,
			error_message = NULL,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		WHERE idempotency_records.status = 'failed' OR idempotency_records.expires_at <= $5
		RETURNING key
	`, p.Key, jsonOrNil(p.RequestBody), p.RequestHash, p.ExpiresAt, p.Now).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.KindInternal, "create idempotency record failed", err).WithOp(opInsertPending)
	}
	return true, nil
}

func (r *Repository) MarkCompleted(ctx context.Context, tx pgx.Tx, p CompletedParams) error {
	var db execer = r.pool
	if tx != nil {
		db = tx
	}
	_, err := db.Exec(ctx, `
		INSERT INTO idempotency_records (key, status, response_body, claim_id, expires_at, created_at, updated_at)
		VALUES ($1, 'completed', $2, $3, $4, $5, $5)
		ON CONFLICT (key) DO UPDATE SET
			status = 'completed',
			response_body = EXCLUDED.response_body,
			claim_id = EXCLUDED.claim_id,
			error_message = NULL,
			updated_at = EXCLUDED.updated_at
		WHERE idempotency_records.status <> 'completed'
	`, p.Key, p.ResponseBody, p.ClaimID, p.ExpiresAt, p.Now)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "complete idempotency record failed", err).WithOp(opMarkCompleted)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, key, message string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE idempotency_records
		SET status = 'failed', error_message = $2, updated_at = $3
		WHERE key = $1 AND status = 'pending'
	`, key, message, now)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "fail idempotency record failed", err).WithOp(opMarkFailed)
	}
	return nil
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "cleanup idempotency records failed", err).WithOp(opDeleteExpired)
	}
	return tag.RowsAffected(), nil
}

func jsonOrNil(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	return string(body)
}
