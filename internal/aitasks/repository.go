package aitasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"claims_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opInsert        = "aitasks.repository.insert_batch"
	opGet           = "aitasks.repository.get"
	opClaimPending  = "aitasks.repository.claim_pending"
	opComplete      = "aitasks.repository.complete"
	opScheduleRetry = "aitasks.repository.schedule_retry"
	opMarkFailed    = "aitasks.repository.mark_failed"
	opListFailed    = "aitasks.repository.list_failed"
	opResetForRetry = "aitasks.repository.reset_for_retry"
	opListByClaim   = "aitasks.repository.list_by_claim"
	opListStuck     = "aitasks.repository.list_stuck"
	opListStalled   = "aitasks.repository.list_stalled"

	taskColumns = `id, claim_id, task_type, status, input_data, output_data, retry_count, max_retries, error_message, created_at, processed_at, completed_at`
)

// CompleteParams carries a successful attempt onto the claim. StartedAt is
// the processed_at stamped when the attempt claimed the task; a recovered
// task carries a newer one, so a late stale attempt cannot complete it.
type CompleteParams struct {
	TaskID    uuid.UUID
	ClaimID   uuid.UUID
	TaskType  TaskType
	Output    []byte
	Report    []byte
	Result    Result
	StartedAt time.Time
	Now       time.Time
}

// Barrier is the claim state returned when the aggregation barrier advances.
type Barrier struct {
	ClaimID         uuid.UUID
	ClaimNumber     string
	FarmerID        uuid.UUID
	InsurerID       uuid.UUID
	DamagePercent   *float64
	ValidationFlags []string
}

// Store persists tasks and applies their results.
type Store interface {
	InsertBatch(ctx context.Context, tasks []Task) ([]Task, error)
	Get(ctx context.Context, id uuid.UUID) (Task, error)
	ClaimPending(ctx context.Context, id uuid.UUID, now time.Time) (Task, bool, error)
	Complete(ctx context.Context, p CompleteParams) (*Barrier, error)
	ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int, message string) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, now time.Time) error
	ListFailed(ctx context.Context, limit int) ([]Task, error)
	ResetForRetry(ctx context.Context, id uuid.UUID, now time.Time) (Task, bool, error)
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]Task, error)
	ListStuckClaims(ctx context.Context, createdBefore time.Time, limit int) ([]StuckClaim, error)
	ListStalled(ctx context.Context, touchedBefore time.Time, limit int) ([]Task, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// InsertBatch stores all tasks of a claim atomically: either every sibling
// exists before any of them can be dispatched, or none does.
func (r *Repository) InsertBatch(ctx context.Context, tasks []Task) ([]Task, error) {
	batch := &pgx.Batch{}
	for _, task := range tasks {
		input, err := json.Marshal(task.Input)
		if err != nil {
			return nil, fmt.Errorf("marshal task input: %w", err)
		}
		batch.Queue(`
			INSERT INTO ai_tasks (id, claim_id, task_type, status, input_data, retry_count, max_retries, created_at)
			VALUES ($1, $2, $3, 'pending', $4, 0, $5, $6)
			RETURNING `+taskColumns, task.ID, task.ClaimID, string(task.TaskType), string(input), task.MaxRetries, task.CreatedAt)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "begin transaction failed", err).WithOp(opInsert)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	out := make([]Task, 0, len(tasks))
	for range tasks {
		task, err := scanTask(results.QueryRow())
		if err != nil {
			_ = results.Close()
			return nil, apperr.Wrap(apperr.KindInternal, "insert ai task failed", err).WithOp(opInsert)
		}
		out = append(out, task)
	}
	if err := results.Close(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "insert ai tasks failed", err).WithOp(opInsert)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "commit ai tasks failed", err).WithOp(opInsert)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM ai_tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, apperr.NotFound("ai task not found").WithOp(opGet)
		}
		return Task{}, apperr.Wrap(apperr.KindInternal, "load ai task failed", err).WithOp(opGet)
	}
	return task, nil
}

// ClaimPending moves a pending task to processing. It reports false when the
// task is in any other state, which keeps attempts of one task sequential.
func (r *Repository) ClaimPending(ctx context.Context, id uuid.UUID, now time.Time) (Task, bool, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE ai_tasks SET status = 'processing', processed_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+taskColumns, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, false, nil
		}
		return Task{}, false, apperr.Wrap(apperr.KindInternal, "claim ai task failed", err).WithOp(opClaimPending)
	}
	return task, true, nil
}

// Complete merges the result into the claim, marks the task completed and
// tries the aggregation barrier in one transaction. The claim row is updated
// first so concurrent completions of the same claim serialize on its lock and
// the last one to commit observes every sibling as completed.
func (r *Repository) Complete(ctx context.Context, p CompleteParams) (*Barrier, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "begin transaction failed", err).WithOp(opComplete)
	}
	defer tx.Rollback(ctx)

	flags := p.Result.ValidationFlags
	if flags == nil {
		flags = []string{}
	}
	tag, err := tx.Exec(ctx, `
		UPDATE claims SET
			ai_damage_percent = COALESCE(ai_damage_percent, $2),
			ai_recommended_amount = COALESCE(ai_recommended_amount, $3),
			ai_validation_flags = ARRAY(
				SELECT DISTINCT f FROM unnest(ai_validation_flags || $4::text[]) AS f ORDER BY f
			),
			ai_report = jsonb_set(COALESCE(ai_report, '{}'::jsonb), ARRAY[$5::text], $6::jsonb, true),
			updated_at = $7
		WHERE id = $1
	`, p.ClaimID, p.Result.DamagePercent, p.Result.RecommendedAmount, flags, p.TaskType.ReportKey(), string(p.Report), p.Now)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "merge ai result failed", err).WithOp(opComplete)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("claim not found").WithOp(opComplete)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE ai_tasks SET status = 'completed', output_data = $2, error_message = NULL, completed_at = $3
		WHERE id = $1 AND status = 'processing' AND processed_at = $4
	`, p.TaskID, string(p.Output), p.Now, p.StartedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "complete ai task failed", err).WithOp(opComplete)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.Conflict("ai task is no longer processing").WithOp(opComplete)
	}

	var b Barrier
	err = tx.QueryRow(ctx, `
		UPDATE claims SET verification_status = 'AI_Processed_Admin_Review', updated_at = $2
		WHERE id = $1
			AND verification_status = 'Pending'
			AND EXISTS (SELECT 1 FROM ai_tasks WHERE claim_id = $1)
			AND NOT EXISTS (SELECT 1 FROM ai_tasks WHERE claim_id = $1 AND status <> 'completed')
		RETURNING id, claim_id, farmer_id, assigned_to_id, ai_damage_percent, ai_validation_flags
	`, p.ClaimID, p.Now).Scan(&b.ClaimID, &b.ClaimNumber, &b.FarmerID, &b.InsurerID, &b.DamagePercent, &b.ValidationFlags)
	advanced := true
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Wrap(apperr.KindInternal, "advance verification barrier failed", err).WithOp(opComplete)
		}
		advanced = false
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "commit ai result failed", err).WithOp(opComplete)
	}
	if !advanced {
		return nil, nil
	}
	return &b, nil
}

func (r *Repository) ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int, message string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ai_tasks SET status = 'pending', retry_count = $2, error_message = $3
		WHERE id = $1 AND status = 'processing' AND retry_count = $2 - 1 AND $2 <= max_retries
	`, id, retryCount, message)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "schedule ai task retry failed", err).WithOp(opScheduleRetry)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("ai task is not processing").WithOp(opScheduleRetry)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, message string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE ai_tasks SET status = 'failed', error_message = $2, completed_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, message, now)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "fail ai task failed", err).WithOp(opMarkFailed)
	}
	return nil
}

func (r *Repository) ListFailed(ctx context.Context, limit int) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM ai_tasks
		WHERE status = 'failed'
		ORDER BY completed_at DESC NULLS LAST, created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list failed ai tasks failed", err).WithOp(opListFailed)
	}
	return collectTasks(rows, opListFailed)
}

// ResetForRetry gives a failed task a fresh budget. processed_at restarts at
// now so the stall scan does not redispatch it before its first new attempt.
func (r *Repository) ResetForRetry(ctx context.Context, id uuid.UUID, now time.Time) (Task, bool, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE ai_tasks
		SET status = 'pending', retry_count = 0, error_message = NULL, processed_at = $2, completed_at = NULL
		WHERE id = $1 AND status = 'failed'
		RETURNING `+taskColumns, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, false, nil
		}
		return Task{}, false, apperr.Wrap(apperr.KindInternal, "reset ai task failed", err).WithOp(opResetForRetry)
	}
	return task, true, nil
}

func (r *Repository) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM ai_tasks WHERE claim_id = $1 ORDER BY created_at, task_type
	`, claimID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list claim ai tasks failed", err).WithOp(opListByClaim)
	}
	return collectTasks(rows, opListByClaim)
}

func (r *Repository) ListStuckClaims(ctx context.Context, createdBefore time.Time, limit int) ([]StuckClaim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.claim_id, c.created_at,
			COUNT(t.id) AS total,
			COUNT(t.id) FILTER (WHERE t.status = 'completed') AS completed,
			COUNT(t.id) FILTER (WHERE t.status = 'failed') AS failed
		FROM claims c
		JOIN ai_tasks t ON t.claim_id = c.id
		WHERE c.verification_status = 'Pending' AND c.deleted_at IS NULL AND c.created_at < $1
		GROUP BY c.id, c.claim_id, c.created_at
		HAVING COUNT(t.id) FILTER (WHERE t.status = 'completed') < COUNT(t.id)
		ORDER BY c.created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list stuck claims failed", err).WithOp(opListStuck)
	}
	defer rows.Close()

	var out []StuckClaim
	for rows.Next() {
		var s StuckClaim
		if err := rows.Scan(&s.ClaimID, &s.ClaimNumber, &s.CreatedAt, &s.Total, &s.Completed, &s.Failed); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan stuck claim failed", err).WithOp(opListStuck)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "iterate stuck claims failed", err).WithOp(opListStuck)
	}
	return out, nil
}

// ListStalled returns processing attempts started before touchedBefore and
// pending tasks whose last attempt, or creation, is older than that.
func (r *Repository) ListStalled(ctx context.Context, touchedBefore time.Time, limit int) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM ai_tasks
		WHERE (status = 'processing' AND processed_at < $1)
			OR (status = 'pending' AND COALESCE(processed_at, created_at) < $1)
		ORDER BY created_at
		LIMIT $2
	`, touchedBefore, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list stalled ai tasks failed", err).WithOp(opListStalled)
	}
	return collectTasks(rows, opListStalled)
}

func collectTasks(rows pgx.Rows, op string) ([]Task, error) {
	defer rows.Close()
	var out []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan ai task failed", err).WithOp(op)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "iterate ai tasks failed", err).WithOp(op)
	}
	return out, nil
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	var taskType, status string
	var input, output []byte
	if err := row.Scan(&t.ID, &t.ClaimID, &taskType, &status, &input, &output, &t.RetryCount, &t.MaxRetries,
		&t.ErrorMessage, &t.CreatedAt, &t.ProcessedAt, &t.CompletedAt); err != nil {
		return Task{}, err
	}
	t.TaskType = TaskType(taskType)
	t.Status = Status(status)
	if len(output) > 0 {
		t.Output = json.RawMessage(output)
	}
	if err := json.Unmarshal(input, &t.Input); err != nil {
		return Task{}, fmt.Errorf("decode task input: %w", err)
	}
	return t, nil
}
