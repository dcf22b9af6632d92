// Package repository persists claims and their documents in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"claims_backend/internal/claims/domain"
	"claims_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate        = "claims.repository.create"
	opGet           = "claims.repository.get"
	opListDocuments = "claims.repository.list_documents"
	opList          = "claims.repository.list"
	opApplyAction   = "claims.repository.apply_action"

	claimNotFoundMessage = "claim not found"
	claimNumberUnique    = "claims_claim_id_key"
	uniqueViolation      = "23505"

	claimColumns = `id, claim_id, farmer_id, policy_id, chosen_policy_id, assigned_to_id, status, verification_status,
		incident_date, incident_type, description, claimed_amount, crop_type, affected_area, location_lat, location_lng,
		ai_damage_percent, ai_recommended_amount, ai_validation_flags, ai_report, admin_notes, admin_reviewed_by,
		admin_reviewed_at, insurer_report, rejection_reason, approved_amount, decided_by, decided_at, payout_status,
		payout_transaction_id, payout_amount, payout_date, deleted_at, created_at, updated_at`

	documentColumns = `id, claim_id, kind, file_path, file_name, content_type, size_bytes, created_at`
)

// Repo implements Repository on a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new claims repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ Repository = (*Repo)(nil)

// CreateWithDocuments inserts the claim and its documents, then hands the
// open transaction to finalize. A claim number collision returns
// ErrClaimNumberTaken so the caller can draw a new one.
func (r *Repo) CreateWithDocuments(ctx context.Context, p CreateParams, finalize FinalizeFunc) (domain.Claim, []domain.Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Claim{}, nil, apperr.Wrap(apperr.KindInternal, "begin transaction failed", err).WithOp(opCreate)
	}
	defer tx.Rollback(ctx)

	var lat, lng *float64
	if p.Location != nil {
		lat, lng = &p.Location.Lat, &p.Location.Lng
	}

	claim, err := scanClaim(tx.QueryRow(ctx, `
		INSERT INTO claims (
			claim_id, farmer_id, policy_id, chosen_policy_id, assigned_to_id, status, verification_status,
			incident_date, incident_type, description, claimed_amount, crop_type, affected_area,
			location_lat, location_lng, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, 'pending', 'Pending', $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING `+claimColumns,
		p.ClaimNumber, p.FarmerID, p.PolicyID, p.ChosenPolicyID, p.AssignedToID,
		p.IncidentDate, p.IncidentType, p.Description, p.ClaimedAmount, p.CropType, p.AffectedArea,
		lat, lng, p.Now,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == claimNumberUnique {
			return domain.Claim{}, nil, ErrClaimNumberTaken
		}
		return domain.Claim{}, nil, apperr.Wrap(apperr.KindInternal, "insert claim failed", err).WithOp(opCreate)
	}

	docs := make([]domain.Document, 0, len(p.Documents))
	for _, d := range p.Documents {
		doc, err := scanDocument(tx.QueryRow(ctx, `
			INSERT INTO claim_documents (claim_id, kind, file_path, file_name, content_type, size_bytes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+documentColumns,
			claim.ID, string(d.Kind), d.FilePath, d.FileName, d.ContentType, d.SizeBytes, p.Now,
		))
		if err != nil {
			return domain.Claim{}, nil, apperr.Wrap(apperr.KindInternal, "insert claim document failed", err).WithOp(opCreate)
		}
		docs = append(docs, doc)
	}

	if finalize != nil {
		if err := finalize(ctx, tx, claim, docs); err != nil {
			return domain.Claim{}, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Claim{}, nil, apperr.Wrap(apperr.KindInternal, "commit claim failed", err).WithOp(opCreate)
	}
	return claim, docs, nil
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (domain.Claim, error) {
	claim, err := scanClaim(r.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Claim{}, apperr.NotFound(claimNotFoundMessage).WithOp(opGet)
		}
		return domain.Claim{}, apperr.Wrap(apperr.KindInternal, "load claim failed", err).WithOp(opGet)
	}
	return claim, nil
}

func (r *Repo) ListDocuments(ctx context.Context, claimID uuid.UUID) ([]domain.Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM claim_documents WHERE claim_id = $1 ORDER BY created_at, id`, claimID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list claim documents failed", err).WithOp(opListDocuments)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan claim document failed", err).WithOp(opListDocuments)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list claim documents failed", err).WithOp(opListDocuments)
	}
	return docs, nil
}

// List returns one page of claims and the total match count. Cancelled
// claims are hidden unless the status filter asks for them.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]domain.Claim, int, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.FarmerID != nil {
		add("farmer_id = $%d", *f.FarmerID)
	}
	if f.AssignedToID != nil {
		add("assigned_to_id = $%d", *f.AssignedToID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	} else {
		where = append(where, "deleted_at IS NULL")
	}
	if f.VerificationStatus != nil {
		add("verification_status = $%d", string(*f.VerificationStatus))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM claims WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "count claims failed", err).WithOp(opList)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM claims WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		claimColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "list claims failed", err).WithOp(opList)
	}
	defer rows.Close()

	claims := make([]domain.Claim, 0, f.Limit)
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.KindInternal, "scan claim failed", err).WithOp(opList)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "list claims failed", err).WithOp(opList)
	}
	return claims, total, nil
}

// ApplyAction runs a transition as one conditional UPDATE. Zero affected rows
// means the claim moved on, or never matched the guard, since it was read.
func (r *Repo) ApplyAction(ctx context.Context, id uuid.UUID, action domain.Action, guard Guard, patch Patch, now time.Time) (domain.Claim, error) {
	var toStatus, toVerification *string
	if action.ToStatus != "" {
		s := string(action.ToStatus)
		toStatus = &s
	}
	if action.ToVerification != "" {
		v := string(action.ToVerification)
		toVerification = &v
	}

	fromStatus := make([]string, 0, len(action.FromStatus))
	for _, s := range action.FromStatus {
		fromStatus = append(fromStatus, string(s))
	}
	var fromVerification []string
	if action.FromVerification != nil {
		fromVerification = make([]string, 0, len(action.FromVerification))
		for _, v := range action.FromVerification {
			fromVerification = append(fromVerification, string(v))
		}
	}

	var (
		overrideDamage, overrideAmount *float64
		overrideFlags                  []string
		overrideRecord                 *string
	)
	if o := patch.AIOverride; o != nil {
		overrideDamage, overrideAmount, overrideFlags = o.DamagePercent, o.RecommendedAmount, o.ValidationFlags
		raw, err := json.Marshal(o.Record)
		if err != nil {
			return domain.Claim{}, fmt.Errorf("marshal admin override: %w", err)
		}
		s := string(raw)
		overrideRecord = &s
	}

	claim, err := scanClaim(r.pool.QueryRow(ctx, `
		UPDATE claims SET
			status = COALESCE($2, status),
			verification_status = COALESCE($3, verification_status),
			admin_notes = COALESCE($4, admin_notes),
			admin_reviewed_by = COALESCE($5, admin_reviewed_by),
			admin_reviewed_at = COALESCE($6, admin_reviewed_at),
			insurer_report = COALESCE($7, insurer_report),
			rejection_reason = COALESCE($8, rejection_reason),
			approved_amount = COALESCE($9, approved_amount),
			decided_by = COALESCE($10, decided_by),
			decided_at = COALESCE($11, decided_at),
			payout_status = COALESCE($12, payout_status),
			payout_transaction_id = COALESCE($13, payout_transaction_id),
			payout_amount = COALESCE($14, payout_amount),
			payout_date = COALESCE($15, payout_date),
			deleted_at = COALESCE($16, deleted_at),
			ai_damage_percent = COALESCE($17, ai_damage_percent),
			ai_recommended_amount = COALESCE($18, ai_recommended_amount),
			ai_validation_flags = COALESCE($19::text[], ai_validation_flags),
			ai_report = CASE WHEN $20::jsonb IS NULL THEN ai_report
				ELSE jsonb_set(COALESCE(ai_report, '{}'::jsonb), '{adminOverride}', $20::jsonb, true) END,
			updated_at = $21
		WHERE id = $1
			AND deleted_at IS NULL
			AND status = ANY($22::text[])
			AND ($23::text[] IS NULL OR verification_status = ANY($23::text[]))
			AND ($24::uuid IS NULL OR assigned_to_id = $24)
			AND ($25::uuid IS NULL OR farmer_id = $25)
			AND (NOT $26::boolean OR payout_transaction_id IS NULL)
		RETURNING `+claimColumns,
		id, toStatus, toVerification,
		patch.AdminNotes, patch.AdminReviewedBy, patch.AdminReviewedAt,
		patch.InsurerReport, patch.RejectionReason, patch.ApprovedAmount, patch.DecidedBy, patch.DecidedAt,
		patch.PayoutStatus, patch.PayoutTransactionID, patch.PayoutAmount, patch.PayoutDate, patch.DeletedAt,
		overrideDamage, overrideAmount, overrideFlags, overrideRecord, now,
		fromStatus, fromVerification, guard.AssignedToID, guard.FarmerID, guard.NoPayout,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Claim{}, apperr.Conflict(fmt.Sprintf("claim cannot %s in its current state", strings.ReplaceAll(action.Name, "_", " "))).
				WithCode(apperr.CodeInvalidTransition).WithOp(opApplyAction)
		}
		return domain.Claim{}, apperr.Wrap(apperr.KindInternal, "update claim failed", err).WithOp(opApplyAction)
	}
	return claim, nil
}

func scanClaim(row pgx.Row) (domain.Claim, error) {
	var (
		c                    domain.Claim
		status, verification string
		lat, lng             *float64
		flags                []string
		report               []byte
	)
	err := row.Scan(
		&c.ID, &c.ClaimNumber, &c.FarmerID, &c.PolicyID, &c.ChosenPolicyID, &c.AssignedToID, &status, &verification,
		&c.IncidentDate, &c.IncidentType, &c.Description, &c.ClaimedAmount, &c.CropType, &c.AffectedArea, &lat, &lng,
		&c.AIDamagePercent, &c.AIRecommendedAmount, &flags, &report, &c.AdminNotes, &c.AdminReviewedBy,
		&c.AdminReviewedAt, &c.InsurerReport, &c.RejectionReason, &c.ApprovedAmount, &c.DecidedBy, &c.DecidedAt, &c.PayoutStatus,
		&c.PayoutTransactionID, &c.PayoutAmount, &c.PayoutDate, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Claim{}, err
	}

	c.Status = domain.Status(status)
	c.VerificationStatus = domain.VerificationStatus(verification)
	if lat != nil && lng != nil {
		c.Location = &domain.Location{Lat: *lat, Lng: *lng}
	}
	if flags == nil {
		flags = []string{}
	}
	c.AIValidationFlags = flags
	if len(report) > 0 {
		if err := json.Unmarshal(report, &c.AIReport); err != nil {
			return domain.Claim{}, fmt.Errorf("decode ai report: %w", err)
		}
	}
	return c, nil
}

func scanDocument(row pgx.Row) (domain.Document, error) {
	var (
		d    domain.Document
		kind string
	)
	if err := row.Scan(&d.ID, &d.ClaimID, &kind, &d.FilePath, &d.FileName, &d.ContentType, &d.SizeBytes, &d.CreatedAt); err != nil {
		return domain.Document{}, err
	}
	d.Kind = domain.DocumentKind(kind)
	return d, nil
}
