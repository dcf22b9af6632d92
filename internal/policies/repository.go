package policies

import (
	"context"
	"errors"
	"time"

	"claims_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGetByID            = "policies.repository.get_by_id"
	opGetByNumber        = "policies.repository.get_by_number"
	opListActiveCovering = "policies.repository.list_active_covering"

	policyColumns = `id, policy_number, farmer_id, service_provider_id, status, start_date, end_date, sum_insured, crop_type, area_hectares`
)

// Reader loads policies.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Policy, error)
	GetByNumber(ctx context.Context, farmerID uuid.UUID, number string) (Policy, error)
	ListActiveCovering(ctx context.Context, farmerID uuid.UUID, day time.Time) ([]Policy, error)
}

// Repository is the PostgreSQL Reader.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Reader = (*Repository)(nil)

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Policy, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, id)
	return scanPolicy(row, opGetByID)
}

func (r *Repository) GetByNumber(ctx context.Context, farmerID uuid.UUID, number string) (Policy, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE farmer_id = $1 AND policy_number = $2`, farmerID, number)
	return scanPolicy(row, opGetByNumber)
}

func (r *Repository) ListActiveCovering(ctx context.Context, farmerID uuid.UUID, day time.Time) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE farmer_id = $1 AND status = 'Active' AND start_date <= $2::date AND end_date >= $2::date
		ORDER BY start_date, id
	`, farmerID, day)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list covering policies failed", err).WithOp(opListActiveCovering)
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		p, err := scanPolicy(rows, opListActiveCovering)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "iterate covering policies failed", err).WithOp(opListActiveCovering)
	}
	return out, nil
}

func scanPolicy(row pgx.Row, op string) (Policy, error) {
	var p Policy
	var status string
	err := row.Scan(&p.ID, &p.PolicyNumber, &p.FarmerID, &p.ServiceProviderID, &status, &p.StartDate, &p.EndDate,
		&p.SumInsured, &p.CropType, &p.AreaHectares)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, apperr.NotFound("policy not found").WithOp(op).WithCode(apperr.CodePolicyNotFound)
		}
		return Policy{}, apperr.Wrap(apperr.KindInternal, "load policy failed", err).WithOp(op)
	}
	p.Status = Status(status)
	return p, nil
}
