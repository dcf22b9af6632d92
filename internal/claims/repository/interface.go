package repository

import (
	"context"
	"errors"
	"time"

	"claims_backend/internal/claims/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrClaimNumberTaken reports a collision on the human-readable claim id.
var ErrClaimNumberTaken = errors.New("claim number already taken")

// DocumentParams is one file reference to persist with a claim.
type DocumentParams struct {
	Kind        domain.DocumentKind
	FilePath    string
	FileName    string
	ContentType string
	SizeBytes   int64
}

// CreateParams carries a new claim and its file references.
type CreateParams struct {
	ClaimNumber    string
	FarmerID       uuid.UUID
	PolicyID       uuid.UUID
	ChosenPolicyID uuid.UUID
	AssignedToID   uuid.UUID
	IncidentDate   time.Time
	IncidentType   string
	Description    string
	ClaimedAmount  float64
	CropType       *string
	AffectedArea   *float64
	Location       *domain.Location
	Documents      []DocumentParams
	Now            time.Time
}

// FinalizeFunc runs inside the create transaction after the claim and its
// documents are inserted. An error rolls everything back.
type FinalizeFunc func(ctx context.Context, tx pgx.Tx, claim domain.Claim, docs []domain.Document) error

// ListFilter narrows claim listings. Nil scope fields mean unrestricted.
type ListFilter struct {
	FarmerID           *uuid.UUID
	AssignedToID       *uuid.UUID
	Status             *domain.Status
	VerificationStatus *domain.VerificationStatus
	Limit              int
	Offset             int
}

// Guard adds ownership conditions to a transition.
type Guard struct {
	AssignedToID *uuid.UUID
	FarmerID     *uuid.UUID
	NoPayout     bool
}

// AIOverride replaces the AI assessment and records who did it.
type AIOverride struct {
	DamagePercent     *float64
	RecommendedAmount *float64
	ValidationFlags   []string
	Record            domain.AdminOverride
}

// Patch holds the columns a transition writes. Nil fields are left unchanged.
type Patch struct {
	AdminNotes          *string
	AdminReviewedBy     *uuid.UUID
	AdminReviewedAt     *time.Time
	InsurerReport       *string
	RejectionReason     *string
	ApprovedAmount      *float64
	DecidedBy           *uuid.UUID
	DecidedAt           *time.Time
	PayoutStatus        *string
	PayoutTransactionID *string
	PayoutAmount        *float64
	PayoutDate          *time.Time
	DeletedAt           *time.Time
	AIOverride          *AIOverride
}

// Repository is the claim store.
type Repository interface {
	CreateWithDocuments(ctx context.Context, p CreateParams, finalize FinalizeFunc) (domain.Claim, []domain.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Claim, error)
	ListDocuments(ctx context.Context, claimID uuid.UUID) ([]domain.Document, error)
	List(ctx context.Context, f ListFilter) ([]domain.Claim, int, error)
	ApplyAction(ctx context.Context, id uuid.UUID, action domain.Action, guard Guard, patch Patch, now time.Time) (domain.Claim, error)
}
