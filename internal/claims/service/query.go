package service

import (
	"context"

	"claims_backend/internal/aitasks"
	"claims_backend/internal/authz"
	"claims_backend/internal/claims/domain"
	"claims_backend/internal/claims/repository"
	"claims_backend/internal/claims/transport"
	"claims_backend/internal/events"
	"claims_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetClaim returns a claim the actor may see.
func (s *Service) GetClaim(ctx context.Context, actor Actor, id uuid.UUID) (transport.ClaimResponse, error) {
	claim, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return transport.ClaimResponse{}, err
	}
	return s.project(ctx, claim)
}

// ListClaims pages through the claims visible to the actor.
func (s *Service) ListClaims(ctx context.Context, actor Actor, req transport.ListClaimsRequest) (transport.ListClaimsResponse, error) {
	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	filter := repository.ListFilter{Limit: pageSize, Offset: (page - 1) * pageSize}
	switch {
	case actor.Principal.Can(authz.CapClaimReadAny):
	case actor.Principal.Can(authz.CapClaimReadAssigned):
		filter.AssignedToID = &actor.UserID
	case actor.Principal.Can(authz.CapClaimReadOwn):
		filter.FarmerID = &actor.UserID
	default:
		return transport.ListClaimsResponse{}, apperr.Forbidden("not allowed to list claims")
	}
	if req.Status != "" {
		status := domain.Status(req.Status)
		filter.Status = &status
	}
	if req.VerificationStatus != "" {
		v := domain.VerificationStatus(req.VerificationStatus)
		filter.VerificationStatus = &v
	}

	claims, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return transport.ListClaimsResponse{}, err
	}

	items := make([]transport.ClaimResponse, 0, len(claims))
	for _, c := range claims {
		items = append(items, transport.ToClaimResponse(c, nil))
	}
	totalPages := (total + pageSize - 1) / pageSize
	return transport.ListClaimsResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// CancelClaim withdraws the farmer's own claim and soft-deletes it.
func (s *Service) CancelClaim(ctx context.Context, actor Actor, id uuid.UUID) (transport.ClaimResponse, error) {
	claim, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return transport.ClaimResponse{}, err
	}
	if claim.FarmerID != actor.UserID {
		return transport.ClaimResponse{}, apperr.Forbidden("only the submitting farmer can cancel a claim")
	}
	if err := checkAllowed(domain.ActionCancel, claim); err != nil {
		return transport.ClaimResponse{}, err
	}

	now := s.clock.Now()
	owner := actor.UserID
	updated, err := s.repo.ApplyAction(ctx, id, domain.ActionCancel, repository.Guard{FarmerID: &owner}, repository.Patch{DeletedAt: &now}, now)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.publish(ctx, events.ClaimCancelled{BaseEvent: events.NewBaseEvent(), ClaimRef: refOf(updated)})
	s.record(ctx, actor, "claim.cancel", claim, updated, nil)
	return s.project(ctx, updated)
}

// ListAITasks returns the AI tasks of a claim the actor may see.
func (s *Service) ListAITasks(ctx context.Context, actor Actor, id uuid.UUID) ([]aitasks.Task, error) {
	if _, err := s.loadVisible(ctx, actor, id); err != nil {
		return nil, err
	}
	tasks, err := s.queue.ListClaimTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []aitasks.Task{}
	}
	return tasks, nil
}

func (s *Service) project(ctx context.Context, claim domain.Claim) (transport.ClaimResponse, error) {
	docs, err := s.repo.ListDocuments(ctx, claim.ID)
	if err != nil {
		return transport.ClaimResponse{}, err
	}
	return transport.ToClaimResponse(claim, docs), nil
}
