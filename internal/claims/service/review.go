package service

import (
	"context"
	"fmt"

	"claims_backend/internal/claims/domain"
	"claims_backend/internal/claims/repository"
	"claims_backend/internal/claims/transport"
	"claims_backend/internal/events"
	"claims_backend/platform/apperr"
	"claims_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Fraud audit outcomes.
const (
	FraudOutcomeCleared   = "cleared"
	FraudOutcomeConfirmed = "confirmed"
)

// ForwardToInsurer hands an AI-processed claim to the assigned insurer.
func (s *Service) ForwardToInsurer(ctx context.Context, actor Actor, id uuid.UUID, req transport.ForwardRequest) (transport.ClaimResponse, error) {
	notes := sanitize.Text(req.Notes)
	patch := s.adminPatch(actor)
	if notes != "" {
		patch.AdminNotes = &notes
	}

	before, after, err := s.adminTransition(ctx, id, domain.ActionForward, patch)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.publish(ctx, events.ClaimForwarded{
		BaseEvent: events.NewBaseEvent(),
		ClaimRef:  refOf(after),
		AdminID:   actor.UserID,
		Notes:     notes,
	})
	s.record(ctx, actor, "claim.forward", before, after, map[string]any{"notes": notes})
	return s.project(ctx, after)
}

// RejectAIAssessment sends the claim to manual review by the insurer.
func (s *Service) RejectAIAssessment(ctx context.Context, actor Actor, id uuid.UUID, req transport.RejectAIRequest) (transport.ClaimResponse, error) {
	reason := sanitize.Text(req.Reason)
	patch := s.adminPatch(actor)
	patch.AdminNotes = &reason

	before, after, err := s.adminTransition(ctx, id, domain.ActionRejectAI, patch)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.publish(ctx, events.ClaimAIRejected{
		BaseEvent: events.NewBaseEvent(),
		ClaimRef:  refOf(after),
		AdminID:   actor.UserID,
		Reason:    reason,
	})
	s.record(ctx, actor, "claim.reject_ai", before, after, map[string]any{"reason": reason})
	return s.project(ctx, after)
}

// OverrideAIAssessment corrects the AI estimate. The previous values stay in
// the audit trail; the override itself is kept under ai_report.adminOverride.
func (s *Service) OverrideAIAssessment(ctx context.Context, actor Actor, id uuid.UUID, req transport.OverrideAIRequest) (transport.ClaimResponse, error) {
	if req.DamagePercent == nil && req.RecommendedAmount == nil && req.ValidationFlags == nil {
		return transport.ClaimResponse{}, apperr.Validation("override must change damagePercent, recommendedAmount or validationFlags").
			WithCode(apperr.CodeValidationFailed)
	}

	claim, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.ClaimResponse{}, err
	}
	if err := checkAllowed(domain.ActionOverrideAI, claim); err != nil {
		return transport.ClaimResponse{}, err
	}
	if req.RecommendedAmount != nil {
		policy, err := s.policies.GetByID(ctx, claim.ChosenPolicyID)
		if err != nil {
			return transport.ClaimResponse{}, err
		}
		if *req.RecommendedAmount > policy.SumInsured {
			return transport.ClaimResponse{}, apperr.Validation(
				fmt.Sprintf("recommended amount %.2f exceeds sum insured %.2f", *req.RecommendedAmount, policy.SumInsured),
			).WithCode(apperr.CodePayoutExceedsCover)
		}
	}

	reason := sanitize.Text(req.Reason)
	now := s.clock.Now()
	patch := s.adminPatch(actor)
	patch.AIOverride = &repository.AIOverride{
		DamagePercent:     req.DamagePercent,
		RecommendedAmount: req.RecommendedAmount,
		ValidationFlags:   req.ValidationFlags,
		Record: domain.AdminOverride{
			AdminID:           actor.UserID,
			DamagePercent:     req.DamagePercent,
			RecommendedAmount: req.RecommendedAmount,
			ValidationFlags:   req.ValidationFlags,
			Reason:            reason,
			At:                now,
		},
	}

	updated, err := s.repo.ApplyAction(ctx, id, domain.ActionOverrideAI, repository.Guard{}, patch, now)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.record(ctx, actor, "claim.override_ai", claim, updated, map[string]any{
		"reason":                reason,
		"previousDamagePercent": claim.AIDamagePercent,
		"previousRecommended":   claim.AIRecommendedAmount,
		"previousFlags":         claim.AIValidationFlags,
	})
	return s.project(ctx, updated)
}

// ClearFraudFlag closes a fraud audit. A cleared claim returns to manual
// review; a confirmed one is rejected.
func (s *Service) ClearFraudFlag(ctx context.Context, actor Actor, id uuid.UUID, req transport.ClearFraudRequest) (transport.ClaimResponse, error) {
	notes := sanitize.Text(req.Notes)
	patch := s.adminPatch(actor)
	patch.AdminNotes = &notes

	var action domain.Action
	switch req.Outcome {
	case FraudOutcomeCleared:
		action = domain.ActionClearFraud
	case FraudOutcomeConfirmed:
		action = domain.ActionConfirmFraud
		patch.RejectionReason = &notes
	default:
		return transport.ClaimResponse{}, apperr.Validation("outcome must be cleared or confirmed").WithCode(apperr.CodeValidationFailed)
	}

	before, after, err := s.adminTransition(ctx, id, action, patch)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.publish(ctx, events.FraudAuditClosed{
		BaseEvent: events.NewBaseEvent(),
		ClaimRef:  refOf(after),
		AdminID:   actor.UserID,
		Outcome:   req.Outcome,
	})
	s.record(ctx, actor, "claim.fraud_audit."+req.Outcome, before, after, map[string]any{"notes": notes})
	return s.project(ctx, after)
}

func (s *Service) adminPatch(actor Actor) repository.Patch {
	now := s.clock.Now()
	reviewer := actor.UserID
	return repository.Patch{AdminReviewedBy: &reviewer, AdminReviewedAt: &now}
}

func (s *Service) adminTransition(ctx context.Context, id uuid.UUID, action domain.Action, patch repository.Patch) (domain.Claim, domain.Claim, error) {
	claim, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Claim{}, domain.Claim{}, err
	}
	if err := checkAllowed(action, claim); err != nil {
		return domain.Claim{}, domain.Claim{}, err
	}
	updated, err := s.repo.ApplyAction(ctx, id, action, repository.Guard{}, patch, s.clock.Now())
	if err != nil {
		return domain.Claim{}, domain.Claim{}, err
	}
	return claim, updated, nil
}
