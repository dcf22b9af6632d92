package service

import (
	"context"
	"strings"

	"claims_backend/internal/claims/domain"
	"claims_backend/internal/claims/repository"
	"claims_backend/internal/claims/transport"
	"claims_backend/internal/events"
	"claims_backend/platform/apperr"
	"claims_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Decisions an insurer can take.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"

	payoutStatusPaid = "paid"
)

// SubmitReport records the insurer's verification report.
func (s *Service) SubmitReport(ctx context.Context, actor Actor, id uuid.UUID, req transport.SubmitReportRequest) (transport.ClaimResponse, error) {
	report := sanitize.Text(req.Report)

	before, after, err := s.insurerTransition(ctx, actor, id, domain.ActionSubmitReport, repository.Patch{InsurerReport: &report})
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.publish(ctx, events.InsurerReportSubmitted{BaseEvent: events.NewBaseEvent(), ClaimRef: refOf(after)})
	s.record(ctx, actor, "claim.submit_report", before, after, nil)
	return s.project(ctx, after)
}

// Decide approves or rejects a claim under review. Approvals are bounded by
// the sum insured; rejections carry friction proportional to the AI damage.
func (s *Service) Decide(ctx context.Context, actor Actor, id uuid.UUID, req transport.DecisionRequest) (transport.ClaimResponse, error) {
	claim, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.ClaimResponse{}, err
	}
	guard, err := insurerGuard(actor, claim)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	now := s.clock.Now()
	decider := actor.UserID
	reason := sanitize.Text(req.Reason)
	patch := repository.Patch{DecidedBy: &decider, DecidedAt: &now}

	var (
		action        domain.Action
		requiresAudit bool
	)
	switch req.Decision {
	case DecisionApprove:
		policy, err := s.policies.GetByID(ctx, claim.ChosenPolicyID)
		if err != nil {
			return transport.ClaimResponse{}, err
		}
		if err := domain.CheckApprovedAmount(req.ApprovedAmount, policy.SumInsured); err != nil {
			return transport.ClaimResponse{}, err
		}
		action = domain.ActionApprove
		patch.ApprovedAmount = req.ApprovedAmount
	case DecisionReject:
		outcome, err := domain.CheckRejection(claim.AIDamagePercent, reason)
		if err != nil {
			return transport.ClaimResponse{}, err
		}
		action = domain.ActionReject
		if outcome.RequiresAudit {
			action = domain.ActionRejectForAudit
			requiresAudit = true
		}
		if reason != "" {
			patch.RejectionReason = &reason
		}
	default:
		return transport.ClaimResponse{}, apperr.Validation("decision must be approve or reject").WithCode(apperr.CodeValidationFailed)
	}

	if err := checkAllowed(action, claim); err != nil {
		return transport.ClaimResponse{}, err
	}
	updated, err := s.repo.ApplyAction(ctx, id, action, guard, patch, now)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.publish(ctx, events.InsurerDecisionMade{
		BaseEvent:      events.NewBaseEvent(),
		ClaimRef:       refOf(updated),
		Decision:       req.Decision,
		Status:         string(updated.Status),
		ApprovedAmount: updated.ApprovedAmount,
		Reason:         reason,
		RequiresAudit:  requiresAudit,
	})
	s.record(ctx, actor, "claim."+req.Decision, claim, updated, map[string]any{
		"approvedAmount": req.ApprovedAmount,
		"reason":         reason,
		"requiresAudit":  requiresAudit,
	})
	return s.project(ctx, updated)
}

// FlagFraud marks a claim as a fraud suspect.
func (s *Service) FlagFraud(ctx context.Context, actor Actor, id uuid.UUID, req transport.FlagFraudRequest) (transport.ClaimResponse, error) {
	reason := sanitize.Text(req.Reason)

	before, after, err := s.insurerTransition(ctx, actor, id, domain.ActionFlagFraud, repository.Patch{})
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.publish(ctx, events.ClaimFraudFlagged{
		BaseEvent: events.NewBaseEvent(),
		ClaimRef:  refOf(after),
		ActorID:   actor.UserID,
		Reason:    reason,
	})
	s.record(ctx, actor, "claim.flag_fraud", before, after, map[string]any{"reason": reason})
	return s.project(ctx, after)
}

// RecordPayout settles an approved claim exactly once. The amount is checked
// against the sum insured before anything is written.
func (s *Service) RecordPayout(ctx context.Context, actor Actor, id uuid.UUID, req transport.PayoutRequest) (transport.ClaimResponse, error) {
	claim, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.ClaimResponse{}, err
	}
	guard, err := insurerGuard(actor, claim)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	policy, err := s.policies.GetByID(ctx, claim.ChosenPolicyID)
	if err != nil {
		return transport.ClaimResponse{}, err
	}
	if err := domain.CheckPayout(req.Amount, policy.SumInsured); err != nil {
		return transport.ClaimResponse{}, err
	}
	if claim.HasPayout() {
		return transport.ClaimResponse{}, apperr.Conflict("payout already recorded").WithCode(apperr.CodeInvalidTransition)
	}
	if err := checkAllowed(domain.ActionPayout, claim); err != nil {
		return transport.ClaimResponse{}, err
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	status := payoutStatusPaid
	txID := strings.TrimSpace(req.TransactionID)
	amount := req.Amount
	guard.NoPayout = true

	updated, err := s.repo.ApplyAction(ctx, id, domain.ActionPayout, guard, repository.Patch{
		PayoutStatus:        &status,
		PayoutTransactionID: &txID,
		PayoutAmount:        &amount,
		PayoutDate:          &paidAt,
	}, now)
	if err != nil {
		return transport.ClaimResponse{}, err
	}

	s.publish(ctx, events.PayoutRecorded{
		BaseEvent:     events.NewBaseEvent(),
		ClaimRef:      refOf(updated),
		Amount:        amount,
		TransactionID: txID,
	})
	s.record(ctx, actor, "claim.payout", claim, updated, map[string]any{"amount": amount, "transactionId": txID})
	return s.project(ctx, updated)
}

func (s *Service) insurerTransition(ctx context.Context, actor Actor, id uuid.UUID, action domain.Action, patch repository.Patch) (domain.Claim, domain.Claim, error) {
	claim, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Claim{}, domain.Claim{}, err
	}
	guard, err := insurerGuard(actor, claim)
	if err != nil {
		return domain.Claim{}, domain.Claim{}, err
	}
	if err := checkAllowed(action, claim); err != nil {
		return domain.Claim{}, domain.Claim{}, err
	}
	updated, err := s.repo.ApplyAction(ctx, id, action, guard, patch, s.clock.Now())
	if err != nil {
		return domain.Claim{}, domain.Claim{}, err
	}
	return claim, updated, nil
}
