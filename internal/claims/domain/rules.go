package domain

import (
	"fmt"
	"strings"

	"claims_backend/platform/apperr"
)

const (
	// ReasonRequiredAbovePercent is the AI damage level above which a
	// rejection must carry a written reason.
	ReasonRequiredAbovePercent = 30.0
	// AuditRequiredAbovePercent is the AI damage level above which a
	// rejection is escalated to a fraud audit.
	AuditRequiredAbovePercent = 70.0
	// MinRejectionReasonLength is the minimum trimmed length of that reason.
	MinRejectionReasonLength = 10
)

// RejectionOutcome says how a rejection must be recorded.
type RejectionOutcome struct {
	RequiresAudit bool
}

// CheckRejection applies the rejection friction rules to the AI damage estimate.
func CheckRejection(aiDamagePercent *float64, reason string) (RejectionOutcome, error) {
	if aiDamagePercent == nil {
		return RejectionOutcome{}, nil
	}
	damage := *aiDamagePercent
	if damage > ReasonRequiredAbovePercent && len([]rune(strings.TrimSpace(reason))) < MinRejectionReasonLength {
		return RejectionOutcome{}, apperr.Validation(
			fmt.Sprintf("AI estimated %.0f%% damage; a rejection reason of at least %d characters is required", damage, MinRejectionReasonLength),
		).WithCode(apperr.CodeRejectionReason)
	}
	return RejectionOutcome{RequiresAudit: damage > AuditRequiredAbovePercent}, nil
}

// CheckPayout bounds a settlement by the policy's sum insured.
func CheckPayout(amount, sumInsured float64) error {
	if amount <= 0 {
		return apperr.Validation("payout amount must be positive").WithCode(apperr.CodeValidationFailed)
	}
	if amount > sumInsured {
		return apperr.Validation(fmt.Sprintf("payout amount %.2f exceeds sum insured %.2f", amount, sumInsured)).
			WithCode(apperr.CodePayoutExceedsCover).
			WithDetails(map[string]float64{"amount": amount, "sumInsured": sumInsured})
	}
	return nil
}

// CheckApprovedAmount bounds an approval by the policy's sum insured.
func CheckApprovedAmount(amount *float64, sumInsured float64) error {
	if amount == nil {
		return apperr.Validation("approvedAmount is required when approving").WithCode(apperr.CodeValidationFailed)
	}
	return CheckPayout(*amount, sumInsured)
}

// RecommendedAmount caps a damage-based estimate at both the claimed amount and the cover.
func RecommendedAmount(claimed, sumInsured, damagePercent float64) float64 {
	if damagePercent < 0 {
		damagePercent = 0
	}
	if damagePercent > 100 {
		damagePercent = 100
	}
	estimate := sumInsured * damagePercent / 100
	if claimed < estimate {
		return claimed
	}
	return estimate
}
