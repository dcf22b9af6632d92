package domain

// Action is a named guarded move across one or both status axes. An empty
// target leaves that axis unchanged; a nil source list on the verification
// axis accepts any value.
type Action struct {
	Name             string
	FromStatus       []Status
	FromVerification []VerificationStatus
	ToStatus         Status
	ToVerification   VerificationStatus
}

var reviewableVerifications = []VerificationStatus{VerificationForwarded, VerificationManualReview, VerificationVerified}

// auditedStatuses hold an open fraud audit while verification is fraud_suspect:
// a flagged claim, or a rejection of a claim the AI scored above 70% damage.
var auditedStatuses = []Status{StatusFraudSuspect, StatusRejected}

var (
	ActionForward = Action{
		Name:             "forward_to_insurer",
		FromStatus:       []Status{StatusPending, StatusUnderReview},
		FromVerification: []VerificationStatus{VerificationAIProcessed},
		ToStatus:         StatusUnderReview,
		ToVerification:   VerificationForwarded,
	}
	ActionRejectAI = Action{
		Name:             "reject_ai_assessment",
		FromStatus:       []Status{StatusPending, StatusUnderReview},
		FromVerification: []VerificationStatus{VerificationAIProcessed},
		ToStatus:         StatusUnderReview,
		ToVerification:   VerificationManualReview,
	}
	ActionOverrideAI = Action{
		Name:             "override_ai_assessment",
		FromStatus:       []Status{StatusPending, StatusUnderReview},
		FromVerification: []VerificationStatus{VerificationAIProcessed, VerificationManualReview},
	}
	ActionSubmitReport = Action{
		Name:             "submit_report",
		FromStatus:       []Status{StatusUnderReview},
		FromVerification: []VerificationStatus{VerificationForwarded, VerificationManualReview},
		ToVerification:   VerificationVerified,
	}
	ActionApprove = Action{
		Name:             "approve",
		FromStatus:       []Status{StatusUnderReview},
		FromVerification: reviewableVerifications,
		ToStatus:         StatusApproved,
		ToVerification:   VerificationVerified,
	}
	ActionReject = Action{
		Name:             "reject",
		FromStatus:       []Status{StatusUnderReview},
		FromVerification: reviewableVerifications,
		ToStatus:         StatusRejected,
	}
	ActionRejectForAudit = Action{
		Name:             "reject_for_audit",
		FromStatus:       []Status{StatusUnderReview},
		FromVerification: reviewableVerifications,
		ToStatus:         StatusRejected,
		ToVerification:   VerificationFraudSuspect,
	}
	ActionFlagFraud = Action{
		Name:             "flag_fraud",
		FromStatus:       StatusesInto(StatusFraudSuspect),
		FromVerification: VerificationsInto(VerificationFraudSuspect),
		ToStatus:         StatusFraudSuspect,
		ToVerification:   VerificationFraudSuspect,
	}
	ActionClearFraud = Action{
		Name:             "clear_fraud_flag",
		FromStatus:       auditedStatuses,
		FromVerification: []VerificationStatus{VerificationFraudSuspect},
		ToStatus:         StatusUnderReview,
		ToVerification:   VerificationManualReview,
	}
	ActionConfirmFraud = Action{
		Name:             "confirm_fraud",
		FromStatus:       auditedStatuses,
		FromVerification: []VerificationStatus{VerificationFraudSuspect},
		ToStatus:         StatusRejected,
		ToVerification:   VerificationVerified,
	}
	ActionPayout = Action{
		Name:       "record_payout",
		FromStatus: []Status{StatusApproved},
		ToStatus:   StatusResolved,
	}
	ActionCancel = Action{
		Name:       "cancel",
		FromStatus: []Status{StatusPending, StatusUnderReview},
		ToStatus:   StatusCancelled,
	}
)

// Allows reports whether the action may run on a claim in the given state.
func (a Action) Allows(status Status, verification VerificationStatus) bool {
	if !containsStatus(a.FromStatus, status) {
		return false
	}
	if a.FromVerification != nil && !containsVerification(a.FromVerification, verification) {
		return false
	}
	return true
}

func containsStatus(list []Status, s Status) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsVerification(list []VerificationStatus, v VerificationStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
