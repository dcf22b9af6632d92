// Package domain holds the claim aggregate, its two status axes and the
// business rules that guard transitions between them.
package domain

// Status is the business lifecycle of a claim.
type Status string

const (
	StatusPending      Status = "pending"
	StatusUnderReview  Status = "under_review"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusResolved     Status = "resolved"
	StatusCancelled    Status = "cancelled"
	StatusFraudSuspect Status = "fraud_suspect"
)

// VerificationStatus tracks the AI and human verification pipeline.
type VerificationStatus string

const (
	VerificationPending      VerificationStatus = "Pending"
	VerificationAIProcessed  VerificationStatus = "AI_Processed_Admin_Review"
	VerificationForwarded    VerificationStatus = "AI_Satellite_Processed"
	VerificationManualReview VerificationStatus = "Manual_Review"
	VerificationVerified     VerificationStatus = "Verified"
	VerificationFraudSuspect VerificationStatus = "fraud_suspect"
)

var statusTransitions = map[Status][]Status{
	StatusPending:      {StatusUnderReview, StatusCancelled, StatusFraudSuspect},
	StatusUnderReview:  {StatusApproved, StatusRejected, StatusCancelled, StatusFraudSuspect},
	StatusApproved:     {StatusResolved, StatusFraudSuspect},
	StatusRejected:     {StatusUnderReview, StatusFraudSuspect},
	StatusFraudSuspect: {StatusUnderReview, StatusRejected},
}

var verificationTransitions = map[VerificationStatus][]VerificationStatus{
	VerificationPending:      {VerificationAIProcessed, VerificationFraudSuspect},
	VerificationAIProcessed:  {VerificationForwarded, VerificationManualReview, VerificationFraudSuspect},
	VerificationForwarded:    {VerificationVerified, VerificationFraudSuspect},
	VerificationManualReview: {VerificationVerified, VerificationFraudSuspect},
	VerificationVerified:     {VerificationFraudSuspect},
	VerificationFraudSuspect: {VerificationManualReview, VerificationVerified},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusResolved, StatusCancelled, StatusFraudSuspect:
		return true
	}
	return false
}

// Valid reports whether v is a known verification status.
func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPending, VerificationAIProcessed, VerificationForwarded, VerificationManualReview,
		VerificationVerified, VerificationFraudSuspect:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionVerification reports whether from -> to is an edge of the verification graph.
func CanTransitionVerification(from, to VerificationStatus) bool {
	for _, next := range verificationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusesInto lists every status with an edge into to. Repositories use it
// as the WHERE guard of a conditional update.
func StatusesInto(to Status) []Status {
	var out []Status
	for _, from := range orderedStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// VerificationsInto lists every verification status with an edge into to.
func VerificationsInto(to VerificationStatus) []VerificationStatus {
	var out []VerificationStatus
	for _, from := range orderedVerifications {
		if CanTransitionVerification(from, to) {
			out = append(out, from)
		}
	}
	return out
}

var orderedStatuses = []Status{
	StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusResolved, StatusCancelled, StatusFraudSuspect,
}

var orderedVerifications = []VerificationStatus{
	VerificationPending, VerificationAIProcessed, VerificationForwarded, VerificationManualReview,
	VerificationVerified, VerificationFraudSuspect,
}
