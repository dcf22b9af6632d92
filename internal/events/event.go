// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"claims_backend/platform/events"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates the process-local bus used by the API and worker.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// ClaimRef identifies a claim and the two parties every notification targets.
type ClaimRef struct {
	ClaimID     uuid.UUID `json:"claimId"`
	ClaimNumber string    `json:"claimNumber"`
	FarmerID    uuid.UUID `json:"farmerId"`
	InsurerID   uuid.UUID `json:"insurerId"`
}

// =============================================================================
// Intake Events
// =============================================================================

// ClaimCreated is published after a claim and its documents are committed.
type ClaimCreated struct {
	BaseEvent
	ClaimRef
	PolicyID      uuid.UUID `json:"policyId"`
	ClaimedAmount float64   `json:"claimedAmount"`
	AITasks       int       `json:"aiTasks"`
}

func (e ClaimCreated) EventName() string { return "claims.claim.created" }

// ClaimCancelled is published when the farmer withdraws a claim.
type ClaimCancelled struct {
	BaseEvent
	ClaimRef
}

func (e ClaimCancelled) EventName() string { return "claims.claim.cancelled" }

// =============================================================================
// AI Pipeline Events
// =============================================================================

// ClaimAIProcessed is published once, by the task that closes the aggregation barrier.
type ClaimAIProcessed struct {
	BaseEvent
	ClaimRef
	ValidationFlags []string `json:"validationFlags,omitempty"`
	DamagePercent   *float64 `json:"damagePercent,omitempty"`
}

func (e ClaimAIProcessed) EventName() string { return "claims.ai.processed" }

// AITaskDeadLettered is published when a task exhausts its retries.
type AITaskDeadLettered struct {
	BaseEvent
	TaskID   uuid.UUID `json:"taskId"`
	ClaimID  uuid.UUID `json:"claimId"`
	TaskType string    `json:"taskType"`
	Error    string    `json:"error"`
}

func (e AITaskDeadLettered) EventName() string { return "claims.ai.dead_lettered" }

// =============================================================================
// Review Events
// =============================================================================

// ClaimForwarded is published when an admin forwards the AI assessment to the insurer.
type ClaimForwarded struct {
	BaseEvent
	ClaimRef
	AdminID uuid.UUID `json:"adminId"`
	Notes   string    `json:"notes,omitempty"`
}

func (e ClaimForwarded) EventName() string { return "claims.review.forwarded" }

// ClaimAIRejected is published when an admin sends the claim to manual review.
type ClaimAIRejected struct {
	BaseEvent
	ClaimRef
	AdminID uuid.UUID `json:"adminId"`
	Reason  string    `json:"reason"`
}

func (e ClaimAIRejected) EventName() string { return "claims.review.ai_rejected" }

// InsurerReportSubmitted is published when the insurer verifies a claim.
type InsurerReportSubmitted struct {
	BaseEvent
	ClaimRef
}

func (e InsurerReportSubmitted) EventName() string { return "claims.insurer.report_submitted" }

// InsurerDecisionMade is published after an approve or reject decision.
type InsurerDecisionMade struct {
	BaseEvent
	ClaimRef
	Decision       string   `json:"decision"`
	Status         string   `json:"status"`
	ApprovedAmount *float64 `json:"approvedAmount,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	RequiresAudit  bool     `json:"requiresAudit"`
}

func (e InsurerDecisionMade) EventName() string { return "claims.insurer.decision_made" }

// ClaimFraudFlagged is published when a claim is marked fraud_suspect.
type ClaimFraudFlagged struct {
	BaseEvent
	ClaimRef
	ActorID uuid.UUID `json:"actorId"`
	Reason  string    `json:"reason"`
}

func (e ClaimFraudFlagged) EventName() string { return "claims.fraud.flagged" }

// PayoutRecorded is published after settlement.
type PayoutRecorded struct {
	BaseEvent
	ClaimRef
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transactionId"`
}

func (e PayoutRecorded) EventName() string { return "claims.payout.recorded" }

// FraudAuditClosed is published when an admin clears or confirms a fraud suspicion.
type FraudAuditClosed struct {
	BaseEvent
	ClaimRef
	AdminID uuid.UUID `json:"adminId"`
	Outcome string    `json:"outcome"`
}

func (e FraudAuditClosed) EventName() string { return "claims.fraud.audit_closed" }
