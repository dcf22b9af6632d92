package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"claims_backend/internal/claims/domain"
	"claims_backend/internal/events"
	"claims_backend/internal/notification/inapp"
	"claims_backend/platform/apperr"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent []inapp.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, m inapp.Message) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, m)
	return nil
}

type fakeClaims map[uuid.UUID]domain.Claim

func (f fakeClaims) GetByID(_ context.Context, id uuid.UUID) (domain.Claim, error) {
	c, ok := f[id]
	if !ok {
		return domain.Claim{}, apperr.NotFound("claim not found")
	}
	return c, nil
}

func setup(status domain.Status) (*Module, *recordingNotifier, events.ClaimRef) {
	ref := events.ClaimRef{
		ClaimID:     uuid.New(),
		ClaimNumber: "CLM-2026-123456-042",
		FarmerID:    uuid.New(),
		InsurerID:   uuid.New(),
	}
	claims := fakeClaims{ref.ClaimID: {ID: ref.ClaimID, ClaimNumber: ref.ClaimNumber, Status: status}}
	n := &recordingNotifier{}
	return NewWithNotifier(n, claims, logger.Discard()), n, ref
}

func TestClaimCreatedNotifiesFarmerAndInsurer(t *testing.T) {
	m, n, ref := setup(domain.StatusPending)

	err := m.Handle(context.Background(), events.ClaimCreated{BaseEvent: events.NewBaseEvent(), ClaimRef: ref, ClaimedAmount: 4000})
	require.NoError(t, err)

	require.Len(t, n.sent, 2)
	assert.Equal(t, ref.FarmerID, n.sent[0].UserID)
	assert.Equal(t, ref.InsurerID, n.sent[1].UserID)
	assert.Equal(t, ref.ClaimID, n.sent[1].ResourceID)
	assert.Contains(t, n.sent[1].Body, ref.ClaimNumber)
}

func TestAIProcessedGoesToAdmins(t *testing.T) {
	m, n, ref := setup(domain.StatusPending)

	err := m.Handle(context.Background(), events.ClaimAIProcessed{ClaimRef: ref, ValidationFlags: []string{"missing_exif"}})
	require.NoError(t, err)

	require.Len(t, n.sent, 1)
	assert.Equal(t, "admin", n.sent[0].Audience)
	assert.Equal(t, uuid.Nil, n.sent[0].UserID)
	assert.Contains(t, n.sent[0].Body, "missing_exif")
}

func TestCancelledClaimStaysSilent(t *testing.T) {
	m, n, ref := setup(domain.StatusCancelled)

	require.NoError(t, m.Handle(context.Background(), events.ClaimAIProcessed{ClaimRef: ref}))
	require.NoError(t, m.Handle(context.Background(), events.AITaskDeadLettered{ClaimID: ref.ClaimID, TaskType: "ocr"}))
	assert.Empty(t, n.sent)
}

func TestSoftDeletedClaimStaysSilent(t *testing.T) {
	m, n, ref := setup(domain.StatusPending)
	deletedAt := time.Now()
	m.claims = fakeClaims{ref.ClaimID: {ID: ref.ClaimID, Status: domain.StatusPending, DeletedAt: &deletedAt}}

	require.NoError(t, m.Handle(context.Background(), events.ClaimForwarded{ClaimRef: ref}))
	assert.Empty(t, n.sent)
}

func TestCancellationItselfNotifiesInsurer(t *testing.T) {
	m, n, ref := setup(domain.StatusCancelled)

	require.NoError(t, m.Handle(context.Background(), events.ClaimCancelled{ClaimRef: ref}))
	require.Len(t, n.sent, 1)
	assert.Equal(t, ref.InsurerID, n.sent[0].UserID)
}

func TestMissingClaimIsSkipped(t *testing.T) {
	m, n, _ := setup(domain.StatusPending)
	other := events.ClaimRef{ClaimID: uuid.New(), FarmerID: uuid.New()}

	require.NoError(t, m.Handle(context.Background(), events.PayoutRecorded{ClaimRef: other, Amount: 10}))
	assert.Empty(t, n.sent)
}

func TestRejectionNeedingAuditAlsoAlertsAdmins(t *testing.T) {
	m, n, ref := setup(domain.StatusRejected)

	err := m.Handle(context.Background(), events.InsurerDecisionMade{
		ClaimRef:      ref,
		Decision:      "reject",
		Reason:        "damage predates the policy",
		RequiresAudit: true,
	})
	require.NoError(t, err)

	require.Len(t, n.sent, 2)
	assert.Equal(t, ref.FarmerID, n.sent[0].UserID)
	assert.Contains(t, n.sent[0].Body, "damage predates the policy")
	assert.Equal(t, "admin", n.sent[1].Audience)
}

func TestApprovalNotifiesFarmerWithAmount(t *testing.T) {
	m, n, ref := setup(domain.StatusApproved)
	amount := 3500.0

	require.NoError(t, m.Handle(context.Background(), events.InsurerDecisionMade{ClaimRef: ref, Decision: "approve", ApprovedAmount: &amount}))
	require.Len(t, n.sent, 1)
	assert.Equal(t, inapp.SeveritySuccess, n.sent[0].Severity)
	assert.Contains(t, n.sent[0].Body, "3500.00")
}

func TestDeliveryErrorIsReturned(t *testing.T) {
	m, n, ref := setup(domain.StatusApproved)
	n.err = errors.New("db down")

	err := m.Handle(context.Background(), events.PayoutRecorded{ClaimRef: ref, Amount: 10, TransactionID: "TX-1"})
	assert.Error(t, err)
}
