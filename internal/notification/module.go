// Package notification turns claim lifecycle events into in-app messages for
// farmers, insurers and admins. Domain modules publish events and never know
// who is told what.
package notification

import (
	"context"
	"fmt"
	"strings"

	"claims_backend/internal/authz"
	"claims_backend/internal/claims/domain"
	"claims_backend/internal/events"
	apphttp "claims_backend/internal/http"
	notifhandler "claims_backend/internal/notification/handler"
	"claims_backend/internal/notification/inapp"
	"claims_backend/internal/notification/sse"
	"claims_backend/platform/apperr"
	"claims_backend/platform/logger"
	"claims_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const resourceClaim = "claim"

// Notifier delivers one message.
type Notifier interface {
	Notify(ctx context.Context, m inapp.Message) error
}

// ClaimReader loads the current claim so stale events can be dropped.
type ClaimReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Claim, error)
}

// Module handles all notification-related event subscriptions.
type Module struct {
	notifier     Notifier
	claims       ClaimReader
	log          *logger.Logger
	sse          *sse.Service
	inAppHandler *notifhandler.HTTPHandler
}

// New creates the notification module backed by Postgres and SSE.
func New(pool *pgxpool.Pool, claims ClaimReader, val *validator.Validator, log *logger.Logger) *Module {
	stream := sse.New(log)
	inAppSvc := inapp.NewService(inapp.NewRepository(pool), stream, log)

	return &Module{
		notifier:     inAppSvc,
		claims:       claims,
		log:          log,
		sse:          stream,
		inAppHandler: notifhandler.NewHTTPHandler(inAppSvc, val, stream.Handler()),
	}
}

// NewWithNotifier builds a module around an arbitrary notifier, without routes.
func NewWithNotifier(notifier Notifier, claims ClaimReader, log *logger.Logger) *Module {
	return &Module{notifier: notifier, claims: claims, log: log}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.inAppHandler == nil {
		return
	}

	notifications := ctx.Protected.Group("/notifications")
	m.inAppHandler.RegisterRoutes(notifications)
}

// SSE exposes the stream hub so the server can close it on shutdown.
func (m *Module) SSE() *sse.Service { return m.sse }

// RegisterHandlers subscribes the module to claim lifecycle events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ClaimCreated{}.EventName(), m)
	bus.Subscribe(events.ClaimCancelled{}.EventName(), m)

	bus.Subscribe(events.ClaimAIProcessed{}.EventName(), m)
	bus.Subscribe(events.AITaskDeadLettered{}.EventName(), m)

	bus.Subscribe(events.ClaimForwarded{}.EventName(), m)
	bus.Subscribe(events.ClaimAIRejected{}.EventName(), m)

	bus.Subscribe(events.InsurerReportSubmitted{}.EventName(), m)
	bus.Subscribe(events.InsurerDecisionMade{}.EventName(), m)
	bus.Subscribe(events.ClaimFraudFlagged{}.EventName(), m)
	bus.Subscribe(events.PayoutRecorded{}.EventName(), m)
	bus.Subscribe(events.FraudAuditClosed{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ClaimCreated:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message {
			return []inapp.Message{
				toUser(e.FarmerID, e.ClaimID, "Claim received",
					fmt.Sprintf("Claim %s was submitted and is being verified.", e.ClaimNumber), inapp.SeverityInfo),
				toUser(e.InsurerID, e.ClaimID, "New claim assigned",
					fmt.Sprintf("Claim %s over %.2f was routed to you.", e.ClaimNumber, e.ClaimedAmount), inapp.SeverityInfo),
			}
		})
	case events.ClaimCancelled:
		return m.deliver(ctx, toUser(e.InsurerID, e.ClaimID, "Claim withdrawn",
			fmt.Sprintf("Claim %s was cancelled by the farmer.", e.ClaimNumber), inapp.SeverityInfo))
	case events.ClaimAIProcessed:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message {
			body := fmt.Sprintf("AI verification finished for claim %s and is ready for review.", e.ClaimNumber)
			if len(e.ValidationFlags) > 0 {
				body += " Flags: " + strings.Join(e.ValidationFlags, ", ") + "."
			}
			return []inapp.Message{toAdmins(e.ClaimID, "AI assessment ready", body, inapp.SeverityInfo)}
		})
	case events.AITaskDeadLettered:
		return m.handleDeadLettered(ctx, e)
	case events.ClaimForwarded:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message {
			return []inapp.Message{
				toUser(e.InsurerID, e.ClaimID, "Claim forwarded for decision",
					fmt.Sprintf("Claim %s passed admin review and awaits your report.", e.ClaimNumber), inapp.SeverityInfo),
				toUser(e.FarmerID, e.ClaimID, "Claim under review",
					fmt.Sprintf("Claim %s was forwarded to your insurer.", e.ClaimNumber), inapp.SeverityInfo),
			}
		})
	case events.ClaimAIRejected:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message {
			return []inapp.Message{
				toUser(e.InsurerID, e.ClaimID, "Manual review required",
					fmt.Sprintf("The AI assessment of claim %s was rejected: %s", e.ClaimNumber, e.Reason), inapp.SeverityWarning),
				toUser(e.FarmerID, e.ClaimID, "Claim under manual review",
					fmt.Sprintf("Claim %s needs a manual inspection by your insurer.", e.ClaimNumber), inapp.SeverityInfo),
			}
		})
	case events.InsurerReportSubmitted:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message {
			return []inapp.Message{toUser(e.FarmerID, e.ClaimID, "Claim verified",
				fmt.Sprintf("Your insurer filed a verification report for claim %s.", e.ClaimNumber), inapp.SeverityInfo)}
		})
	case events.InsurerDecisionMade:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message { return decisionMessages(e) })
	case events.ClaimFraudFlagged:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message {
			return []inapp.Message{toAdmins(e.ClaimID, "Fraud suspicion raised",
				fmt.Sprintf("Claim %s was flagged: %s", e.ClaimNumber, e.Reason), inapp.SeverityWarning)}
		})
	case events.PayoutRecorded:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message {
			return []inapp.Message{toUser(e.FarmerID, e.ClaimID, "Payout sent",
				fmt.Sprintf("%.2f was paid out for claim %s (transaction %s).", e.Amount, e.ClaimNumber, e.TransactionID), inapp.SeveritySuccess)}
		})
	case events.FraudAuditClosed:
		return m.forLiveClaim(ctx, e.ClaimRef, func() []inapp.Message {
			return []inapp.Message{toUser(e.InsurerID, e.ClaimID, "Fraud audit closed",
				fmt.Sprintf("The fraud audit of claim %s ended as %s.", e.ClaimNumber, e.Outcome), inapp.SeverityInfo)}
		})
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func decisionMessages(e events.InsurerDecisionMade) []inapp.Message {
	var msgs []inapp.Message
	if e.Decision == "approve" {
		amount := 0.0
		if e.ApprovedAmount != nil {
			amount = *e.ApprovedAmount
		}
		msgs = append(msgs, toUser(e.FarmerID, e.ClaimID, "Claim approved",
			fmt.Sprintf("Claim %s was approved for %.2f.", e.ClaimNumber, amount), inapp.SeveritySuccess))
	} else {
		body := fmt.Sprintf("Claim %s was rejected.", e.ClaimNumber)
		if e.Reason != "" {
			body += " Reason: " + e.Reason
		}
		msgs = append(msgs, toUser(e.FarmerID, e.ClaimID, "Claim rejected", body, inapp.SeverityWarning))
	}
	if e.RequiresAudit {
		msgs = append(msgs, toAdmins(e.ClaimID, "Rejection needs fraud audit",
			fmt.Sprintf("Claim %s was rejected despite high AI damage and awaits audit.", e.ClaimNumber), inapp.SeverityWarning))
	}
	return msgs
}

func (m *Module) handleDeadLettered(ctx context.Context, e events.AITaskDeadLettered) error {
	claim, live, err := m.liveClaim(ctx, e.ClaimID)
	if err != nil || !live {
		return err
	}
	return m.deliver(ctx, toAdmins(e.ClaimID, "AI task failed",
		fmt.Sprintf("The %s task of claim %s exhausted its retries: %s", e.TaskType, claim.ClaimNumber, e.Error), inapp.SeverityError))
}

// forLiveClaim builds and delivers messages only while the claim is still
// active. Late AI results on a cancelled claim stay silent.
func (m *Module) forLiveClaim(ctx context.Context, ref events.ClaimRef, build func() []inapp.Message) error {
	_, live, err := m.liveClaim(ctx, ref.ClaimID)
	if err != nil || !live {
		return err
	}
	return m.deliver(ctx, build()...)
}

func (m *Module) liveClaim(ctx context.Context, id uuid.UUID) (domain.Claim, bool, error) {
	if m.claims == nil {
		return domain.Claim{ID: id}, true, nil
	}
	claim, err := m.claims.GetByID(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		m.log.Debug("notification skipped, claim gone", "claim_id", id)
		return domain.Claim{}, false, nil
	}
	if err != nil {
		return domain.Claim{}, false, err
	}
	if claim.Status == domain.StatusCancelled || claim.DeletedAt != nil {
		m.log.Debug("notification skipped, claim cancelled", "claim_id", id)
		return claim, false, nil
	}
	return claim, true, nil
}

func (m *Module) deliver(ctx context.Context, msgs ...inapp.Message) error {
	var firstErr error
	for _, msg := range msgs {
		if msg.UserID == uuid.Nil && msg.Audience == "" {
			continue
		}
		if err := m.notifier.Notify(ctx, msg); err != nil {
			m.log.Error("notification delivery failed", "error", err, "title", msg.Title, "claim_id", msg.ResourceID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func toUser(userID, claimID uuid.UUID, title, body, severity string) inapp.Message {
	return inapp.Message{
		UserID:       userID,
		Title:        title,
		Body:         body,
		Severity:     severity,
		ResourceType: resourceClaim,
		ResourceID:   claimID,
	}
}

func toAdmins(claimID uuid.UUID, title, body, severity string) inapp.Message {
	return inapp.Message{
		Audience:     string(authz.RoleAdmin),
		Title:        title,
		Body:         body,
		Severity:     severity,
		ResourceType: resourceClaim,
		ResourceID:   claimID,
	}
}

var _ apphttp.Module = (*Module)(nil)
var _ events.Handler = (*Module)(nil)
