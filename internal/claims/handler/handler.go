// Package handler provides HTTP handlers for claim intake, the admin review
// gate and insurer decisions.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"claims_backend/internal/aitasks"
	"claims_backend/internal/claims/service"
	"claims_backend/internal/claims/transport"
	"claims_backend/platform/httpkit"
	"claims_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// IdempotencyKeyHeader carries the client-chosen submission key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency ledger.
	ReplayedHeader = "Idempotent-Replayed"

	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid claim id"
)

// ClaimService is the application surface the handler drives.
type ClaimService interface {
	CreateClaim(ctx context.Context, in service.CreateClaimInput) (service.CreateClaimResult, error)
	GetClaim(ctx context.Context, actor service.Actor, id uuid.UUID) (transport.ClaimResponse, error)
	ListClaims(ctx context.Context, actor service.Actor, req transport.ListClaimsRequest) (transport.ListClaimsResponse, error)
	CancelClaim(ctx context.Context, actor service.Actor, id uuid.UUID) (transport.ClaimResponse, error)
	ListAITasks(ctx context.Context, actor service.Actor, id uuid.UUID) ([]aitasks.Task, error)
	ForwardToInsurer(ctx context.Context, actor service.Actor, id uuid.UUID, req transport.ForwardRequest) (transport.ClaimResponse, error)
	RejectAIAssessment(ctx context.Context, actor service.Actor, id uuid.UUID, req transport.RejectAIRequest) (transport.ClaimResponse, error)
	OverrideAIAssessment(ctx context.Context, actor service.Actor, id uuid.UUID, req transport.OverrideAIRequest) (transport.ClaimResponse, error)
	ClearFraudFlag(ctx context.Context, actor service.Actor, id uuid.UUID, req transport.ClearFraudRequest) (transport.ClaimResponse, error)
	SubmitReport(ctx context.Context, actor service.Actor, id uuid.UUID, req transport.SubmitReportRequest) (transport.ClaimResponse, error)
	Decide(ctx context.Context, actor service.Actor, id uuid.UUID, req transport.DecisionRequest) (transport.ClaimResponse, error)
	FlagFraud(ctx context.Context, actor service.Actor, id uuid.UUID, req transport.FlagFraudRequest) (transport.ClaimResponse, error)
	RecordPayout(ctx context.Context, actor service.Actor, id uuid.UUID, req transport.PayoutRequest) (transport.ClaimResponse, error)
}

// Handler handles HTTP requests for claims.
type Handler struct {
	svc ClaimService
	val *validator.Validator
}

// New creates a new claims handler.
func New(svc ClaimService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Create submits a new claim. The Idempotency-Key header is optional; retries
// with the same key get the original response body back.
// POST /api/v1/claims
func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateClaimRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.svc.CreateClaim(c.Request.Context(), service.CreateClaimInput{
		FarmerID:       identity.UserID(),
		IdempotencyKey: strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)),
		Request:        req,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	if result.Replayed {
		c.Header(ReplayedHeader, "true")
	}
	httpkit.RawJSON(c, http.StatusCreated, result.Body)
}

// List returns the claims visible to the caller.
// GET /api/v1/claims
func (h *Handler) List(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req transport.ListClaimsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	result, err := h.svc.ListClaims(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Get returns one claim.
// GET /api/v1/claims/:id
func (h *Handler) Get(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	result, err := h.svc.GetClaim(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Cancel withdraws a pending claim.
// DELETE /api/v1/claims/:id
func (h *Handler) Cancel(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	result, err := h.svc.CancelClaim(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListAITasks shows the verification jobs of a claim.
// GET /api/v1/claims/:id/ai-tasks
func (h *Handler) ListAITasks(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	tasks, err := h.svc.ListAITasks(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": tasks})
}

// Forward hands the claim to its insurer.
// POST /api/v1/admin/claims/:id/forward
func (h *Handler) Forward(c *gin.Context) {
	var req transport.ForwardRequest
	mutate(h, c, &req, h.svc.ForwardToInsurer)
}

// RejectAI sends the claim to manual review.
// POST /api/v1/admin/claims/:id/reject
func (h *Handler) RejectAI(c *gin.Context) {
	var req transport.RejectAIRequest
	mutate(h, c, &req, h.svc.RejectAIAssessment)
}

// OverrideAI corrects the AI assessment.
// POST /api/v1/admin/claims/:id/override-ai
func (h *Handler) OverrideAI(c *gin.Context) {
	var req transport.OverrideAIRequest
	mutate(h, c, &req, h.svc.OverrideAIAssessment)
}

// ClearFraud closes a fraud audit.
// POST /api/v1/admin/claims/:id/clear-fraud
func (h *Handler) ClearFraud(c *gin.Context) {
	var req transport.ClearFraudRequest
	mutate(h, c, &req, h.svc.ClearFraudFlag)
}

// SubmitReport records the insurer's report.
// POST /api/v1/insurer/claims/:id/report
func (h *Handler) SubmitReport(c *gin.Context) {
	var req transport.SubmitReportRequest
	mutate(h, c, &req, h.svc.SubmitReport)
}

// Decide approves or rejects the claim.
// POST /api/v1/insurer/claims/:id/decision
func (h *Handler) Decide(c *gin.Context) {
	var req transport.DecisionRequest
	mutate(h, c, &req, h.svc.Decide)
}

// FlagFraud raises a fraud suspicion.
// POST /api/v1/insurer/claims/:id/fraud
func (h *Handler) FlagFraud(c *gin.Context) {
	var req transport.FlagFraudRequest
	mutate(h, c, &req, h.svc.FlagFraud)
}

// RecordPayout settles an approved claim.
// POST /api/v1/insurer/claims/:id/payout
func (h *Handler) RecordPayout(c *gin.Context) {
	var req transport.PayoutRequest
	mutate(h, c, &req, h.svc.RecordPayout)
}

type mutation[R any] func(ctx context.Context, actor service.Actor, id uuid.UUID, req R) (transport.ClaimResponse, error)

// mutate binds the body, validates it and runs one state-changing call.
func mutate[R any](h *Handler, c *gin.Context, req *R, call mutation[R]) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	if !h.bindJSON(c, req) {
		return
	}
	result, err := call(c.Request.Context(), actor, id, *req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

func actorFrom(c *gin.Context) (service.Actor, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return service.Actor{}, false
	}
	return service.NewActor(identity.UserID(), identity.Roles()), true
}

func actorAndID(c *gin.Context) (service.Actor, uuid.UUID, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		return service.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return service.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
