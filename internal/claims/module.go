// Package claims is the claim intake and verification bounded context.
package claims

import (
	"claims_backend/internal/authz"
	"claims_backend/internal/claims/handler"
	apphttp "claims_backend/internal/http"
	"claims_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Module wires the claim routes for farmers, admins and insurers.
type Module struct {
	handler *handler.Handler
}

// NewModule creates the claims module around the application service.
func NewModule(svc handler.ClaimService, val *validator.Validator) *Module {
	return &Module{handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "claims"
}

// RegisterRoutes mounts the farmer, admin and insurer claim routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	h := m.handler

	claims := ctx.Protected.Group("/claims")
	create := []gin.HandlerFunc{authz.RequireCapability(authz.CapClaimCreate)}
	if ctx.SubmissionLimiter != nil {
		create = append(create, ctx.SubmissionLimiter.RateLimit())
	}
	claims.POST("", append(create, h.Create)...)
	claims.GET("", h.List)
	claims.GET("/:id", h.Get)
	claims.DELETE("/:id", authz.RequireCapability(authz.CapClaimCancel), h.Cancel)
	claims.GET("/:id/ai-tasks", h.ListAITasks)

	admin := ctx.Admin.Group("/claims")
	admin.POST("/:id/forward", authz.RequireCapability(authz.CapClaimReview), h.Forward)
	admin.POST("/:id/reject", authz.RequireCapability(authz.CapClaimReview), h.RejectAI)
	admin.POST("/:id/override-ai", authz.RequireCapability(authz.CapClaimOverrideAI), h.OverrideAI)
	admin.POST("/:id/clear-fraud", authz.RequireCapability(authz.CapClaimAuditFraud), h.ClearFraud)

	insurer := ctx.Protected.Group("/insurer/claims")
	insurer.POST("/:id/report", authz.RequireCapability(authz.CapClaimReport), h.SubmitReport)
	insurer.POST("/:id/decision", authz.RequireCapability(authz.CapClaimDecide), h.Decide)
	insurer.POST("/:id/fraud", authz.RequireCapability(authz.CapClaimFlagFraud), h.FlagFraud)
	insurer.POST("/:id/payout", authz.RequireCapability(authz.CapClaimPayout), h.RecordPayout)
}

var _ apphttp.Module = (*Module)(nil)
