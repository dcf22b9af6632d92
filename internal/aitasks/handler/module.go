package handler

import (
	"claims_backend/internal/authz"
	apphttp "claims_backend/internal/http"
	"claims_backend/platform/validator"
)

// Module is the AI task operations bounded context.
type Module struct {
	handler *Handler
}

// NewModule wires the operator routes onto the queue.
func NewModule(queue Operator, val *validator.Validator) *Module {
	return &Module{handler: New(queue, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "aitasks"
}

// RegisterRoutes mounts the dead-letter routes under /admin/ai-tasks.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	tasks := ctx.Admin.Group("/ai-tasks", authz.RequireCapability(authz.CapAITaskOperate))
	tasks.GET("/failed", m.handler.ListFailed)
	tasks.POST("/:id/retry", m.handler.Retry)
}

var _ apphttp.Module = (*Module)(nil)
