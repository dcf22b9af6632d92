// Package handler exposes the AI task dead-letter queue to operators.
package handler

import (
	"context"
	"net/http"

	"claims_backend/internal/aitasks"
	"claims_backend/platform/httpkit"
	"claims_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid task id"
)

// Operator is the queue surface the handler needs.
type Operator interface {
	GetFailedTasks(ctx context.Context, limit int) ([]aitasks.Task, error)
	RetryTask(ctx context.Context, taskID uuid.UUID) (aitasks.Task, error)
}

// ListFailedRequest pages the dead-letter queue.
type ListFailedRequest struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=500"`
}

// ListFailedResponse wraps the failed tasks.
type ListFailedResponse struct {
	Items []aitasks.Task `json:"items"`
	Total int            `json:"total"`
}

// Handler handles HTTP requests for AI tasks.
type Handler struct {
	queue Operator
	val   *validator.Validator
}

// New creates a new AI task handler.
func New(queue Operator, val *validator.Validator) *Handler {
	return &Handler{queue: queue, val: val}
}

// ListFailed returns dead-lettered and otherwise failed tasks.
// GET /api/v1/admin/ai-tasks/failed
func (h *Handler) ListFailed(c *gin.Context) {
	var req ListFailedRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	tasks, err := h.queue.GetFailedTasks(c.Request.Context(), req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	if tasks == nil {
		tasks = []aitasks.Task{}
	}
	httpkit.OK(c, ListFailedResponse{Items: tasks, Total: len(tasks)})
}

// Retry resets a failed task and dispatches it again.
// POST /api/v1/admin/ai-tasks/:id/retry
func (h *Handler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	task, err := h.queue.RetryTask(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, task)
}
