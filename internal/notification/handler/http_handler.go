package handler

import (
	"context"
	"net/http"

	"claims_backend/internal/notification/inapp"
	"claims_backend/platform/httpkit"
	"claims_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Inbox is the notification surface the handler reads.
type Inbox interface {
	List(ctx context.Context, r inapp.Recipient, page, pageSize int) ([]inapp.Notification, int, error)
	CountUnread(ctx context.Context, r inapp.Recipient) (int, error)
	MarkRead(ctx context.Context, r inapp.Recipient, id uuid.UUID) error
	MarkAllRead(ctx context.Context, r inapp.Recipient) error
}

// ListRequest pages the inbox.
type ListRequest struct {
	Page  int `form:"page" validate:"omitempty,min=1"`
	Limit int `form:"limit" validate:"omitempty,min=1,max=100"`
}

type HTTPHandler struct {
	svc    Inbox
	val    *validator.Validator
	stream gin.HandlerFunc
}

func NewHTTPHandler(svc Inbox, val *validator.Validator, stream gin.HandlerFunc) *HTTPHandler {
	return &HTTPHandler{svc: svc, val: val, stream: stream}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/unread", h.CountUnread)
	rg.PATCH("/:id/read", h.MarkRead)
	rg.PATCH("/read-all", h.MarkAllRead)
	if h.stream != nil {
		rg.GET("/stream", h.stream)
	}
}

func recipient(c *gin.Context) (inapp.Recipient, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return inapp.Recipient{}, false
	}
	return inapp.Recipient{UserID: identity.UserID(), Roles: identity.Roles()}, true
}

func (h *HTTPHandler) List(c *gin.Context) {
	rcpt, ok := recipient(c)
	if !ok {
		return
	}

	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.FieldErrors(err))
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}

	items, total, err := h.svc.List(c.Request.Context(), rcpt, req.Page, req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	if items == nil {
		items = []inapp.Notification{}
	}

	httpkit.OK(c, gin.H{
		"items": items,
		"total": total,
		"page":  req.Page,
	})
}

func (h *HTTPHandler) CountUnread(c *gin.Context) {
	rcpt, ok := recipient(c)
	if !ok {
		return
	}

	count, err := h.svc.CountUnread(c.Request.Context(), rcpt)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"count": count})
}

func (h *HTTPHandler) MarkRead(c *gin.Context) {
	rcpt, ok := recipient(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), rcpt, id); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *HTTPHandler) MarkAllRead(c *gin.Context) {
	rcpt, ok := recipient(c)
	if !ok {
		return
	}

	if err := h.svc.MarkAllRead(c.Request.Context(), rcpt); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}
