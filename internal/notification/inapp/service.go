// Package inapp stores claim notifications and pushes them to online users.
package inapp

import (
	"context"
	"strings"

	"claims_backend/internal/notification/sse"
	"claims_backend/platform/apperr"
	"claims_backend/platform/logger"

	"github.com/google/uuid"
)

// Severities understood by the clients.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Pusher delivers live events to connected clients.
type Pusher interface {
	Publish(userID uuid.UUID, event sse.Event) int
	PublishToRole(role string, event sse.Event) int
}

// Message is one notification to deliver to a user or to a role audience.
type Message struct {
	UserID       uuid.UUID
	Audience     string
	Title        string
	Body         string
	Severity     string
	ResourceType string
	ResourceID   uuid.UUID
}

type Service struct {
	store Store
	push  Pusher
	log   *logger.Logger
}

func NewService(store Store, push Pusher, log *logger.Logger) *Service {
	return &Service{store: store, push: push, log: log}
}

// Notify persists the message and pushes it via SSE to whoever is online.
func (s *Service) Notify(ctx context.Context, m Message) error {
	if (m.UserID == uuid.Nil) == (m.Audience == "") {
		return apperr.Validation("notification needs exactly one of user or audience")
	}
	if strings.TrimSpace(m.Title) == "" || strings.TrimSpace(m.Body) == "" {
		return apperr.Validation("title and body are required")
	}
	if m.Severity == "" {
		m.Severity = SeverityInfo
	}

	params := CreateParams{Title: m.Title, Content: m.Body, Severity: m.Severity}
	if m.UserID != uuid.Nil {
		params.UserID = &m.UserID
	} else {
		params.Audience = &m.Audience
	}
	if m.ResourceType != "" {
		params.ResourceType = &m.ResourceType
	}
	if m.ResourceID != uuid.Nil {
		params.ResourceID = &m.ResourceID
	}

	notif, err := s.store.Create(ctx, params)
	if err != nil {
		s.log.WithContext(ctx).Error("failed to persist in-app notification", "error", err, "user_id", m.UserID, "audience", m.Audience)
		return err
	}

	if s.push == nil {
		return nil
	}
	event := sse.Event{Type: sse.EventNotification, ClaimID: m.ResourceID, Message: m.Title, Data: notif}
	if m.UserID != uuid.Nil {
		s.push.Publish(m.UserID, event)
	} else {
		s.push.PublishToRole(m.Audience, event)
	}
	return nil
}

func (s *Service) List(ctx context.Context, r Recipient, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.store.List(ctx, r, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, r Recipient) (int, error) {
	return s.store.CountUnread(ctx, r)
}

func (s *Service) MarkRead(ctx context.Context, r Recipient, id uuid.UUID) error {
	return s.store.MarkRead(ctx, r, id)
}

func (s *Service) MarkAllRead(ctx context.Context, r Recipient) error {
	return s.store.MarkAllRead(ctx, r)
}
