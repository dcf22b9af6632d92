package inapp

import (
	"context"
	"errors"
	"time"

	"claims_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opList        = "notification.inapp.repository.list"
	opCountUnread = "notification.inapp.repository.count_unread"
	opMarkRead    = "notification.inapp.repository.mark_read"
	opMarkAllRead = "notification.inapp.repository.mark_all_read"

	errRepoNotConfigured = "in-app notification repository not configured"
)

// Notification is one stored in-app message. Exactly one of UserID and
// Audience addresses it; audience rows are shared by every holder of the role.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	UserID       *uuid.UUID `json:"userId,omitempty"`
	Audience     *string    `json:"audience,omitempty"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Severity     string     `json:"severity"`
	ResourceType *string    `json:"resourceType,omitempty"`
	ResourceID   *uuid.UUID `json:"resourceId,omitempty"`
	IsRead       bool       `json:"isRead"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// CreateParams describes a new notification row.
type CreateParams struct {
	UserID       *uuid.UUID
	Audience     *string
	Title        string
	Content      string
	Severity     string
	ResourceType *string
	ResourceID   *uuid.UUID
}

// Recipient is who is reading: the user and the roles they hold.
type Recipient struct {
	UserID uuid.UUID
	Roles  []string
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, r Recipient, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, r Recipient) (int, error)
	MarkRead(ctx context.Context, r Recipient, id uuid.UUID) error
	MarkAllRead(ctx context.Context, r Recipient) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `id, user_id, audience, title, content, severity, resource_type, resource_id, is_read, created_at`

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO in_app_notifications (user_id, audience, title, content, severity, resource_type, resource_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+notificationColumns,
		p.UserID, p.Audience, p.Title, p.Content, p.Severity, p.ResourceType, p.ResourceID)
	n, err := scanNotification(row)
	if err != nil {
		return Notification{}, apperr.Wrap(apperr.KindInternal, "create in-app notification failed", err).WithOp(opCreate)
	}
	return n, nil
}

func (r *Repository) List(ctx context.Context, rcpt Recipient, limit, offset int) ([]Notification, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM in_app_notifications
		WHERE user_id = $1 OR audience = ANY($2)
	`, rcpt.UserID, rcpt.Roles).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "count notifications failed", err).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM in_app_notifications
		WHERE user_id = $1 OR audience = ANY($2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, rcpt.UserID, rcpt.Roles, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "list notifications query failed", err).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, 0, apperr.Wrap(apperr.KindInternal, "scan notifications failed", scanErr).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "iterate notifications failed", rowsErr).WithOp(opList)
	}

	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, rcpt Recipient) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opCountUnread)
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM in_app_notifications
		WHERE (user_id = $1 OR audience = ANY($2)) AND is_read = FALSE
	`, rcpt.UserID, rcpt.Roles).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "count unread notifications failed", err).WithOp(opCountUnread)
	}
	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, rcpt Recipient, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE
		WHERE id = $1 AND (user_id = $2 OR audience = ANY($3))
	`, id, rcpt.UserID, rcpt.Roles)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "mark notification read failed", err).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, rcpt Recipient) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkAllRead)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE
		WHERE (user_id = $1 OR audience = ANY($2)) AND is_read = FALSE
	`, rcpt.UserID, rcpt.Roles)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "mark all notifications read failed", err).WithOp(opMarkAllRead)
	}
	return nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Audience, &n.Title, &n.Content, &n.Severity,
		&n.ResourceType, &n.ResourceID, &n.IsRead, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, apperr.NotFound("notification not found")
	}
	return n, err
}

var _ Store = (*Repository)(nil)
