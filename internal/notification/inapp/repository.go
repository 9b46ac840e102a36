package inapp

import (
	"context"
	"errors"
	"time"

	"clinic_intake_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opList        = "notification.inapp.repository.list"
	opCountUnread = "notification.inapp.repository.count_unread"
	opMarkRead    = "notification.inapp.repository.mark_read"
	opMarkAllRead = "notification.inapp.repository.mark_all_read"

	errRepoNotConfigured = "in-app notification repository not configured"
	errRecipientRequired = "recipientId is required"

	foreignKeyViolation = "23503"
)

type Notification struct {
	ID             uuid.UUID  `json:"id"`
	RecipientID    string     `json:"recipientId"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	Reason         string     `json:"reason"`
	Score          int        `json:"score"`
	IsRead         bool       `json:"isRead"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type CreateParams struct {
	RecipientID    string
	Type           string
	Title          string
	Content        string
	ConversationID *uuid.UUID
	Reason         string
	Score          int
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if p.RecipientID == "" {
		return Notification{}, apperr.Validation(errRecipientRequired).WithOp(opCreate)
	}
	if p.Title == "" || p.Content == "" {
		return Notification{}, apperr.Validation("title and content are required").WithOp(opCreate)
	}

	kind := p.Type
	if kind == "" {
		kind = "info"
	}

	var n Notification
	err := r.pool.QueryRow(ctx, `
		INSERT INTO in_app_notifications
		(recipient_id, type, title, content, conversation_id, reason, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, recipient_id, type, title, content, conversation_id, reason, score, is_read, created_at
	`, p.RecipientID, kind, p.Title, p.Content, p.ConversationID, p.Reason, p.Score).Scan(
		&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Content, &n.ConversationID, &n.Reason, &n.Score, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return Notification{}, apperr.Validation("invalid conversationId").WithOp(opCreate)
		}
		return Notification{}, apperr.Persistence("create in-app notification failed", err).WithOp(opCreate)
	}

	return n, nil
}

func (r *Repository) List(ctx context.Context, recipientID string, limit, offset int) ([]Notification, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if recipientID == "" {
		return nil, 0, apperr.Validation(errRecipientRequired).WithOp(opList)
	}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM in_app_notifications WHERE recipient_id = $1`, recipientID).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Persistence("count notifications failed", err).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient_id, type, title, content, conversation_id, reason, score, is_read, created_at
		FROM in_app_notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, recipientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list notifications query failed", err).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if scanErr := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Content, &n.ConversationID, &n.Reason, &n.Score, &n.IsRead, &n.CreatedAt); scanErr != nil {
			return nil, 0, apperr.Persistence("scan notifications failed", scanErr).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Persistence("iterate notifications failed", rowsErr).WithOp(opList)
	}

	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opCountUnread)
	}
	if recipientID == "" {
		return 0, apperr.Validation(errRecipientRequired).WithOp(opCountUnread)
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM in_app_notifications
		WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID).Scan(&count)
	if err != nil {
		return 0, apperr.Persistence("count unread notifications failed", err).WithOp(opCountUnread)
	}

	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, recipientID string, notificationID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}
	if recipientID == "" || notificationID == uuid.Nil {
		return apperr.Validation("recipientId and notificationId are required").WithOp(opMarkRead)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE id = $1 AND recipient_id = $2
	`, notificationID, recipientID)
	if err != nil {
		return apperr.Persistence("mark notification read failed", err).WithOp(opMarkRead)
	}

	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID string) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkAllRead)
	}
	if recipientID == "" {
		return apperr.Validation(errRecipientRequired).WithOp(opMarkAllRead)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID)
	if err != nil {
		return apperr.Persistence("mark all notifications read failed", err).WithOp(opMarkAllRead)
	}

	return nil
}
