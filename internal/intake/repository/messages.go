package repository

import (
	"context"
	"fmt"

	"clinic_intake_backend/internal/intake/domain"

	"github.com/google/uuid"
)

// AppendInbound records one inbound turn and bumps the conversation counter.
// Messages are append-only and never mutated after creation.
func (r *Repository) AppendInbound(ctx context.Context, conversationID uuid.UUID, content string) (domain.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin append inbound: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var msg domain.Message
	err = tx.QueryRow(ctx, `
		INSERT INTO conversation_messages (conversation_id, direction, content)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, direction, content, seq, created_at
	`, conversationID, domain.DirectionInbound, content).Scan(
		&msg.ID, &msg.ConversationID, &msg.Direction, &msg.Content, &msg.Seq, &msg.CreatedAt,
	)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert inbound message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET inbound_count = inbound_count + 1, updated_at = now()
		WHERE id = $1
	`, conversationID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("bump inbound count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, fmt.Errorf("commit append inbound: %w", err)
	}

	return msg, nil
}

// RecentMessages returns the last k turns of a conversation in chronological
// order (timestamp, then insertion sequence to break ties).
func (r *Repository) RecentMessages(ctx context.Context, conversationID uuid.UUID, k int) ([]domain.Message, error) {
	if k <= 0 {
		k = 5
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, direction, content, seq, created_at
		FROM (
			SELECT id, conversation_id, direction, content, seq, created_at
			FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) latest
		ORDER BY created_at ASC, seq ASC
	`, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0, k)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Direction, &msg.Content, &msg.Seq, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return messages, nil
}

// CountInbound returns the number of inbound turns persisted for a
// conversation. Used by idempotency checks and tests.
func (r *Repository) CountInbound(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM conversation_messages
		WHERE conversation_id = $1 AND direction = $2
	`, conversationID, domain.DirectionInbound).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count inbound messages: %w", err)
	}
	return count, nil
}
