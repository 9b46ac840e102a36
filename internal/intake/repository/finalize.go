package repository

import (
	"context"
	"fmt"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/platform/apperr"

	"github.com/google/uuid"
)

// FinalizeExchangeParams carries everything the pipeline persists at the end
// of one processed inbound message.
type FinalizeExchangeParams struct {
	ConversationID   uuid.UUID
	LeadID           uuid.UUID
	ReplyText        string
	Intent           domain.Intent
	Note             string
	NewScore         int
	NewStage         domain.FunnelStage
	NewStatus        domain.ConversationStatus
	IsUrgent         bool
	NeedsHumanReview bool
	AssignedOperator *string
}

// FinalizeExchange persists the outbound message, the interaction audit
// record, the lead score/stage update, and the conversation status transition
// in one transaction. Values that would violate a policy invariant are
// rejected before any write; they must never be coerced this late.
func (r *Repository) FinalizeExchange(ctx context.Context, p FinalizeExchangeParams) (domain.Message, error) {
	if !p.Intent.Valid() {
		return domain.Message{}, apperr.Invariant(fmt.Sprintf("unknown intent %q reached persistence", p.Intent))
	}
	if p.NewScore < domain.MinScore || p.NewScore > domain.MaxScore {
		return domain.Message{}, apperr.Invariant(fmt.Sprintf("score %d out of range", p.NewScore))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var msg domain.Message
	err = tx.QueryRow(ctx, `
		INSERT INTO conversation_messages (conversation_id, direction, content)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, direction, content, seq, created_at
	`, p.ConversationID, domain.DirectionOutbound, p.ReplyText).Scan(
		&msg.ID, &msg.ConversationID, &msg.Direction, &msg.Content, &msg.Seq, &msg.CreatedAt,
	)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert outbound message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO interactions (conversation_id, intent, note)
		VALUES ($1, $2, $3)
	`, p.ConversationID, p.Intent, p.Note)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert interaction: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE leads
		SET score = $2, stage = $3, updated_at = now()
		WHERE id = $1
	`, p.LeadID, p.NewScore, p.NewStage)
	if err != nil {
		return domain.Message{}, fmt.Errorf("update lead: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET status = $2,
			is_urgent = $3,
			needs_human_review = $4,
			assigned_operator = COALESCE($5, assigned_operator),
			outbound_count = outbound_count + 1,
			updated_at = now()
		WHERE id = $1
	`, p.ConversationID, p.NewStatus, p.IsUrgent, p.NeedsHumanReview, p.AssignedOperator)
	if err != nil {
		return domain.Message{}, fmt.Errorf("update conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, fmt.Errorf("commit finalize: %w", err)
	}

	return msg, nil
}
