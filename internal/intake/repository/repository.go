package repository

import (
	"context"
	"errors"
	"fmt"

	"clinic_intake_backend/internal/intake/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("conversation not found")

// uniqueViolation is the postgres error code raised when two workers race to
// create the open conversation for the same thread.
const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ResolvedThread is the lead/conversation pair for one channel thread.
type ResolvedThread struct {
	Lead         domain.Lead
	Conversation domain.Conversation
	Created      bool
}

type ResolveThreadParams struct {
	ThreadID      string
	SenderAddress string
	SessionName   string
	Source        string
}

// ResolveThread finds the open conversation for a channel thread, creating
// the lead (score 0, stage NEW) and conversation (ACTIVE) atomically when the
// thread has never been seen. The partial unique index on open threads makes
// a creation race surface as a unique violation, which degrades to a re-read.
func (r *Repository) ResolveThread(ctx context.Context, p ResolveThreadParams) (ResolvedThread, error) {
	if found, err := r.findOpenThread(ctx, p.ThreadID); err == nil {
		return found, nil
	} else if !errors.Is(err, ErrNotFound) {
		return ResolvedThread{}, err
	}

	created, err := r.createThread(ctx, p)
	if err == nil {
		return created, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return r.findOpenThread(ctx, p.ThreadID)
	}

	return ResolvedThread{}, err
}

func (r *Repository) findOpenThread(ctx context.Context, threadID string) (ResolvedThread, error) {
	var rt ResolvedThread
	err := r.pool.QueryRow(ctx, `
		SELECT c.id, c.lead_id, c.thread_id, c.session_name, c.status, c.is_urgent,
			c.needs_human_review, c.assigned_operator, c.inbound_count, c.outbound_count,
			c.created_at, c.updated_at,
			l.id, l.channel_address, l.display_name, l.score, l.stage, l.source,
			l.created_at, l.updated_at
		FROM conversations c
		JOIN leads l ON l.id = c.lead_id
		WHERE c.thread_id = $1 AND c.status <> 'CLOSED'
	`, threadID).Scan(
		&rt.Conversation.ID, &rt.Conversation.LeadID, &rt.Conversation.ThreadID,
		&rt.Conversation.SessionName, &rt.Conversation.Status, &rt.Conversation.IsUrgent,
		&rt.Conversation.NeedsHumanReview, &rt.Conversation.AssignedOperator,
		&rt.Conversation.InboundCount, &rt.Conversation.OutboundCount,
		&rt.Conversation.CreatedAt, &rt.Conversation.UpdatedAt,
		&rt.Lead.ID, &rt.Lead.ChannelAddress, &rt.Lead.DisplayName, &rt.Lead.Score,
		&rt.Lead.Stage, &rt.Lead.Source, &rt.Lead.CreatedAt, &rt.Lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ResolvedThread{}, ErrNotFound
	}
	if err != nil {
		return ResolvedThread{}, fmt.Errorf("find open thread: %w", err)
	}
	return rt, nil
}

func (r *Repository) createThread(ctx context.Context, p ResolveThreadParams) (ResolvedThread, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ResolvedThread{}, fmt.Errorf("begin create thread: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	source := p.Source
	if source == "" {
		source = "whatsapp"
	}

	var rt ResolvedThread
	err = tx.QueryRow(ctx, `
		INSERT INTO leads (channel_address, display_name, source)
		VALUES ($1, $1, $2)
		RETURNING id, channel_address, display_name, score, stage, source, created_at, updated_at
	`, p.SenderAddress, source).Scan(
		&rt.Lead.ID, &rt.Lead.ChannelAddress, &rt.Lead.DisplayName, &rt.Lead.Score,
		&rt.Lead.Stage, &rt.Lead.Source, &rt.Lead.CreatedAt, &rt.Lead.UpdatedAt,
	)
	if err != nil {
		return ResolvedThread{}, fmt.Errorf("insert lead: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (lead_id, thread_id, session_name)
		VALUES ($1, $2, $3)
		RETURNING id, lead_id, thread_id, session_name, status, is_urgent,
			needs_human_review, assigned_operator, inbound_count, outbound_count,
			created_at, updated_at
	`, rt.Lead.ID, p.ThreadID, p.SessionName).Scan(
		&rt.Conversation.ID, &rt.Conversation.LeadID, &rt.Conversation.ThreadID,
		&rt.Conversation.SessionName, &rt.Conversation.Status, &rt.Conversation.IsUrgent,
		&rt.Conversation.NeedsHumanReview, &rt.Conversation.AssignedOperator,
		&rt.Conversation.InboundCount, &rt.Conversation.OutboundCount,
		&rt.Conversation.CreatedAt, &rt.Conversation.UpdatedAt,
	)
	if err != nil {
		return ResolvedThread{}, fmt.Errorf("insert conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ResolvedThread{}, fmt.Errorf("commit create thread: %w", err)
	}

	rt.Created = true
	return rt, nil
}
