package engine

import (
	"context"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/repository"

	"github.com/google/uuid"
)

// Classification is the language service's answer for one message, already
// coerced to the closed taxonomy at the client boundary.
type Classification struct {
	Intent     domain.Intent
	Phase      domain.FunnelPhase
	Confidence int // 0..100
}

// Classifier classifies a message against the intent taxonomy, given short
// conversation context and a funnel-phase hint derived from the current score.
type Classifier interface {
	Classify(ctx context.Context, message string, shortContext []string, phaseHint domain.FunnelPhase) (Classification, error)
}

// UrgencyRater is the confirmatory second stage of urgency detection.
type UrgencyRater interface {
	ConfirmUrgency(ctx context.Context, message string) (domain.UrgencyLevel, error)
}

// PlaybookStep is one ordered content step of a playbook.
type PlaybookStep struct {
	Order   int
	Content string
}

// PlaybookMatch is a ranked knowledge-index result. Transient: owned by the
// retrieval call, only read by the engine.
type PlaybookMatch struct {
	PlaybookID string
	Confidence float64 // 0..1
	Steps      []PlaybookStep
}

// KnowledgeSearcher queries the knowledge index, with the classified intent
// as a filter hint.
type KnowledgeSearcher interface {
	Search(ctx context.Context, message string, intent domain.Intent) ([]PlaybookMatch, error)
}

// GenerateRequest carries everything the generation call may condition on.
type GenerateRequest struct {
	Message      string
	ShortContext []string
	Playbook     *PlaybookMatch
	Score        int
	Stage        domain.FunnelStage
}

// GeneratedReply is the generation response.
type GeneratedReply struct {
	Text       string
	TokensUsed int
	LatencyMs  int64
}

// Generator produces the substantive reply text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GeneratedReply, error)
}

// OutboundSender delivers the chosen reply back to the channel.
type OutboundSender interface {
	SendMessage(ctx context.Context, sessionName, threadID, text string) error
}

// Escalation describes one hand-off to a human operator.
type Escalation struct {
	ConversationID uuid.UUID
	ThreadID       string
	Reason         domain.EscalationReason
	Score          int
	Urgency        domain.UrgencyLevel
}

// EscalationNotifier records and dispatches the operator alert. It returns
// the operator the routing rule assigned, if any, and must be idempotent per
// (conversation, reason) within a short window.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, esc Escalation) (operator *string, err error)
}

// Store is the transactional persistence surface the pipeline needs.
// Satisfied by the intake repository.
type Store interface {
	ResolveThread(ctx context.Context, p repository.ResolveThreadParams) (repository.ResolvedThread, error)
	AppendInbound(ctx context.Context, conversationID uuid.UUID, content string) (domain.Message, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, k int) ([]domain.Message, error)
	FinalizeExchange(ctx context.Context, p repository.FinalizeExchangeParams) (domain.Message, error)
}
