package engine

import (
	"time"

	"clinic_intake_backend/internal/intake/domain"

	"github.com/google/uuid"
)

// InboundMessage is the normalized inbound event as carried by the job queue.
type InboundMessage struct {
	ThreadID         string    `json:"threadId"`
	SenderAddress    string    `json:"senderAddress"`
	Body             string    `json:"body"`
	SessionName      string    `json:"sessionName"`
	ChannelMessageID string    `json:"channelMessageId"`
	ReceivedAt       time.Time `json:"receivedAt"`
}

// ProcessingResult summarizes one pipeline run. The worker harness uses it
// for logging only and never re-interprets it.
type ProcessingResult struct {
	ConversationID uuid.UUID               `json:"conversationId"`
	LeadID         uuid.UUID               `json:"leadId"`
	Policy         domain.Policy           `json:"policy"`
	Reason         domain.EscalationReason `json:"reason,omitempty"`
	Intent         domain.Intent           `json:"intent"`
	Urgency        domain.UrgencyLevel     `json:"urgency"`
	NewScore       int                     `json:"newScore"`
	Escalated      bool                    `json:"escalated"`
	ReplyText      string                  `json:"replyText"`
	Delivered      bool                    `json:"delivered"`
	Duplicate      bool                    `json:"duplicate"`
}
