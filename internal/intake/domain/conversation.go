package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the lifecycle state of a conversation thread.
// Transitions never move backward and CLOSED is terminal.
type ConversationStatus string

const (
	StatusActive         ConversationStatus = "ACTIVE"
	StatusPendingHandoff ConversationStatus = "PENDING_HANDOFF"
	StatusEscalated      ConversationStatus = "ESCALATED"
	StatusClosed         ConversationStatus = "CLOSED"
)

var statusTransitions = map[ConversationStatus]map[ConversationStatus]bool{
	StatusActive: {
		StatusPendingHandoff: true,
		StatusEscalated:      true,
		StatusClosed:         true,
	},
	StatusPendingHandoff: {
		StatusEscalated: true,
		StatusClosed:    true,
	},
	StatusEscalated: {
		StatusClosed: true,
	},
	StatusClosed: {},
}

// CanTransition reports whether the status may move to the target state.
// Staying in the same state is always allowed.
func (s ConversationStatus) CanTransition(to ConversationStatus) bool {
	if s == to {
		return true
	}
	allowed, ok := statusTransitions[s]
	if !ok {
		return false
	}
	return allowed[to]
}

// Terminal reports whether the status accepts no further transitions.
func (s ConversationStatus) Terminal() bool {
	return s == StatusClosed
}

// Conversation is one ongoing thread tied to exactly one lead.
type Conversation struct {
	ID               uuid.UUID
	LeadID           uuid.UUID
	ThreadID         string
	SessionName      string
	Status           ConversationStatus
	IsUrgent         bool
	NeedsHumanReview bool
	AssignedOperator *string
	InboundCount     int
	OutboundCount    int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Direction marks which side of the conversation produced a message.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Message is one immutable conversation turn. Ordering is timestamp plus an
// insertion sequence to break ties.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Direction      Direction
	Content        string
	Seq            int64
	CreatedAt      time.Time
}

// Interaction is an append-only audit entry for one classified exchange.
type Interaction struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Intent         Intent
	Note           string
	CreatedAt      time.Time
}
