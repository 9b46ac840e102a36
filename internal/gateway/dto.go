package gateway

import "time"

// WebhookMessageRequest is one inbound chat message as delivered by the
// channel gateway.
type WebhookMessageRequest struct {
	ThreadID         string     `json:"threadId" validate:"required,min=1,max=64"`
	SenderAddress    string     `json:"senderAddress" validate:"required,min=5,max=32"`
	Body             string     `json:"body" validate:"required,min=1,max=4096"`
	SessionName      string     `json:"sessionName" validate:"max=64"`
	ChannelMessageID string     `json:"channelMessageId" validate:"max=128"`
	ReceivedAt       *time.Time `json:"receivedAt"`
}

// WebhookMessageResponse acknowledges an accepted delivery. Processing is
// asynchronous, so acceptance says nothing about the eventual reply.
type WebhookMessageResponse struct {
	Status string `json:"status"`
	Lane   string `json:"lane"`
}
