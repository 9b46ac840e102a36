// Package queue moves inbound messages from the webhook edge to the
// decision pipeline through asynq, with weighted priority lanes.
package queue

import (
	"encoding/json"

	"clinic_intake_backend/internal/intake/engine"

	"github.com/hibiken/asynq"
)

const TaskInboundMessage = "intake.message.inbound"

// Lane names, highest priority first. Weighted scheduling: a busy messages
// lane can never starve escalations, and escalations never fully starve the
// other lanes either.
const (
	LaneEscalation = "escalation"
	LaneAIHeavy    = "ai-heavy"
	LaneMessages   = "messages"
)

// LaneWeights is the asynq queue priority map shared by the worker.
var LaneWeights = map[string]int{
	LaneEscalation: 6,
	LaneAIHeavy:    3,
	LaneMessages:   1,
}

func NewInboundMessageTask(msg engine.InboundMessage) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInboundMessage, data), nil
}

func ParseInboundMessagePayload(task *asynq.Task) (engine.InboundMessage, error) {
	var msg engine.InboundMessage
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return engine.InboundMessage{}, err
	}
	return msg, nil
}
