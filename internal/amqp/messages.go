package amqp

import (
	"encoding/json"
	"time"

	"grana/internal/core"
	"grana/internal/store"
)

// EventMessage is the wire form of a store event. The transaction payload
// travels inline so the export worker never has to reach back into the
// dashboard's storage.
type EventMessage struct {
	Kind        string            `json:"kind"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
	TaskID      string            `json:"task_id,omitempty"`
	GoalID      string            `json:"goal_id,omitempty"`
	Title       string            `json:"title,omitempty"`
	XPAwarded   int               `json:"xp_awarded,omitempty"`
}

func NewEventMessage(ev store.Event) *EventMessage {
	return &EventMessage{
		Kind:        string(ev.Kind),
		OccurredAt:  ev.OccurredAt,
		Transaction: ev.Transaction,
		TaskID:      ev.TaskID,
		GoalID:      ev.GoalID,
		Title:       ev.Title,
		XPAwarded:   ev.XPAwarded,
	}
}

func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
