package store

import (
	"context"
	"time"

	"grana/internal/core"
)

const (
	EventTransactionAdded EventKind = "transaction_added"
	EventTaskCompleted    EventKind = "task_completed"
	EventGoalCompleted    EventKind = "goal_completed"
)

type EventKind string

// Event describes a qualifying state transition. Celebratory reactions
// (confetti and friends) belong to whoever consumes these, never to the
// store itself.
type Event struct {
	Kind        EventKind         `json:"kind"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
	TaskID      string            `json:"task_id,omitempty"`
	GoalID      string            `json:"goal_id,omitempty"`
	Title       string            `json:"title,omitempty"`
	XPAwarded   int               `json:"xp_awarded,omitempty"`
}

// Notifier receives store events. Events are delivered outside the
// store's lock, so implementations may block briefly or read back from
// the store; failures are theirs to log and swallow.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}
