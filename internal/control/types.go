package control

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// Record is the persisted shape of a control.
type Record struct {
	ID            string       `json:"id"`
	Kind          pool.Kind    `json:"kind"`
	Name          string       `json:"name"`
	RotaryActions bool         `json:"rotaryActions"`
	Storage       pool.Storage `json:"model"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Snapshot is a point-in-time view of a live control.
type Snapshot struct {
	Record

	ActiveStepID string `json:"activeStepId,omitempty"`

	// Style is the merged style of every active feedback (buttons).
	Style entity.Style `json:"style,omitempty"`

	// Condition is the current condition value (triggers).
	Condition *bool `json:"condition,omitempty"`
}

// Event types broadcast on the WebSocket hub.
const (
	EventControlChanged        = "control.changed"
	EventControlInvalidated    = "control.invalidated"
	EventControlDeleted        = "control.deleted"
	EventLocalVariablesChanged = "control.local_variables_changed"
	EventTriggerCondition      = "trigger.condition"
	EventLearnChanged          = "learn.changed"
)

// AllEvents returns every event channel the registry broadcasts on.
func AllEvents() []string {
	return []string{
		EventControlChanged,
		EventControlInvalidated,
		EventControlDeleted,
		EventLocalVariablesChanged,
		EventTriggerCondition,
		EventLearnChanged,
	}
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// FeedbackHistory records changed feedback values for later analysis.
type FeedbackHistory interface {
	WriteFeedbackValue(controlID, entityID, connectionID string, value any)
}

// LearnClient asks a connection for the current real-world options of an
// entity. A nil map means nothing was learned.
type LearnClient interface {
	LearnOptions(ctx context.Context, controlID string, m entity.Model) (map[string]any, error)
}

// GenerateID creates a new control ID.
func GenerateID() string {
	return uuid.New().String()
}
