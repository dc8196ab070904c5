package modulehost

import (
	"time"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
)

// EntityAction tells a connection whether to start or stop reporting for an entity.
type EntityAction string

const (
	ActionSubscribe   EntityAction = "subscribe"
	ActionUnsubscribe EntityAction = "unsubscribe"
)

// EntityNotice is published to graylogic/connection/{id}/entities whenever an
// entity using that connection is subscribed or unsubscribed.
type EntityNotice struct {
	Action    EntityAction `json:"action"`
	ControlID string       `json:"controlId"`
	Entity    entity.Model `json:"entity"`
	Timestamp time.Time    `json:"timestamp"`
}

// FeedbackBatch is received on graylogic/connection/{id}/feedbacks.
// Reset marks a restarted connection: cached values are cleared before the
// batch is applied.
type FeedbackBatch struct {
	Values []entity.FeedbackValue `json:"values"`
	Reset  bool                   `json:"reset,omitempty"`
}

// LearnRequest is published to graylogic/connection/{id}/learn/request.
// The connection answers on .../learn/response/{requestId}.
type LearnRequest struct {
	RequestID string       `json:"requestId"`
	ControlID string       `json:"controlId"`
	Entity    entity.Model `json:"entity"`
	Timestamp time.Time    `json:"timestamp"`
}

// LearnResponse carries learned options, or Error when the connection could
// not learn them. Nil Options with no Error means nothing was learned.
type LearnResponse struct {
	Options map[string]any `json:"options,omitempty"`
	Error   string         `json:"error,omitempty"`
}
