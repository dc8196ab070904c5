package modulehost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/mqtt"
)

// LearnOptions asks the entity's connection for its current options and
// waits for the answer, the learn timeout, ctx cancellation or Stop.
func (b *Bridge) LearnOptions(ctx context.Context, controlID string, m entity.Model) (map[string]any, error) {
	if m.ConnectionID == "" {
		return nil, ErrNoConnection
	}
	select {
	case <-b.done:
		return nil, ErrStopped
	default:
	}

	requestID := uuid.NewString()
	answer := make(chan LearnResponse, 1)

	b.pendingMu.Lock()
	b.pending[requestID] = answer
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, requestID)
		b.pendingMu.Unlock()
	}()

	m.Children = nil
	payload, err := json.Marshal(LearnRequest{
		RequestID: requestID,
		ControlID: controlID,
		Entity:    m,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding learn request: %w", err)
	}
	if err := b.mqtt.Publish(b.topics.LearnRequest(m.ConnectionID), payload, b.qos, false); err != nil {
		return nil, fmt.Errorf("publishing learn request: %w", err)
	}
	b.stats.learnRequests.Add(1)

	timer := time.NewTimer(b.learnTimeout)
	defer timer.Stop()

	select {
	case resp := <-answer:
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrLearnFailed, resp.Error)
		}
		return resp.Options, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v (connection %s)", ErrLearnTimeout, b.learnTimeout, m.ConnectionID)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrStopped
	}
}

func (b *Bridge) handleLearnResponse(topic string, payload []byte) error {
	requestID, ok := mqtt.RequestIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed learn response topic %q", topic)
	}

	var resp LearnResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding learn response %s: %w", requestID, err)
	}

	b.pendingMu.Lock()
	answer, ok := b.pending[requestID]
	b.pendingMu.Unlock()
	if !ok {
		// Late answer for a request that already timed out.
		b.logDebug("learn response without pending request", "request_id", requestID)
		return nil
	}

	select {
	case answer <- resp:
	default:
	}
	return nil
}
