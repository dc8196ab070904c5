package modulehost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/mqtt"
)

const (
	defaultLearnTimeout = 10 * time.Second
	defaultOutboxSize   = 1024
	defaultQoS          = 1
)

// MQTTClient is the part of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Sink receives what connections report. *control.Registry satisfies it.
type Sink interface {
	UpdateFeedbackValues(connectionID string, values []entity.FeedbackValue) int
	ForgetConnection(connectionID string) int
	ClearConnectionValues(connectionID string)
	ResubscribeConnection()
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// MQTTClient is required.
	MQTTClient MQTTClient

	// QoS for published and subscribed topics. Defaults to 1.
	QoS byte

	// LearnTimeout bounds a single learn round trip. Defaults to 10s.
	LearnTimeout time.Duration

	// OutboxSize is the number of entity notices that may wait for the
	// publisher. Producers block while it is full.
	OutboxSize int

	Logger Logger
}

// Bridge connects the controls service to the module-host layer over MQTT.
//
// It implements entity.ConnectionHost (entity notices are queued and
// published by a single worker that runs from NewBridge until Stop) and
// control.LearnClient (request/response correlated by request ID).
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt         MQTTClient
	topics       mqtt.Topics
	qos          byte
	learnTimeout time.Duration

	sink   Sink
	sinkMu sync.RWMutex

	outbox chan outbound

	pending   map[string]chan LearnResponse
	pendingMu sync.Mutex

	stats bridgeCounters

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

type outbound struct {
	topic   string
	payload []byte
}

type bridgeCounters struct {
	noticesPublished atomic.Uint64
	noticesDropped   atomic.Uint64
	batchesReceived  atomic.Uint64
	learnRequests    atomic.Uint64
}

// Stats is a point-in-time copy of the bridge counters.
type Stats struct {
	NoticesPublished uint64 `json:"notices_published"`
	NoticesDropped   uint64 `json:"notices_dropped"`
	NoticesQueued    int    `json:"notices_queued"`
	BatchesReceived  uint64 `json:"batches_received"`
	LearnRequests    uint64 `json:"learn_requests"`
	LearnPending     int    `json:"learn_pending"`
}

// NewBridge creates a bridge and starts its notice publisher, so controls
// loaded before Start can announce their entities.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	qos := opts.QoS
	if qos == 0 {
		qos = defaultQoS
	}
	learnTimeout := opts.LearnTimeout
	if learnTimeout <= 0 {
		learnTimeout = defaultLearnTimeout
	}
	outboxSize := opts.OutboxSize
	if outboxSize <= 0 {
		outboxSize = defaultOutboxSize
	}

	b := &Bridge{
		mqtt:         opts.MQTTClient,
		qos:          qos,
		learnTimeout: learnTimeout,
		outbox:       make(chan outbound, outboxSize),
		pending:      make(map[string]chan LearnResponse),
		done:         make(chan struct{}),
		logger:       opts.Logger,
	}

	b.wg.Add(1)
	go b.publishLoop()

	return b, nil
}

// Start subscribes to the inbound connection topics. sink receives feedback
// batches and connection deletions.
func (b *Bridge) Start(ctx context.Context, sink Sink) error {
	if sink == nil {
		return fmt.Errorf("sink is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.sinkMu.Lock()
	b.sink = sink
	b.sinkMu.Unlock()

	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.AllConnectionFeedbacks(), b.handleFeedbacks},
		{b.topics.AllConnectionDeleted(), b.handleDeleted},
		{b.topics.AllLearnResponses(), b.handleLearnResponse},
	}
	for _, s := range subscriptions {
		if err := b.mqtt.Subscribe(s.topic, b.qos, s.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}
		b.logDebug("subscribed", "topic", s.topic)
	}

	b.logInfo("module host bridge started")
	return nil
}

// Stop ends the publisher and fails pending learn requests with ErrStopped.
// Notices still queued are discarded.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.logInfo("module host bridge stopped")
	})
}

// HandleReconnect re-sends every entity subscription. Register it as the
// MQTT on-connect callback so connections relearn what to report after a
// broker outage.
func (b *Bridge) HandleReconnect() {
	if sink := b.getSink(); sink != nil {
		sink.ResubscribeConnection()
	}
}

// Stats returns the current bridge counters.
func (b *Bridge) Stats() Stats {
	b.pendingMu.Lock()
	pending := len(b.pending)
	b.pendingMu.Unlock()

	return Stats{
		NoticesPublished: b.stats.noticesPublished.Load(),
		NoticesDropped:   b.stats.noticesDropped.Load(),
		NoticesQueued:    len(b.outbox),
		BatchesReceived:  b.stats.batchesReceived.Load(),
		LearnRequests:    b.stats.learnRequests.Load(),
		LearnPending:     pending,
	}
}

// ─── entity.ConnectionHost ──────────────────────────────────────────────────

// SubscribeEntity queues a subscribe notice for the entity's connection.
func (b *Bridge) SubscribeEntity(controlID string, m entity.Model) {
	b.enqueueNotice(ActionSubscribe, controlID, m)
}

// UnsubscribeEntity queues an unsubscribe notice for the entity's connection.
func (b *Bridge) UnsubscribeEntity(controlID string, m entity.Model) {
	b.enqueueNotice(ActionUnsubscribe, controlID, m)
}

func (b *Bridge) enqueueNotice(action EntityAction, controlID string, m entity.Model) {
	if m.ConnectionID == "" {
		return
	}

	notice := EntityNotice{
		Action:    action,
		ControlID: controlID,
		Entity:    m,
		Timestamp: time.Now().UTC(),
	}
	// Children are announced by their own notices.
	notice.Entity.Children = nil

	payload, err := json.Marshal(notice)
	if err != nil {
		b.logError("encoding entity notice", err)
		return
	}

	select {
	case <-b.done:
		return
	default:
	}

	msg := outbound{topic: b.topics.ConnectionEntities(m.ConnectionID), payload: payload}
	select {
	case b.outbox <- msg:
		return
	default:
	}

	// Full outbox: wait for the publisher rather than lose the notice.
	b.logDebug("entity outbox full, waiting", "connection_id", m.ConnectionID, "entity_id", m.ID)
	select {
	case b.outbox <- msg:
	case <-b.done:
		b.stats.noticesDropped.Add(1)
		b.logWarn("entity notice dropped, bridge stopped",
			"connection_id", m.ConnectionID, "entity_id", m.ID, "action", action)
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case msg := <-b.outbox:
			if err := b.mqtt.Publish(msg.topic, msg.payload, b.qos, false); err != nil {
				b.logError("publishing entity notice", err)
				continue
			}
			b.stats.noticesPublished.Add(1)
		case <-b.done:
			return
		}
	}
}

// ─── Inbound handlers ───────────────────────────────────────────────────────

func (b *Bridge) handleFeedbacks(topic string, payload []byte) error {
	connectionID, ok := mqtt.ConnectionIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed feedback topic %q", topic)
	}

	var batch FeedbackBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return fmt.Errorf("decoding feedback batch from %s: %w", connectionID, err)
	}
	b.stats.batchesReceived.Add(1)

	sink := b.getSink()
	if sink == nil {
		return nil
	}
	if batch.Reset {
		sink.ClearConnectionValues(connectionID)
	}
	changed := sink.UpdateFeedbackValues(connectionID, batch.Values)
	b.logDebug("feedback batch applied",
		"connection_id", connectionID, "values", len(batch.Values), "changed", changed)
	return nil
}

func (b *Bridge) handleDeleted(topic string, _ []byte) error {
	connectionID, ok := mqtt.ConnectionIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed deleted topic %q", topic)
	}
	if sink := b.getSink(); sink != nil {
		sink.ForgetConnection(connectionID)
	}
	return nil
}

func (b *Bridge) getSink() Sink {
	b.sinkMu.RLock()
	defer b.sinkMu.RUnlock()
	return b.sink
}

// ─── Logging ────────────────────────────────────────────────────────────────

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
