package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-controls/internal/control"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-controls/internal/infrastructure/logging"
)

// Message types on the WebSocket.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// WSMessage is a message sent to a WebSocket client. Snapshot marks events
// replayed on subscribe rather than broadcast live.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Snapshot  bool   `json:"snapshot,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects event channels and, optionally, the controls
// whose events the client wants. An empty ControlIDs means every control.
// Events not tied to a control (learn.changed) ignore the filter.
type WSSubscribePayload struct {
	Channels   []string `json:"channels"`
	ControlIDs []string `json:"control_ids,omitempty"`
}

// liveState is what a new subscriber is told before live events arrive.
// *control.Registry satisfies it.
type liveState interface {
	LearningIDs() []string
	TriggerConditions() map[string]bool
}

// Hub relays registry events to subscribed WebSocket clients. It implements
// control.WSHub.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	// dropped counts events not delivered because a client's buffer was full.
	dropped atomic.Uint64
}

// WSClient is one connected WebSocket client and its subscriptions.
type WSClient struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	state liveState

	mu       sync.RWMutex
	channels map[string]struct{}
	controls map[string]struct{} // nil: all controls
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// CORS middleware decides on origins.
		return true
	},
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that removes it closes its send
// channel, so concurrent shutdown paths cannot double-close.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast delivers an event to every client subscribed to channel whose
// control filter admits the payload's control_id.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeEvent(channel, payload, false)
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}
	controlID := payloadControlID(payload)

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.wants(channel, controlID) {
			client.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribers returns the number of clients subscribed to each channel.
func (h *Hub) Subscribers() map[string]int {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	out := make(map[string]int)
	for _, client := range clients {
		client.mu.RLock()
		for ch := range client.channels {
			out[ch]++
		}
		client.mu.RUnlock()
	}
	return out
}

// Dropped returns how many events were skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

func encodeEvent(channel string, payload any, snapshot bool) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Snapshot:  snapshot,
		Payload:   payload,
	})
}

// payloadControlID extracts control_id from a registry event payload.
func payloadControlID(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["control_id"].(string)
	return id
}

// handleWebSocket upgrades the request and attaches a client to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, s.registry)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func newWSClient(hub *Hub, conn *websocket.Conn, state liveState) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		state:    state,
		channels: make(map[string]struct{}),
	}
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application messages count as liveness too; browsers cannot
		// answer protocol pings from script.
		extend() //nolint:errcheck // see above
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(req)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

func decodeSubscription(raw json.RawMessage) (WSSubscribePayload, bool) {
	var sub WSSubscribePayload
	if len(raw) == 0 || json.Unmarshal(raw, &sub) != nil || len(sub.Channels) == 0 {
		return sub, false
	}
	return sub, true
}

// handleSubscribe adds known channels, answers with what was accepted and
// then replays the current state of the stateful channels.
func (c *WSClient) handleSubscribe(req wsRequest) {
	sub, ok := decodeSubscription(req.Payload)
	if !ok {
		c.sendError(req.ID, "subscribe needs a non-empty channels list")
		return
	}

	known := control.AllEvents()
	var accepted, rejected []string
	for _, ch := range sub.Channels {
		if slices.Contains(known, ch) {
			accepted = append(accepted, ch)
		} else {
			rejected = append(rejected, ch)
		}
	}

	c.mu.Lock()
	for _, ch := range accepted {
		c.channels[ch] = struct{}{}
	}
	if len(sub.ControlIDs) > 0 {
		c.controls = make(map[string]struct{}, len(sub.ControlIDs))
		for _, id := range sub.ControlIDs {
			c.controls[id] = struct{}{}
		}
	}
	c.mu.Unlock()

	resp := map[string]any{"subscribed": accepted}
	if len(rejected) > 0 {
		resp["rejected"] = rejected
	}
	c.reply(req.ID, WSTypeResponse, resp)

	for _, ch := range accepted {
		c.replay(ch)
	}
}

func (c *WSClient) handleUnsubscribe(req wsRequest) {
	sub, ok := decodeSubscription(req.Payload)
	if !ok {
		c.sendError(req.ID, "unsubscribe needs a non-empty channels list")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	if len(c.channels) == 0 {
		c.controls = nil
	}
	c.mu.Unlock()

	c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
}

// replay sends the current state behind a stateful channel: the in-flight
// learn IDs, or the condition of every trigger the client watches.
func (c *WSClient) replay(channel string) {
	if c.state == nil {
		return
	}

	switch channel {
	case control.EventLearnChanged:
		ids := c.state.LearningIDs()
		if ids == nil {
			ids = []string{}
		}
		c.sendEvent(channel, map[string]any{"active_ids": ids})
	case control.EventTriggerCondition:
		conditions := c.state.TriggerConditions()
		ids := make([]string, 0, len(conditions))
		for id := range conditions {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			if c.wants(channel, id) {
				c.sendEvent(channel, map[string]any{"control_id": id, "value": conditions[id]})
			}
		}
	}
}

func (c *WSClient) wants(channel, controlID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if c.controls == nil || controlID == "" {
		return true
	}
	_, ok := c.controls[controlID]
	return ok
}

// trySend queues data without blocking. A closed channel (client left
// during a broadcast) is ignored; a full buffer drops the message.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()

	select {
	case c.send <- data:
	default:
		c.hub.dropped.Add(1)
	}
}

func (c *WSClient) sendEvent(channel string, payload any) {
	data, err := encodeEvent(channel, payload, true)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
