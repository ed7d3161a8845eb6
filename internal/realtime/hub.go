// Package realtime pushes state changes (translation progress, playback
// mode switches, publishes) to connected dashboard and display clients
// over WebSocket, with Redis pub/sub bridging instances.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Heartbeat intervals in seconds.
const (
	PingInterval = 30
	PongWait     = 60
)

// RedisBridge carries events between instances.
type RedisBridge interface {
	PublishEvent(event string, payload []byte) error
	Subscribe(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains the set of connected clients and broadcasts events to all
// of them. There is one shared event stream; clients filter client-side.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	bridge    RedisBridge
	cancelSub func()
	logger    *zap.Logger
}

// NewHub creates a WebSocket hub. bridge may be nil for single-instance
// deployments.
func NewHub(bridge RedisBridge, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), bridge: bridge, logger: logger}
}

// Start subscribes to the cross-instance channel. Events arriving from
// other instances are delivered to local clients only, never republished.
func (h *Hub) Start() error {
	if h.bridge == nil {
		return nil
	}
	cancel, err := h.bridge.Subscribe(func(event string, payload []byte) {
		h.broadcastLocal(event, json.RawMessage(payload))
	})
	if err != nil {
		return err
	}
	h.cancelSub = cancel
	return nil
}

// Stop cancels the cross-instance subscription.
func (h *Hub) Stop() {
	if h.cancelSub != nil {
		h.cancelSub()
		h.cancelSub = nil
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

func (h *Hub) broadcastLocal(event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// slow client, drop the event
		}
	}
}

// Publish delivers an event to local clients and to other instances via
// Redis. This is the fan-out used by the translation registry and the
// playback controller.
func (h *Hub) Publish(event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	h.broadcastLocal(event, json.RawMessage(payload))
	if h.bridge != nil {
		if err := h.bridge.PublishEvent(event, payload); err != nil {
			h.logger.Warn("publish event to redis", zap.String("event", event), zap.Error(err))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
