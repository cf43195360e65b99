// Package hub tracks live duplex connections and their per-device topic
// subscriptions, and fans broadcast payloads out to them. Delivery is
// best-effort, at-most-once per currently-live connection; nothing is queued
// for reconnecting clients.
package hub

import (
	"log"
	"sync"
	"time"
)

const defaultMaxConnections = 200

// Conn is the minimal duplex connection surface the hub needs. Production
// uses gorilla websocket connections; tests use in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Hub maintains the connection set and subscription tables.
type Hub struct {
	maxConnections int
	limiter        *connLimiter

	mu            sync.RWMutex
	conns         map[Conn]struct{}
	subscriptions map[Conn]map[string]struct{} // conn -> set of devices
}

// New creates a hub. maxConnections <= 0 selects the default cap.
func New(maxConnections int) *Hub {
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	return &Hub{
		maxConnections: maxConnections,
		limiter:        newConnLimiter(5, 10), // 5 inbound frames/s, burst 10
		conns:          make(map[Conn]struct{}),
		subscriptions:  make(map[Conn]map[string]struct{}),
	}
}

// Register adds a connection. Returns false when the connection cap is
// reached; the caller should close the connection.
func (h *Hub) Register(conn Conn) bool {
	h.mu.Lock()
	if len(h.conns) >= h.maxConnections {
		h.mu.Unlock()
		log.Printf("connection rejected: max connections (%d) reached", h.maxConnections)
		return false
	}
	h.conns[conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	h.setConnGauge(total)
	log.Printf("connection registered. Total: %d", total)
	return true
}

// Unregister removes a connection and its subscriptions. Idempotent.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	_, present := h.conns[conn]
	delete(h.conns, conn)
	delete(h.subscriptions, conn)
	total := len(h.conns)
	h.mu.Unlock()

	if present {
		h.limiter.forget(conn)
		h.setConnGauge(total)
		log.Printf("connection unregistered. Total: %d", total)
	}
}

// Subscribe adds device to the connection's subscription set.
func (h *Hub) Subscribe(conn Conn, device string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscriptions[conn] == nil {
		h.subscriptions[conn] = make(map[string]struct{})
	}
	h.subscriptions[conn][device] = struct{}{}
}

// Unsubscribe removes device from the connection's subscription set. A
// missing subscription is a no-op.
func (h *Hub) Unsubscribe(conn Conn, device string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subscriptions[conn]; ok {
		delete(set, device)
	}
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// BroadcastAll sends message to every registered connection. Connections
// that fail are pruned and excluded from the rest of the round without
// affecting delivery to the others.
func (h *Hub) BroadcastAll(message any) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	h.sendRound(conns, message)
}

// BroadcastToDeviceSubscribers sends message only to connections subscribed
// to the device.
func (h *Hub) BroadcastToDeviceSubscribers(device string, message any) {
	h.mu.RLock()
	conns := make([]Conn, 0)
	for c, devices := range h.subscriptions {
		if _, ok := devices[device]; ok {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	h.sendRound(conns, message)
}

func (h *Hub) sendRound(conns []Conn, message any) {
	var dead []Conn
	for _, c := range conns {
		if err := h.send(c, message); err != nil {
			log.Printf("broadcast send failed, pruning connection: %v", err)
			countSendFailure()
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.Unregister(c)
		c.Close()
	}
}

func (h *Hub) send(c Conn, message any) error {
	// Dead connections must not stall the round.
	if d, ok := c.(interface{ SetWriteDeadline(time.Time) error }); ok {
		d.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}
	return c.WriteJSON(message)
}

// Typed envelope senders used by the event forwarder and the API layer.

type envelope struct {
	Type      string `json:"type"`
	Device    string `json:"device,omitempty"`
	AlertType string `json:"alert_type,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

func stamp() string { return time.Now().Format(time.RFC3339) }

// SendPredictionUpdate delivers a prediction payload to the device's subscribers.
func (h *Hub) SendPredictionUpdate(device string, data any) {
	h.BroadcastToDeviceSubscribers(device, envelope{
		Type: "prediction_update", Device: device, Timestamp: stamp(), Data: data,
	})
}

// SendAutomationUpdate delivers an automation action payload to the device's
// subscribers.
func (h *Hub) SendAutomationUpdate(device string, data any) {
	h.BroadcastToDeviceSubscribers(device, envelope{
		Type: "automation_update", Device: device, Timestamp: stamp(), Data: data,
	})
}

// SendPolicyUpdate delivers a policy payload to every connection.
func (h *Hub) SendPolicyUpdate(data any) {
	h.BroadcastAll(envelope{Type: "policy_update", Timestamp: stamp(), Data: data})
}

// SendSystemAlert delivers an alert: device-scoped when device is set,
// otherwise to every connection.
func (h *Hub) SendSystemAlert(alertType, message, device string) {
	msg := envelope{
		Type: "system_alert", AlertType: alertType, Message: message,
		Device: device, Timestamp: stamp(),
	}
	if device != "" {
		h.BroadcastToDeviceSubscribers(device, msg)
		return
	}
	h.BroadcastAll(msg)
}

// SendMetricsUpdate delivers a metrics snapshot to every connection.
func (h *Hub) SendMetricsUpdate(metrics any) {
	h.BroadcastAll(envelope{Type: "metrics_update", Timestamp: stamp(), Data: metrics})
}
