package hub

import (
	"encoding/json"
	"log"

	"github.com/neuroshield/neuroshield/observability"
)

// inboundMessage is the client command frame.
type inboundMessage struct {
	Type   string `json:"type"`
	Device string `json:"device,omitempty"`
}

type ackMessage struct {
	Type      string `json:"type"`
	Device    string `json:"device,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// HandleInbound processes one raw frame from a connection: subscribe,
// unsubscribe and ping commands. Malformed frames and unknown command types
// are answered with an error payload rather than dropped.
func (h *Hub) HandleInbound(conn Conn, raw []byte) {
	if !h.limiter.allow(conn) {
		observability.WSInboundRejected.Inc()
		h.reply(conn, errorMessage{Error: "Rate limit exceeded"})
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(conn, errorMessage{Error: "Invalid JSON format"})
		return
	}

	switch msg.Type {
	case "subscribe":
		if msg.Device == "" {
			h.reply(conn, errorMessage{Error: "subscribe requires a device"})
			return
		}
		h.Subscribe(conn, msg.Device)
		h.reply(conn, ackMessage{
			Type:    "subscription_confirmed",
			Device:  msg.Device,
			Message: "Subscribed to " + msg.Device + " updates",
		})

	case "unsubscribe":
		if msg.Device == "" {
			h.reply(conn, errorMessage{Error: "unsubscribe requires a device"})
			return
		}
		h.Unsubscribe(conn, msg.Device)
		h.reply(conn, ackMessage{
			Type:    "unsubscription_confirmed",
			Device:  msg.Device,
			Message: "Unsubscribed from " + msg.Device + " updates",
		})

	case "ping":
		h.reply(conn, ackMessage{Type: "pong", Timestamp: stamp()})

	default:
		h.reply(conn, errorMessage{Error: "Unknown message type: " + msg.Type})
	}
}

func (h *Hub) reply(conn Conn, v any) {
	if err := h.send(conn, v); err != nil {
		log.Printf("reply send failed, pruning connection: %v", err)
		countSendFailure()
		h.Unregister(conn)
		conn.Close()
	}
}

func countSendFailure() {
	observability.WSSendFailures.Inc()
}
