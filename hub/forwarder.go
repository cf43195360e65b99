package hub

import (
	"github.com/neuroshield/neuroshield/broadcast"
	"github.com/neuroshield/neuroshield/observability"
)

func (h *Hub) setConnGauge(n int) {
	observability.WSConnections.Set(float64(n))
}

// EventForwarder bridges the broadcaster to the hub: device-scoped events go
// to that device's subscribers, system-wide events to every connection. It is
// registered as a global subscriber at wiring time.
type EventForwarder struct {
	hub *Hub
}

// NewEventForwarder returns a forwarder delivering into h.
func NewEventForwarder(h *Hub) *EventForwarder {
	return &EventForwarder{hub: h}
}

// HandleEvent implements broadcast.Subscriber.
func (f *EventForwarder) HandleEvent(ev broadcast.Event) {
	if ev.Device != "" {
		f.hub.BroadcastToDeviceSubscribers(ev.Device, ev)
		return
	}
	f.hub.BroadcastAll(ev)
}
