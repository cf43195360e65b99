package broadcast

import (
	"fmt"
	"time"
)

// EventType is the closed set of notable occurrence types.
type EventType string

const (
	EventPredictionUpdate   EventType = "prediction_update"
	EventSystemAlert        EventType = "system_alert"
	EventMetricsUpdate      EventType = "metrics_update"
	EventDeviceStatus       EventType = "device_status"
	EventCongestionDetected EventType = "congestion_detected"
	EventAnomalyDetected    EventType = "anomaly_detected"
	EventActionExecuted     EventType = "action_executed"
)

// EventPriority orders events by operator urgency.
type EventPriority int

const (
	PriorityLow EventPriority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// Event is an immutable notification of something that happened. Device is
// empty for system-wide events.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Device    string         `json:"device,omitempty"`
	Priority  EventPriority  `json:"priority"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"data"`
}

// NewEvent stamps an event with an id derived from its type and emission time.
func NewEvent(t EventType, payload map[string]any, device string, priority EventPriority) Event {
	now := time.Now()
	return Event{
		ID:        fmt.Sprintf("%s_%d", t, now.UnixMilli()),
		Type:      t,
		Device:    device,
		Priority:  priority,
		Timestamp: now,
		Payload:   payload,
	}
}
