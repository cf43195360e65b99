package automation

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ActionKind is the closed set of remediation kinds the executor knows how to run.
type ActionKind string

const (
	KindBandwidthAdjustment  ActionKind = "bandwidth_adjustment"
	KindTrafficRerouting     ActionKind = "traffic_rerouting"
	KindQoSUpdate            ActionKind = "qos_update"
	KindCongestionMitigation ActionKind = "congestion_mitigation"
	KindAlertNotification    ActionKind = "alert_notification"
	KindDeviceRestart        ActionKind = "device_restart"
	KindConfigUpdate         ActionKind = "config_update"
	KindMonitoringEnable     ActionKind = "monitoring_enable"
)

// KnownKind reports whether k is a member of the closed kind enumeration.
func KnownKind(k ActionKind) bool {
	switch k {
	case KindBandwidthAdjustment, KindTrafficRerouting, KindQoSUpdate,
		KindCongestionMitigation, KindAlertNotification, KindDeviceRestart,
		KindConfigUpdate, KindMonitoringEnable:
		return true
	}
	return false
}

// ActionStatus is the action lifecycle state.
type ActionStatus string

const (
	StatusQueued     ActionStatus = "queued"
	StatusInProgress ActionStatus = "in_progress"
	StatusCompleted  ActionStatus = "completed"
	StatusFailed     ActionStatus = "failed"
	StatusCancelled  ActionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ActionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Action is one requested remediation. Once terminal it is immutable and
// lives only in the executor's bounded history.
type Action struct {
	ID          string         `json:"id"`
	Kind        ActionKind     `json:"action_type"`
	Device      string         `json:"device_name"`
	Parameters  map[string]any `json:"parameters"`
	Priority    int            `json:"priority"` // lower value = higher priority
	AutoExecute bool           `json:"auto_execute"`
	Status      ActionStatus   `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	ErrorMsg    string         `json:"error_message,omitempty"`

	seq uint64 // arrival order, tie-break for equal priorities
}

var actionSeq atomic.Uint64

// NewAction builds a queued action with a sortable, human-diagnosable ID. The
// sequence suffix keeps IDs unique when the same kind/device pair is submitted
// within one millisecond.
func NewAction(kind ActionKind, device string, params map[string]any, priority int, autoExecute bool) *Action {
	now := time.Now()
	seq := actionSeq.Add(1)
	return &Action{
		ID:          fmt.Sprintf("%s_%s_%d_%d", kind, device, now.UnixMilli(), seq),
		seq:         seq,
		Kind:        kind,
		Device:      device,
		Parameters:  params,
		Priority:    priority,
		AutoExecute: autoExecute,
		Status:      StatusQueued,
		CreatedAt:   now,
	}
}

// Clone returns a copy safe to hand to callers while the original may still
// be mutated by the executor.
func (a *Action) Clone() *Action {
	c := *a
	if a.Parameters != nil {
		c.Parameters = make(map[string]any, len(a.Parameters))
		for k, v := range a.Parameters {
			c.Parameters[k] = v
		}
	}
	if a.Result != nil {
		c.Result = make(map[string]any, len(a.Result))
		for k, v := range a.Result {
			c.Result[k] = v
		}
	}
	return &c
}
