package automation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DeviceConfig is the simulated management-plane state for one device.
type DeviceConfig struct {
	ManagementIP     string   `json:"management_ip"`
	MaxBandwidth     float64  `json:"max_bandwidth"`
	CurrentBandwidth float64  `json:"current_bandwidth"`
	QoSPolicies      []string `json:"qos_policies"`
	RoutingTable     []string `json:"routing_table"`
	Status           string   `json:"status"`
}

// DeviceInventory holds the simulated device fleet mutated by effects.
type DeviceInventory struct {
	mu      sync.RWMutex
	devices map[string]*DeviceConfig
}

// NewDeviceInventory seeds the default simulated fleet.
func NewDeviceInventory() *DeviceInventory {
	inv := &DeviceInventory{devices: make(map[string]*DeviceConfig)}
	for i, name := range []string{"Router_A", "Router_B", "Router_C"} {
		inv.devices[name] = &DeviceConfig{
			ManagementIP:     fmt.Sprintf("192.168.100.%d", i+1),
			MaxBandwidth:     100,
			CurrentBandwidth: 100,
			QoSPolicies:      []string{"high", "medium", "low"},
			Status:           "active",
		}
	}
	return inv
}

// Get returns a copy of the device config, or false if unknown.
func (inv *DeviceInventory) Get(device string) (DeviceConfig, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	cfg, ok := inv.devices[device]
	if !ok {
		return DeviceConfig{}, false
	}
	return *cfg, true
}

// All returns a copy of every device config keyed by name.
func (inv *DeviceInventory) All() map[string]DeviceConfig {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make(map[string]DeviceConfig, len(inv.devices))
	for name, cfg := range inv.devices {
		out[name] = *cfg
	}
	return out
}

func (inv *DeviceInventory) setBandwidth(device string, bw float64) (old float64, err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	cfg, ok := inv.devices[device]
	if !ok {
		return 0, fmt.Errorf("device %s not found", device)
	}
	old = cfg.CurrentBandwidth
	cfg.CurrentBandwidth = bw
	return old, nil
}

func (inv *DeviceInventory) setStatus(device, status string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	cfg, ok := inv.devices[device]
	if !ok {
		return fmt.Errorf("device %s not found", device)
	}
	cfg.Status = status
	return nil
}

// effects simulates the downstream device operations. Each effect models a
// different latency; durations are expressed in units of latencyUnit so
// tests can shrink the whole schedule.
type effects struct {
	inventory   *DeviceInventory
	latencyUnit time.Duration
}

// sleep pauses for n latency units, honoring cancellation/deadline.
func (e *effects) sleep(ctx context.Context, n float64) error {
	t := time.NewTimer(time.Duration(n * float64(e.latencyUnit)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run dispatches to the kind-specific handler and returns its structured result.
func (e *effects) run(ctx context.Context, a *Action) (map[string]any, error) {
	switch a.Kind {
	case KindBandwidthAdjustment:
		return e.bandwidthAdjustment(ctx, a)
	case KindTrafficRerouting:
		return e.trafficRerouting(ctx, a)
	case KindQoSUpdate:
		return e.qosUpdate(ctx, a)
	case KindCongestionMitigation:
		return e.congestionMitigation(ctx, a)
	case KindAlertNotification:
		return e.alertNotification(ctx, a)
	case KindDeviceRestart:
		return e.deviceRestart(ctx, a)
	case KindConfigUpdate:
		return e.configUpdate(ctx, a)
	case KindMonitoringEnable:
		return e.monitoringEnable(ctx, a)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, a.Kind)
	}
}

func (e *effects) bandwidthAdjustment(ctx context.Context, a *Action) (map[string]any, error) {
	p := decodeBandwidthParams(a.Parameters)
	if err := e.sleep(ctx, 2); err != nil {
		return nil, err
	}
	old, err := e.inventory.setBandwidth(a.Device, p.Bandwidth)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":       true,
		"old_bandwidth": old,
		"new_bandwidth": p.Bandwidth,
		"message":       fmt.Sprintf("Bandwidth adjusted from %g to %g MB/s", old, p.Bandwidth),
	}, nil
}

func (e *effects) trafficRerouting(ctx context.Context, a *Action) (map[string]any, error) {
	p := decodeReroutingParams(a.Parameters)
	if err := e.sleep(ctx, 3); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":      true,
		"source_route": p.SourceRoute,
		"target_route": p.TargetRoute,
		"message":      fmt.Sprintf("Traffic rerouted from %s to %s", p.SourceRoute, p.TargetRoute),
	}, nil
}

func (e *effects) qosUpdate(ctx context.Context, a *Action) (map[string]any, error) {
	p := decodeQoSParams(a.Parameters)
	if err := e.sleep(ctx, 1.5); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":        true,
		"policy":         p.Policy,
		"priority_flows": p.PriorityFlows,
		"message":        fmt.Sprintf("QoS policy updated to %s", p.Policy),
	}, nil
}

func (e *effects) congestionMitigation(ctx context.Context, a *Action) (map[string]any, error) {
	p := decodeMitigationParams(a.Parameters)
	if err := e.sleep(ctx, 2.5); err != nil {
		return nil, err
	}
	var taken []string
	switch p.Type {
	case "bandwidth_limit":
		taken = append(taken, "Reduced bandwidth allocation by 20%")
	case "traffic_shaping":
		taken = append(taken, "Applied aggressive traffic shaping")
	case "load_balancing":
		taken = append(taken, "Redistributed traffic load across alternate paths")
	}
	return map[string]any{
		"success":         true,
		"mitigation_type": p.Type,
		"severity":        p.Severity,
		"actions_taken":   taken,
		"message":         fmt.Sprintf("Congestion mitigation applied: %s", p.Type),
	}, nil
}

func (e *effects) alertNotification(ctx context.Context, a *Action) (map[string]any, error) {
	p := decodeAlertParams(a.Parameters)
	if err := e.sleep(ctx, 0.5); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":    true,
		"recipients": p.Recipients,
		"alert_type": p.AlertType,
		"message":    fmt.Sprintf("Alert sent to %d recipients", len(p.Recipients)),
	}, nil
}

func (e *effects) deviceRestart(ctx context.Context, a *Action) (map[string]any, error) {
	p := decodeRestartParams(a.Parameters)
	if err := e.sleep(ctx, 10); err != nil {
		return nil, err
	}
	if _, ok := e.inventory.Get(a.Device); !ok {
		return nil, fmt.Errorf("device %s not found", a.Device)
	}
	e.inventory.setStatus(a.Device, "restarting")
	if err := e.sleep(ctx, 5); err != nil {
		e.inventory.setStatus(a.Device, "active")
		return nil, err
	}
	e.inventory.setStatus(a.Device, "active")
	return map[string]any{
		"success":          true,
		"restart_type":     p.Type,
		"downtime_seconds": 15,
		"message":          fmt.Sprintf("Device %s restarted successfully", a.Device),
	}, nil
}

func (e *effects) configUpdate(ctx context.Context, a *Action) (map[string]any, error) {
	p := decodeConfigUpdateParams(a.Parameters)
	if err := e.sleep(ctx, 3); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(p.Config))
	for k := range p.Config {
		keys = append(keys, k)
	}
	return map[string]any{
		"success":      true,
		"section":      p.Section,
		"updated_keys": keys,
		"message":      fmt.Sprintf("Configuration updated for section: %s", p.Section),
	}, nil
}

func (e *effects) monitoringEnable(ctx context.Context, a *Action) (map[string]any, error) {
	p := decodeMonitoringParams(a.Parameters)
	if err := e.sleep(ctx, 1); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":         true,
		"monitoring_type": p.Type,
		"interval":        p.Interval,
		"message":         fmt.Sprintf("Enhanced monitoring enabled with %ds interval", p.Interval),
	}, nil
}
