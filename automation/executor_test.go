package automation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// captureSink records emitted events for assertions.
type captureSink struct {
	mu       sync.Mutex
	executed []sinkExec
	alerts   []sinkAlert
}

type sinkExec struct {
	device string
	action string
	result map[string]any
}

type sinkAlert struct {
	message   string
	alertType string
	device    string
}

func (s *captureSink) EmitActionExecuted(device, action string, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, sinkExec{device, action, result})
}

func (s *captureSink) EmitSystemAlert(message, alertType, device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, sinkAlert{message, alertType, device})
}

func (s *captureSink) executedWithStatus(status string) []sinkExec {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkExec
	for _, e := range s.executed {
		if e.result["status"] == status {
			out = append(out, e)
		}
	}
	return out
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.LatencyUnit = 2 * time.Millisecond
	cfg.EffectTimeout = 5 * time.Second
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSubmitRunsToCompletion(t *testing.T) {
	sink := &captureSink{}
	e := NewExecutor(fastConfig(), sink, nil)
	e.Start(context.Background())
	defer e.Stop()

	id, err := e.Submit(KindCongestionMitigation, "Router_A",
		map[string]any{"type": "bandwidth_limit", "severity": "high"}, 2, true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		a, err := e.GetStatus(id)
		return err == nil && a.Status == StatusCompleted
	})

	a, err := e.GetStatus(id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if a.StartedAt == nil {
		t.Error("expected StartedAt to be set after completion")
	}
	if a.CompletedAt == nil {
		t.Error("expected CompletedAt to be set after completion")
	}
	if a.Result["success"] != true {
		t.Errorf("expected success result, got %v", a.Result)
	}

	completed := sink.executedWithStatus("completed")
	if len(completed) != 1 {
		t.Fatalf("expected exactly one completed event, got %d", len(completed))
	}
	if completed[0].device != "Router_A" {
		t.Errorf("expected event for Router_A, got %s", completed[0].device)
	}
	if completed[0].action != string(KindCongestionMitigation) {
		t.Errorf("expected congestion_mitigation event, got %s", completed[0].action)
	}
}

func TestUnknownKindRejectedAtSubmit(t *testing.T) {
	e := NewExecutor(fastConfig(), nil, nil)
	if _, err := e.Submit("flux_capacitor_reset", "Router_A", nil, 1, true); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxConcurrency = 2
	cfg.LatencyUnit = 20 * time.Millisecond // keep effects overlapping
	e := NewExecutor(cfg, nil, nil)
	e.Start(context.Background())
	defer e.Stop()

	for i := 0; i < 6; i++ {
		if _, err := e.Submit(KindQoSUpdate, "Router_A", nil, 1, true); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	maxSeen := 0
	waitFor(t, 5*time.Second, func() bool {
		inProgress, completed := 0, 0
		for _, a := range e.ListActions("", 100) {
			switch a.Status {
			case StatusInProgress:
				inProgress++
			case StatusCompleted:
				completed++
			}
		}
		if inProgress > maxSeen {
			maxSeen = inProgress
		}
		return completed == 6
	})

	if maxSeen > 2 {
		t.Errorf("concurrency ceiling breached: saw %d in progress", maxSeen)
	}
	if maxSeen == 0 {
		t.Error("expected to observe at least one in-progress action")
	}
}

func TestDispatchOrderPriorityThenArrival(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxConcurrency = 1
	sink := &captureSink{}
	e := NewExecutor(cfg, sink, nil)

	// Queue before starting so both are pending when dispatch begins.
	if _, err := e.Submit(KindTrafficRerouting, "Router_A", nil, 2, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := e.Submit(KindQoSUpdate, "Router_B", nil, 1, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	e.Start(context.Background())
	defer e.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return len(sink.executedWithStatus("started")) == 2
	})

	started := sink.executedWithStatus("started")
	if started[0].device != "Router_B" {
		t.Errorf("expected priority-1 action on Router_B dispatched first, got %s", started[0].device)
	}
	if started[1].device != "Router_A" {
		t.Errorf("expected priority-2 action on Router_A dispatched second, got %s", started[1].device)
	}
}

func TestCancelQueuedBeforeDispatch(t *testing.T) {
	sink := &captureSink{}
	e := NewExecutor(fastConfig(), sink, nil)

	id, err := e.Submit(KindDeviceRestart, "Router_A", nil, 1, true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !e.Cancel(id) {
		t.Fatal("expected Cancel of queued action to succeed")
	}

	a, err := e.GetStatus(id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if a.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", a.Status)
	}
	if a.CompletedAt == nil {
		t.Error("expected CompletedAt on cancelled action")
	}

	// Terminal actions reject a second cancel.
	if e.Cancel(id) {
		t.Error("expected Cancel of terminal action to report false")
	}

	// Starting the loop must not resurrect it.
	e.Start(context.Background())
	defer e.Stop()
	time.Sleep(250 * time.Millisecond)
	if n := len(sink.executedWithStatus("started")); n != 0 {
		t.Errorf("cancelled action was dispatched %d times", n)
	}
}

func TestCancelRunningActionMarksTerminalFields(t *testing.T) {
	cfg := fastConfig()
	cfg.LatencyUnit = 100 * time.Millisecond // keep the effect in flight
	e := NewExecutor(cfg, nil, nil)
	e.Start(context.Background())
	defer e.Stop()

	id, err := e.Submit(KindTrafficRerouting, "Router_A", nil, 1, true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		a, err := e.GetStatus(id)
		return err == nil && a.Status == StatusInProgress
	})

	if !e.Cancel(id) {
		t.Fatal("expected Cancel of in-progress action to succeed")
	}

	a, err := e.GetStatus(id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if a.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", a.Status)
	}
	if a.CompletedAt == nil {
		t.Error("cancelled action must carry CompletedAt while the effect drains")
	}
	if a.ErrorMsg != "Action cancelled by user" {
		t.Errorf("expected cancellation message, got %q", a.ErrorMsg)
	}

	// The effect runs to completion and its terminal state supersedes.
	waitFor(t, 2*time.Second, func() bool {
		a, err := e.GetStatus(id)
		return err == nil && a.Status == StatusCompleted
	})
	a, _ = e.GetStatus(id)
	if a.ErrorMsg != "" {
		t.Errorf("natural completion must clear the cancellation message, got %q", a.ErrorMsg)
	}
}

func TestCancelUnknownAction(t *testing.T) {
	e := NewExecutor(fastConfig(), nil, nil)
	if e.Cancel("no_such_action") {
		t.Error("expected Cancel of unknown id to report false")
	}
}

func TestApprovalGate(t *testing.T) {
	sink := &captureSink{}
	e := NewExecutor(fastConfig(), sink, nil)
	e.Start(context.Background())
	defer e.Stop()

	id, err := e.Submit(KindConfigUpdate, "Router_B", map[string]any{"section": "routing"}, 1, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Held actions stay observably queued and are never auto-dispatched.
	time.Sleep(250 * time.Millisecond)
	a, err := e.GetStatus(id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if a.Status != StatusQueued {
		t.Fatalf("expected held action to stay queued, got %s", a.Status)
	}

	sink.mu.Lock()
	pending := len(sink.alerts)
	sink.mu.Unlock()
	if pending != 1 {
		t.Errorf("expected one pending-approval alert, got %d", pending)
	}

	if !e.Approve(id) {
		t.Fatal("expected Approve to succeed")
	}
	waitFor(t, 2*time.Second, func() bool {
		a, err := e.GetStatus(id)
		return err == nil && a.Status == StatusCompleted
	})

	if e.Approve(id) {
		t.Error("expected Approve of non-held action to report false")
	}
}

func TestFailedEffectRecordsError(t *testing.T) {
	sink := &captureSink{}
	e := NewExecutor(fastConfig(), sink, nil)
	e.Start(context.Background())
	defer e.Stop()

	// Router_X is not in the simulated inventory.
	id, err := e.Submit(KindBandwidthAdjustment, "Router_X", map[string]any{"bandwidth": 50}, 1, true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		a, err := e.GetStatus(id)
		return err == nil && a.Status == StatusFailed
	})

	a, _ := e.GetStatus(id)
	if !strings.Contains(a.ErrorMsg, "not found") {
		t.Errorf("expected device-not-found error, got %q", a.ErrorMsg)
	}
	if a.StartedAt == nil || a.CompletedAt == nil {
		t.Error("failed action must carry started and completed timestamps")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, al := range sink.alerts {
		if al.alertType == "error" && al.device == "Router_X" {
			found = true
		}
	}
	if !found {
		t.Error("expected a system alert for the failure")
	}
}

func TestEffectTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.LatencyUnit = 50 * time.Millisecond
	cfg.EffectTimeout = 20 * time.Millisecond
	e := NewExecutor(cfg, nil, nil)
	e.Start(context.Background())
	defer e.Stop()

	id, err := e.Submit(KindTrafficRerouting, "Router_A", nil, 1, true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		a, err := e.GetStatus(id)
		return err == nil && a.Status == StatusFailed
	})

	a, _ := e.GetStatus(id)
	if !strings.Contains(a.ErrorMsg, "timed out") {
		t.Errorf("expected timeout error, got %q", a.ErrorMsg)
	}
}

func TestBandwidthAdjustmentMutatesInventory(t *testing.T) {
	e := NewExecutor(fastConfig(), nil, nil)
	e.Start(context.Background())
	defer e.Stop()

	id, err := e.AdjustBandwidth("Router_B", 42, true)
	if err != nil {
		t.Fatalf("AdjustBandwidth: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		a, err := e.GetStatus(id)
		return err == nil && a.Status == StatusCompleted
	})

	cfg, ok := e.Inventory().Get("Router_B")
	if !ok {
		t.Fatal("Router_B missing from inventory")
	}
	if cfg.CurrentBandwidth != 42 {
		t.Errorf("expected bandwidth 42, got %g", cfg.CurrentBandwidth)
	}
}

func TestListActionsNewestFirst(t *testing.T) {
	e := NewExecutor(fastConfig(), nil, nil)

	first, _ := e.Submit(KindAlertNotification, "Router_A", nil, 1, false)
	second, _ := e.Submit(KindQoSUpdate, "Router_B", nil, 1, false)
	third, _ := e.Submit(KindConfigUpdate, "Router_A", nil, 1, false)

	all := e.ListActions("", 10)
	if len(all) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(all))
	}
	if all[0].ID != third || all[1].ID != second || all[2].ID != first {
		t.Errorf("expected newest-first order [%s %s %s], got [%s %s %s]",
			third, second, first, all[0].ID, all[1].ID, all[2].ID)
	}

	routerA := e.ListActions("Router_A", 10)
	if len(routerA) != 2 {
		t.Errorf("expected 2 Router_A actions, got %d", len(routerA))
	}

	if got := e.ListActions("", 2); len(got) != 2 {
		t.Errorf("expected limit to cap results at 2, got %d", len(got))
	}
}

func TestListActionsDeviceFilterPrecedesLimit(t *testing.T) {
	e := NewExecutor(fastConfig(), nil, nil)

	var routerA []string
	for i := 0; i < 3; i++ {
		id, _ := e.Submit(KindQoSUpdate, "Router_A", nil, 1, false)
		routerA = append(routerA, id)
	}
	for i := 0; i < 2; i++ {
		e.Submit(KindQoSUpdate, "Router_B", nil, 1, false)
	}

	// The newest actions overall belong to Router_B; a limited Router_A query
	// must still surface Router_A's own newest entries.
	got := e.ListActions("Router_A", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 Router_A actions (3 exist), got %d", len(got))
	}
	if got[0].ID != routerA[2] || got[1].ID != routerA[1] {
		t.Errorf("expected newest Router_A actions [%s %s], got [%s %s]",
			routerA[2], routerA[1], got[0].ID, got[1].ID)
	}
}

func TestHistoryBounded(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxHistory = 3
	e := NewExecutor(cfg, nil, nil)

	var ids []string
	for i := 0; i < 5; i++ {
		id, _ := e.Submit(KindAlertNotification, "Router_A", nil, 1, false)
		ids = append(ids, id)
		e.Cancel(id)
	}

	// Oldest two evicted.
	for _, id := range ids[:2] {
		if _, err := e.GetStatus(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected %s to be evicted, got err=%v", id, err)
		}
	}
	for _, id := range ids[2:] {
		if _, err := e.GetStatus(id); err != nil {
			t.Errorf("expected %s to be retained: %v", id, err)
		}
	}
}

func TestGetStatusNotFound(t *testing.T) {
	e := NewExecutor(fastConfig(), nil, nil)
	if _, err := e.GetStatus("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
