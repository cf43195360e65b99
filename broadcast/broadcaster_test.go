package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture collects delivered events behind a mutex so tests can poll it from
// the main goroutine while the dispatch loop appends.
type capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *capture) HandleEvent(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *capture) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func startBroadcaster(t *testing.T, queueSize, maxHistory int) *Broadcaster {
	t.Helper()
	b := NewBroadcaster(queueSize, maxHistory)
	b.Start(context.Background())
	t.Cleanup(b.Stop)
	return b
}

func TestEmitWithNoSubscribersStillRecorded(t *testing.T) {
	b := startBroadcaster(t, 0, 0)

	b.Emit(EventMetricsUpdate, map[string]any{"cpu": 0.4}, "", PriorityMedium)

	require.Eventually(t, func() bool {
		return len(b.GetRecent(10, "", "")) == 1
	}, time.Second, 5*time.Millisecond)

	got := b.GetRecent(10, "", "")
	assert.Equal(t, EventMetricsUpdate, got[0].Type)
}

func TestGlobalSubscriberSeesEverything(t *testing.T) {
	b := startBroadcaster(t, 0, 0)
	c := &capture{}
	b.SubscribeGlobal(c)

	b.EmitSystemAlert("link flap", "warning", "Router_A")
	b.EmitMetricsUpdate(map[string]any{"cpu": 0.9})
	b.EmitCongestionDetected("Router_B", 0.87, nil)

	require.Eventually(t, func() bool { return c.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestTypeAndDeviceRouting(t *testing.T) {
	b := startBroadcaster(t, 0, 0)

	alerts := &capture{}
	routerA := &capture{}
	b.SubscribeToType(EventSystemAlert, alerts)
	b.SubscribeToDevice("Router_A", routerA)

	b.EmitSystemAlert("config drift", "warning", "Router_B")
	b.EmitPredictionUpdate("Router_A", map[string]any{"congestion": 0.2})
	b.EmitMetricsUpdate(map[string]any{"cpu": 0.5}) // no device, no matching type

	require.Eventually(t, func() bool {
		return alerts.count() == 1 && routerA.count() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, EventSystemAlert, alerts.snapshot()[0].Type)
	assert.Equal(t, "Router_A", routerA.snapshot()[0].Device)
}

func TestSubscriberMatchingBothScopesDeliveredPerScope(t *testing.T) {
	b := startBroadcaster(t, 0, 0)

	c := &capture{}
	b.SubscribeToType(EventSystemAlert, c)
	b.SubscribeToDevice("Router_A", c)

	b.EmitSystemAlert("overheat", "critical", "Router_A")

	// Registered in two scopes, so the same event arrives twice.
	require.Eventually(t, func() bool { return c.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	b := startBroadcaster(t, 0, 0)
	c := &capture{}
	sub := b.SubscribeGlobal(c)

	b.EmitMetricsUpdate(map[string]any{"cpu": 0.1})
	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	b.EmitMetricsUpdate(map[string]any{"cpu": 0.2})
	require.Eventually(t, func() bool {
		return len(b.GetRecent(10, EventMetricsUpdate, "")) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, c.count())
}

func TestPanickingSubscriberIsolated(t *testing.T) {
	b := startBroadcaster(t, 0, 0)

	b.SubscribeGlobal(SubscriberFunc(func(Event) { panic("boom") }))
	healthy := &capture{}
	b.SubscribeGlobal(healthy)

	b.EmitSystemAlert("first", "info", "")
	b.EmitSystemAlert("second", "info", "")

	// Both events reach the healthy subscriber despite the panic each round.
	require.Eventually(t, func() bool { return healthy.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestHistoryBoundedOldestEvicted(t *testing.T) {
	b := startBroadcaster(t, 0, 3)

	b.EmitSystemAlert("one", "info", "")
	b.EmitSystemAlert("two", "info", "")
	b.EmitSystemAlert("three", "info", "")
	b.EmitSystemAlert("four", "info", "")

	require.Eventually(t, func() bool {
		got := b.GetRecent(10, "", "")
		return len(got) == 3 && got[0].Payload["message"] == "two"
	}, time.Second, 5*time.Millisecond)
}

func TestGetRecentFiltersAfterSlicing(t *testing.T) {
	b := startBroadcaster(t, 0, 0)

	b.EmitSystemAlert("old alert", "info", "Router_A")
	b.EmitMetricsUpdate(map[string]any{"cpu": 0.3})
	b.EmitMetricsUpdate(map[string]any{"cpu": 0.4})

	require.Eventually(t, func() bool {
		return len(b.GetRecent(10, "", "")) == 3
	}, time.Second, 5*time.Millisecond)

	// The limit applies to the raw tail before filtering, so the alert that
	// sits outside the last two entries never shows up.
	got := b.GetRecent(2, EventSystemAlert, "")
	assert.Empty(t, got)

	got = b.GetRecent(3, EventSystemAlert, "")
	require.Len(t, got, 1)
	assert.Equal(t, "Router_A", got[0].Device)
}

func TestEmitDropsWhenQueueFullWithoutBlocking(t *testing.T) {
	b := NewBroadcaster(1, 0) // deliberately not started, queue fills at 1

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.EmitMetricsUpdate(map[string]any{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
}
